package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nissy-dev/tunstack/internal/ipv4"
	"github.com/nissy-dev/tunstack/internal/log"
	"github.com/nissy-dev/tunstack/internal/netdev"
	"github.com/nissy-dev/tunstack/internal/tcp"
)

var dumpLayer string

// dumpCmd pumps the pipeline up to the requested layer and logs what
// arrives. Useful to verify the TUN setup before running serve.
var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump traffic arriving on the TUN interface at a given layer",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitWithError("failed to load config", err)
		}
		logger := log.GetLogger()

		device, err := netdev.Open(cfg.Stack.Interface, cfg.Stack.QueueCapacity, cfg.Stack.ReadBufferSize)
		if err != nil {
			exitWithError("failed to open TUN device", err)
		}
		device.Bind()

		switch dumpLayer {
		case "raw":
			for {
				pkt, err := device.Read()
				if err != nil {
					exitWithError("device stopped", err)
				}
				logger.Infof("frame: %d bytes % x", pkt.Len(), pkt.Data)
			}
		case "ip":
			ip := ipv4.NewPacketManager(cfg.Stack.QueueCapacity)
			ip.ManageQueue(device)
			for {
				pkt, err := ip.Read()
				if err != nil {
					exitWithError("stack stopped", err)
				}
				logger.Infof("IP header: %+v", pkt.Header)
			}
		case "tcp":
			ip := ipv4.NewPacketManager(cfg.Stack.QueueCapacity)
			ip.ManageQueue(device)
			t := tcp.NewPacketManager(cfg.Stack.QueueCapacity, cfg.Stack.FullTuple)
			t.ManageQueue(ip)
			t.Listen()
			for {
				conn, err := t.Accept()
				if err != nil {
					exitWithError("stack stopped", err)
				}
				logger.Infof("accepted connection: %s (%d payload bytes)", conn.String(), len(conn.Payload))
			}
		default:
			exitWithError(fmt.Sprintf("unknown layer %q (raw|ip|tcp)", dumpLayer), nil)
		}
	},
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpLayer, "layer", "l", "raw", "layer to dump: raw, ip or tcp")
}
