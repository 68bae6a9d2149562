// Package cmd implements CLI commands using the cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nissy-dev/tunstack/internal/config"
	"github.com/nissy-dev/tunstack/internal/log"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tunstack",
	Short: "tunstack - user-space TCP/IP stack over a TUN device",
	Long: `tunstack terminates IPv4/TCP traffic arriving on a TUN interface
entirely in user space: it parses and validates headers, drives a
passive-open TCP state machine, and hands accepted connections to a
minimal HTTP server, without touching the kernel's TCP implementation.

The interface must exist and carry a route before starting, e.g.:
  ip tuntap add mode tun tun0
  ip addr add 192.0.2.1/24 dev tun0
  ip link set up dev tun0`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults apply when omitted)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dumpCmd)
}

// loadConfig loads the configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := log.Init(&cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
