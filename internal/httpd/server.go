package httpd

import (
	"github.com/nissy-dev/tunstack/internal/config"
	"github.com/nissy-dev/tunstack/internal/ipv4"
	"github.com/nissy-dev/tunstack/internal/log"
	"github.com/nissy-dev/tunstack/internal/netdev"
	"github.com/nissy-dev/tunstack/internal/tcp"
)

// Server wires the whole stack together and serves HTTP over it.
type Server struct {
	device *netdev.Device
	ip     *ipv4.PacketManager
	tcp    *tcp.PacketManager
	body   []byte
	logger log.Logger
}

// NewServer opens the TUN device and builds the managers from cfg.
func NewServer(cfg *config.Config) (*Server, error) {
	device, err := netdev.Open(cfg.Stack.Interface, cfg.Stack.QueueCapacity, cfg.Stack.ReadBufferSize)
	if err != nil {
		return nil, err
	}
	return &Server{
		device: device,
		ip:     ipv4.NewPacketManager(cfg.Stack.QueueCapacity),
		tcp:    tcp.NewPacketManager(cfg.Stack.QueueCapacity, cfg.Stack.FullTuple),
		body:   []byte(cfg.HTTP.Body),
		logger: log.GetLogger().WithField("component", "httpd"),
	}, nil
}

// Listen starts every pipeline stage.
func (s *Server) Listen() {
	s.device.Bind()
	s.ip.ManageQueue(s.device)
	s.tcp.ManageQueue(s.ip)
	s.tcp.Listen()
	s.logger.Info("server is running")
}

// Accept blocks until a connection has delivered its first request
// bytes.
func (s *Server) Accept() (tcp.Connection, error) {
	return s.tcp.Accept()
}

// Write pushes payload to the peer with PSH|ACK.
func (s *Server) Write(conn *tcp.Connection, data []byte) error {
	return s.tcp.Write(conn, tcp.FlagPSH|tcp.FlagACK, data)
}

// Serve runs the accept loop: parse the request carried by each
// accepted connection and answer it. Blocks until the stack stops.
func (s *Server) Serve() error {
	for {
		conn, err := s.Accept()
		if err != nil {
			return err
		}
		s.logger.WithField("connection", conn.String()).Info("accepted connection")

		req, err := ParseRequest(conn.Payload)
		if err != nil {
			s.logger.WithError(err).Warn("failed to parse request")
			if werr := s.Write(&conn, FormatResponse(400, nil)); werr != nil {
				return werr
			}
			continue
		}

		resp := s.Handle(req)
		if err := s.Write(&conn, resp); err != nil {
			return err
		}
	}
}

// Handle maps a request to a response. GET / returns the configured
// body, anything else is a 404.
func (s *Server) Handle(req *Request) []byte {
	if req.Method == "GET" && (req.URI == "/" || req.URI == "/index.html") {
		return FormatResponse(200, s.body)
	}
	return FormatResponse(404, []byte("<html><body>Not Found</body></html>"))
}

// Stop tears the pipeline down from the bottom up.
func (s *Server) Stop() {
	s.device.Stop()
	s.ip.Stop()
	s.tcp.Stop()
}
