package srcp

import (
	"net"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/dsigg/srcpd/internal/bus"
)

// Server is the SRCP TCP front end: one listener, one shared info/session
// bus, and a registry mapping bus numbers to the schedulers that actually
// own hardware.
type Server struct {
	ln       net.Listener
	bus      *bus.Bus
	registry *Registry
	log      *logrus.Logger
}

// NewServer binds the configured port. Call Serve to start accepting.
func NewServer(port int, registry *Registry, log *logrus.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return &Server{
		ln:       ln,
		bus:      bus.NewBus(32),
		registry: registry,
		log:      log,
	}, nil
}

// Bus exposes the shared pub/sub bus so the caller can build the
// per-scheduler *EventBus each DDL/S88 bus publishes through.
func (srv *Server) Bus() *bus.Bus { return srv.bus }

// Serve accepts connections until the listener is closed.
func (srv *Server) Serve() error {
	for {
		conn, err := srv.ln.Accept()
		if err != nil {
			return err
		}
		conn.(*net.TCPConn).SetNoDelay(true)
		events := NewEventBus(srv.bus.NewConnection(conn.RemoteAddr().String()))
		s := newSession(conn, srv.registry, events, srv.log)
		go s.run()
	}
}

func (srv *Server) Close() error { return srv.ln.Close() }
