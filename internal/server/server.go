// Package server implements the bridge's listening side: a stream listener
// (unix socket or TCP), one goroutine per accepted connection, and the
// request-serial service loop that owns each connection's descriptor
// translation table.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/catabozan/fdbridge/internal/logger"
	"github.com/catabozan/fdbridge/internal/portmap"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
)

// Transport selection values, matched case-insensitively against the
// RPC_TRANSPORT environment variable and the configuration file.
const (
	TransportUnix = "unix"
	TransportTCP  = "tcp"
)

// Config holds the server's listening configuration.
type Config struct {
	// Transport selects the stream transport: "unix" (default) or "tcp".
	Transport string

	// SocketPath is the filesystem path of the unix socket. Any stale
	// entry is unlinked before binding.
	SocketPath string

	// Host and Port are the TCP listening address. Port 0 lets the kernel
	// pick, in which case the portmapper registration is what makes the
	// server reachable.
	Host string
	Port int

	// MaxHandles is the per-connection translation table capacity.
	MaxHandles int

	// RegisterPortmap controls whether the TCP transport registers the
	// program with the local portmapper. Registration failure is logged,
	// not fatal: a client with a compiled-in port can still connect.
	RegisterPortmap bool

	// MetricsEnabled exposes Prometheus metrics on MetricsPort.
	MetricsEnabled bool
	MetricsPort    int
}

// Server accepts bridge connections and serves each one on its own
// goroutine. Connections are independent: each gets its own translation
// table and its requests are processed strictly in arrival order.
type Server struct {
	cfg        Config
	listener   net.Listener
	metricsSrv *http.Server

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New creates a server with the given configuration. The transport value is
// normalized here so the rest of the server only ever sees "unix" or "tcp".
func New(cfg Config) *Server {
	cfg.Transport = strings.ToLower(cfg.Transport)
	if cfg.Transport != TransportTCP {
		cfg.Transport = TransportUnix
	}
	if cfg.MaxHandles <= 0 {
		cfg.MaxHandles = types.DefaultMaxHandles
	}
	return &Server{
		cfg:      cfg,
		shutdown: make(chan struct{}),
	}
}

// Serve listens on the configured transport and blocks until the context is
// cancelled or Stop is called. Live connections are drained before return.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	s.listener = listener

	logger.Info("Server started",
		logger.KeyTransport, s.cfg.Transport,
		logger.KeyClientAddr, listener.Addr().String())

	if s.cfg.MetricsEnabled {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveMetrics(s.cfg.MetricsPort)
		}()
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				s.wg.Wait()
				return nil
			default:
				s.Stop()
				s.wg.Wait()
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConnection(ctx, c)
		}(conn)
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop tears the server down: the listener closes, the unix socket entry is
// removed, and any portmapper registration is withdrawn. Safe to call more
// than once.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)

		if s.listener != nil {
			_ = s.listener.Close()
		}
		if s.metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = s.metricsSrv.Shutdown(shutdownCtx)
			cancel()
		}

		if s.cfg.Transport == TransportUnix {
			_ = os.Remove(s.cfg.SocketPath)
		} else if s.cfg.RegisterPortmap {
			if _, err := portmap.Unset(s.cfg.Host, portmap.Mapping{
				Prog: types.Program,
				Vers: types.Version,
			}); err != nil {
				logger.Debug("Portmap unset failed", "error", err)
			}
		}

		logger.Info("Server stopped")
	})
}

// listen binds the configured transport.
func (s *Server) listen() (net.Listener, error) {
	switch s.cfg.Transport {
	case TransportTCP:
		addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
		}

		if s.cfg.RegisterPortmap {
			s.registerPortmap(listener)
		}
		return listener, nil

	default:
		// Unlink a stale socket entry from a previous run before binding.
		if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale socket %s: %w", s.cfg.SocketPath, err)
		}

		listener, err := net.Listen("unix", s.cfg.SocketPath)
		if err != nil {
			return nil, fmt.Errorf("listen unix %s: %w", s.cfg.SocketPath, err)
		}
		return listener, nil
	}
}

// registerPortmap withdraws any stale registration for the program and
// registers the actual listening port.
func (s *Server) registerPortmap(listener net.Listener) {
	port := uint32(listener.Addr().(*net.TCPAddr).Port)
	mapping := portmap.Mapping{
		Prog: types.Program,
		Vers: types.Version,
		Prot: portmap.IPProtoTCP,
		Port: port,
	}

	if _, err := portmap.Unset(s.cfg.Host, mapping); err != nil {
		logger.Debug("Portmap unset of stale registration failed", "error", err)
	}

	ok, err := portmap.Set(s.cfg.Host, mapping)
	if err != nil {
		logger.Warn("Portmap registration failed", "error", err)
		return
	}
	if !ok {
		logger.Warn("Portmap registration refused", "port", port)
		return
	}
	logger.Info("Registered with portmapper", "port", port)
}
