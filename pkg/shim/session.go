package shim

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/catabozan/fdbridge/internal/portmap"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
	"github.com/catabozan/fdbridge/internal/protocol/rpc"
)

// dialTimeout bounds session construction. A server that cannot be reached
// quickly is treated as absent so the caller can fall back to the kernel.
const dialTimeout = 5 * time.Second

// Session is one connected stream endpoint carrying one request/response
// exchange at a time. A session is owned by exactly one Shim; calls
// complete in the order issued, and a session that fails a call is broken
// and must be torn down by its owner.
type Session struct {
	conn net.Conn
	xid  uint32
	cred []byte
}

// newSession dials the configured endpoint. For TCP the port is resolved
// through the host's portmapper first, falling back to the compiled-in
// port when the portmapper has no answer.
func newSession(cfg Config) (*Session, error) {
	var conn net.Conn
	var err error

	switch cfg.Transport {
	case "tcp":
		port := cfg.Port
		if port == 0 {
			port = resolvePort(cfg.Host)
		}
		addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port))
		conn, err = net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("dial tcp %s: %w", addr, err)
		}

	default:
		conn, err = net.DialTimeout("unix", cfg.SocketPath, dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("dial unix %s: %w", cfg.SocketPath, err)
		}
	}

	s := &Session{
		conn: conn,
		xid:  uuid.New().ID(),
	}
	s.cred = s.buildCred()
	return s, nil
}

// resolvePort asks the portmapper for the server's port, returning the
// compiled-in default when resolution fails.
func resolvePort(host string) int {
	port, err := portmap.GetPort(host, portmap.Mapping{
		Prog: types.Program,
		Vers: types.Version,
		Prot: portmap.IPProtoTCP,
	})
	if err != nil || port == 0 {
		return DefaultTCPPort
	}
	return int(port)
}

// buildCred encodes the AUTH_UNIX credential block sent with every call.
func (s *Session) buildCred() []byte {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "localhost"
	}

	auth := &rpc.UnixAuth{
		Stamp:       uint32(time.Now().Unix()),
		MachineName: hostname,
		UID:         uint32(os.Getuid()),
		GID:         uint32(os.Getgid()),
	}

	buf := new(bytes.Buffer)
	if err := auth.Encode(buf); err != nil {
		return nil
	}
	return buf.Bytes()
}

// Call performs one blocking request/response exchange and returns the
// reply body. Any failure (write, read, envelope mismatch, non-success
// accept status) breaks the session; the owner must tear it down.
func (s *Session) Call(proc uint32, args []byte) ([]byte, error) {
	s.xid++

	msg, err := rpc.EncodeCall(&rpc.CallMessage{
		XID:        s.xid,
		Program:    types.Program,
		Version:    types.Version,
		Procedure:  proc,
		CredFlavor: rpc.AuthUnix,
		CredBody:   s.cred,
		Body:       args,
	})
	if err != nil {
		return nil, fmt.Errorf("encode call: %w", err)
	}

	if err := rpc.WriteRecord(s.conn, msg); err != nil {
		return nil, fmt.Errorf("send call: %w", err)
	}

	record, err := rpc.ReadRecord(s.conn)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}

	reply, err := rpc.ParseReply(record)
	if err != nil {
		return nil, fmt.Errorf("parse reply: %w", err)
	}
	if reply.XID != s.xid {
		return nil, fmt.Errorf("xid mismatch: sent %d, got %d", s.xid, reply.XID)
	}
	if reply.AcceptStat != rpc.Success {
		return nil, fmt.Errorf("call rejected: accept_stat=%d", reply.AcceptStat)
	}

	return reply.Body, nil
}

// Close tears the session down.
func (s *Session) Close() error {
	return s.conn.Close()
}
