// Package portmap implements a minimal RFC 1057 portmapper client, used only
// for the TCP transport: the server registers its program/version under the
// host's portmapper at startup, and clients resolve the listening port
// through GETPORT instead of a compiled-in number.
//
// All exchanges run over TCP with record marking. Failures are surfaced to
// the caller, who decides whether a missing portmapper is fatal (client
// resolution) or merely logged (server registration is best-effort).
package portmap

import (
	"bytes"
	"fmt"
	"net"
	"time"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/catabozan/fdbridge/internal/protocol/rpc"
)

// Portmapper protocol constants per RFC 1057.
const (
	// Program is the portmapper's own RPC program number.
	Program uint32 = 100000

	// Version is the portmapper protocol version.
	Version uint32 = 2

	// Procedures
	ProcSet     uint32 = 1
	ProcUnset   uint32 = 2
	ProcGetPort uint32 = 3

	// IPProtoTCP is the transport protocol value for TCP mappings.
	IPProtoTCP uint32 = 6

	// DefaultPort is the well-known portmapper port.
	DefaultPort = 111
)

// dialTimeout bounds the TCP connect to the portmapper.
const dialTimeout = 5 * time.Second

// Mapping is the portmapper's (program, version, protocol, port) tuple.
// Field order matches the wire layout; the XDR marshaller emits fields in
// declaration order.
type Mapping struct {
	Prog uint32
	Vers uint32
	Prot uint32
	Port uint32
}

// GetPort asks the portmapper on host for the port of a registered mapping.
// Returns 0 without error when the program is not registered, mirroring the
// protocol's convention.
func GetPort(host string, m Mapping) (uint32, error) {
	body, err := call(host, ProcGetPort, m)
	if err != nil {
		return 0, err
	}

	var port uint32
	if _, err := xdr.Unmarshal(bytes.NewReader(body), &port); err != nil {
		return 0, fmt.Errorf("decode getport result: %w", err)
	}
	return port, nil
}

// Set registers a mapping. Returns false when the portmapper refused the
// registration (typically because the tuple is already taken).
func Set(host string, m Mapping) (bool, error) {
	return boolCall(host, ProcSet, m)
}

// Unset removes any registration for the mapping's program and version.
// Port and protocol are ignored by the portmapper for UNSET.
func Unset(host string, m Mapping) (bool, error) {
	return boolCall(host, ProcUnset, m)
}

// boolCall runs a SET/UNSET-shaped procedure whose result is an XDR bool.
func boolCall(host string, proc uint32, m Mapping) (bool, error) {
	body, err := call(host, proc, m)
	if err != nil {
		return false, err
	}

	var ok bool
	if _, err := xdr.Unmarshal(bytes.NewReader(body), &ok); err != nil {
		return false, fmt.Errorf("decode bool result: %w", err)
	}
	return ok, nil
}

// call performs one portmapper RPC round trip and returns the reply body.
func call(host string, proc uint32, m Mapping) ([]byte, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", DefaultPort))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial portmapper %s: %w", addr, err)
	}
	defer conn.Close()

	args := new(bytes.Buffer)
	if _, err := xdr.Marshal(args, &m); err != nil {
		return nil, fmt.Errorf("encode mapping: %w", err)
	}

	xid := uint32(time.Now().UnixNano())
	msg, err := rpc.EncodeCall(&rpc.CallMessage{
		XID:       xid,
		Program:   Program,
		Version:   Version,
		Procedure: proc,
		Body:      args.Bytes(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode call: %w", err)
	}

	if err := rpc.WriteRecord(conn, msg); err != nil {
		return nil, fmt.Errorf("send call: %w", err)
	}

	record, err := rpc.ReadRecord(conn)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}

	reply, err := rpc.ParseReply(record)
	if err != nil {
		return nil, fmt.Errorf("parse reply: %w", err)
	}
	if reply.XID != xid {
		return nil, fmt.Errorf("xid mismatch: sent %d, got %d", xid, reply.XID)
	}
	if reply.AcceptStat != rpc.Success {
		return nil, fmt.Errorf("portmapper rejected call: accept_stat=%d", reply.AcceptStat)
	}

	return reply.Body, nil
}
