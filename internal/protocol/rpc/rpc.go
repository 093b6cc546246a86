// Package rpc implements the request/response envelope carried below every
// bridge procedure: a transaction id, the program/version/procedure triple,
// and a small credentials block, per the ONC RPC message layout (RFC 5531).
//
// The package is deliberately value-level: it parses and builds envelopes as
// byte slices and leaves framing to framing.go and transport to the owner of
// the connection.
package rpc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/catabozan/fdbridge/internal/protocol/xdr"
)

// RPC message constants per RFC 5531.
const (
	// RPCVersion is the ONC RPC protocol version (always 2).
	RPCVersion = 2

	// Message types
	RPCCall  = 0
	RPCReply = 1

	// Reply status
	MsgAccepted = 0
	MsgDenied   = 1

	// Accept status values
	Success      = 0
	ProgUnavail  = 1
	ProgMismatch = 2
	ProcUnavail  = 3
	GarbageArgs  = 4
	SystemErr    = 5

	// Authentication flavors
	AuthNull = 0
	AuthUnix = 1

	// MaxAuthBodyLen bounds the opaque credential/verifier body (RFC 5531
	// fixes this at 400 bytes).
	MaxAuthBodyLen = 400

	// MaxUnixGIDs is the maximum number of supplementary groups in an
	// AUTH_UNIX credential body.
	MaxUnixGIDs = 16
)

// CallMessage is a parsed RPC call: the envelope fields plus the undecoded
// procedure arguments.
type CallMessage struct {
	// XID is the transaction identifier. The matching reply carries the
	// same value.
	XID uint32

	// Program, Version, Procedure identify the requested operation.
	Program   uint32
	Version   uint32
	Procedure uint32

	// CredFlavor and CredBody carry the credentials block.
	CredFlavor uint32
	CredBody   []byte

	// VerfFlavor and VerfBody carry the verifier (AUTH_NULL in practice).
	VerfFlavor uint32
	VerfBody   []byte

	// Body is the procedure-specific argument bytes following the envelope.
	Body []byte
}

// GetAuthFlavor returns the credential flavor of the call.
func (c *CallMessage) GetAuthFlavor() uint32 {
	return c.CredFlavor
}

// GetAuthBody returns the opaque credential body of the call.
func (c *CallMessage) GetAuthBody() []byte {
	return c.CredBody
}

// ReplyMessage is a parsed accepted RPC reply: the transaction id, the accept
// status, and the undecoded result bytes.
type ReplyMessage struct {
	XID        uint32
	AcceptStat uint32
	Body       []byte
}

// ParseCall parses an RPC call message from a complete record.
//
// Layout: xid, msg_type(=CALL), rpcvers(=2), prog, vers, proc,
// cred{flavor, opaque}, verf{flavor, opaque}, then procedure arguments.
//
// The remaining bytes after the envelope are returned in Body without being
// copied out of the record; callers must not retain them past the record's
// lifetime.
func ParseCall(data []byte) (*CallMessage, error) {
	r := bytes.NewReader(data)

	xid, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read xid: %w", err)
	}

	msgType, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read msg_type: %w", err)
	}
	if msgType != RPCCall {
		return nil, fmt.Errorf("not a call message: msg_type=%d", msgType)
	}

	rpcVers, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read rpc version: %w", err)
	}
	if rpcVers != RPCVersion {
		return nil, fmt.Errorf("unsupported rpc version %d", rpcVers)
	}

	call := &CallMessage{XID: xid}

	if call.Program, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	if call.Version, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if call.Procedure, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("read procedure: %w", err)
	}

	if call.CredFlavor, call.CredBody, err = decodeOpaqueAuth(r); err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if call.VerfFlavor, call.VerfBody, err = decodeOpaqueAuth(r); err != nil {
		return nil, fmt.Errorf("read verifier: %w", err)
	}

	// Whatever remains is the procedure body.
	offset := len(data) - r.Len()
	call.Body = data[offset:]

	return call, nil
}

// EncodeCall builds the wire bytes of an RPC call message.
func EncodeCall(call *CallMessage) ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := xdr.WriteUint32(buf, call.XID); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(buf, RPCCall); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(buf, RPCVersion); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(buf, call.Program); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(buf, call.Version); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(buf, call.Procedure); err != nil {
		return nil, err
	}

	if err := encodeOpaqueAuth(buf, call.CredFlavor, call.CredBody); err != nil {
		return nil, fmt.Errorf("write credentials: %w", err)
	}
	if err := encodeOpaqueAuth(buf, call.VerfFlavor, call.VerfBody); err != nil {
		return nil, fmt.Errorf("write verifier: %w", err)
	}

	if _, err := buf.Write(call.Body); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}

	return buf.Bytes(), nil
}

// ParseReply parses an accepted RPC reply message.
//
// Non-SUCCESS accept statuses are returned as a ReplyMessage with the status
// set; the caller decides whether that is an error. A denied reply
// (MSG_DENIED) yields no ReplyMessage and is reported via the returned error
// because the bridge never issues calls that can legitimately be denied.
func ParseReply(data []byte) (*ReplyMessage, error) {
	r := bytes.NewReader(data)

	xid, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read xid: %w", err)
	}

	msgType, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read msg_type: %w", err)
	}
	if msgType != RPCReply {
		return nil, fmt.Errorf("not a reply message: msg_type=%d", msgType)
	}

	replyStat, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read reply_stat: %w", err)
	}
	if replyStat != MsgAccepted {
		return nil, fmt.Errorf("rpc call denied: reply_stat=%d", replyStat)
	}

	// Verifier, then accept status.
	if _, _, err := decodeOpaqueAuth(r); err != nil {
		return nil, fmt.Errorf("read verifier: %w", err)
	}

	acceptStat, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read accept_stat: %w", err)
	}

	offset := len(data) - r.Len()
	return &ReplyMessage{
		XID:        xid,
		AcceptStat: acceptStat,
		Body:       data[offset:],
	}, nil
}

// EncodeAcceptedReply builds the wire bytes of an accepted reply carrying the
// given accept status and result body. The verifier is always AUTH_NULL.
func EncodeAcceptedReply(xid, acceptStat uint32, body []byte) ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := xdr.WriteUint32(buf, xid); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(buf, RPCReply); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(buf, MsgAccepted); err != nil {
		return nil, err
	}
	if err := encodeOpaqueAuth(buf, AuthNull, nil); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(buf, acceptStat); err != nil {
		return nil, err
	}
	if len(body) > 0 {
		if _, err := buf.Write(body); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// decodeOpaqueAuth reads an opaque_auth structure: flavor + opaque body.
func decodeOpaqueAuth(r *bytes.Reader) (uint32, []byte, error) {
	flavor, err := xdr.DecodeUint32(r)
	if err != nil {
		return 0, nil, fmt.Errorf("read flavor: %w", err)
	}

	length, err := xdr.DecodeUint32(r)
	if err != nil {
		return 0, nil, fmt.Errorf("read body length: %w", err)
	}
	if length > MaxAuthBodyLen {
		return 0, nil, fmt.Errorf("auth body length %d exceeds maximum %d", length, MaxAuthBodyLen)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}

	padding := (4 - (length % 4)) % 4
	for i := uint32(0); i < padding; i++ {
		if _, err := r.ReadByte(); err != nil {
			return 0, nil, fmt.Errorf("skip padding: %w", err)
		}
	}

	return flavor, body, nil
}

// encodeOpaqueAuth writes an opaque_auth structure: flavor + opaque body.
func encodeOpaqueAuth(buf *bytes.Buffer, flavor uint32, body []byte) error {
	if err := xdr.WriteUint32(buf, flavor); err != nil {
		return err
	}
	return xdr.WriteXDROpaque(buf, body)
}
