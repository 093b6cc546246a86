package types

import (
	"bytes"
	"io"

	"github.com/catabozan/fdbridge/internal/protocol/xdr"
)

// ============================================================================
// FCNTL
// ============================================================================

// FcntlRequest carries a descriptor-attribute or locking command. The
// argument union's arm is determined by the command code via FcntlArgClass,
// which both sides consult, so the discriminant on the wire is redundant but
// kept for self-description and validation.
type FcntlRequest struct {
	Handle int32
	Cmd    uint32
	Arg    FcntlArg
}

// Encode writes the request in XDR layout.
func (m *FcntlRequest) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt32(buf, m.Handle); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, m.Cmd); err != nil {
		return err
	}
	return m.Arg.Encode(buf)
}

// Decode reads the request from XDR layout.
func (m *FcntlRequest) Decode(r io.Reader) error {
	var err error
	if m.Handle, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	if m.Cmd, err = xdr.DecodeUint32(r); err != nil {
		return err
	}
	return m.Arg.Decode(r)
}

// FcntlResponse carries the command result and an output union. Lock-query
// commands return the kernel-modified lock record in Out (flock arm); every
// other command leaves Out empty.
type FcntlResponse struct {
	Result int32
	Errno  int32
	Out    FcntlArg
}

// Encode writes the response in XDR layout.
func (m *FcntlResponse) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt32(buf, m.Result); err != nil {
		return err
	}
	if err := xdr.WriteInt32(buf, m.Errno); err != nil {
		return err
	}
	return m.Out.Encode(buf)
}

// Decode reads the response from XDR layout.
func (m *FcntlResponse) Decode(r io.Reader) error {
	var err error
	if m.Result, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	if m.Errno, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	return m.Out.Decode(r)
}
