package types

import (
	"bytes"
	"fmt"
	"io"

	"github.com/catabozan/fdbridge/internal/protocol/xdr"
)

// ============================================================================
// OPEN / OPENAT
// ============================================================================

// OpenRequest asks the server to open a file by absolute or server-relative
// path. Flags and mode carry the open(2) flag bits and creation mode.
type OpenRequest struct {
	Path  string
	Flags int32
	Mode  uint32
}

// Encode writes the request in XDR layout.
func (m *OpenRequest) Encode(buf *bytes.Buffer) error {
	if len(m.Path) > MaxPathLen {
		return fmt.Errorf("path too long: %d bytes (max %d)", len(m.Path), MaxPathLen)
	}
	if err := xdr.WriteXDRString(buf, m.Path); err != nil {
		return err
	}
	if err := xdr.WriteInt32(buf, m.Flags); err != nil {
		return err
	}
	return xdr.WriteUint32(buf, m.Mode)
}

// Decode reads the request from XDR layout.
func (m *OpenRequest) Decode(r io.Reader) error {
	path, err := xdr.DecodeString(r)
	if err != nil {
		return fmt.Errorf("decode path: %w", err)
	}
	if len(path) > MaxPathLen {
		return fmt.Errorf("path too long: %d bytes (max %d)", len(path), MaxPathLen)
	}
	m.Path = path

	if m.Flags, err = xdr.DecodeInt32(r); err != nil {
		return fmt.Errorf("decode flags: %w", err)
	}
	if m.Mode, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("decode mode: %w", err)
	}
	return nil
}

// OpenAtRequest asks the server to open a path relative to a previously
// opened directory handle. Dir may be the AT_FDCWD sentinel, which the
// server passes through to the kernel untranslated.
type OpenAtRequest struct {
	Dir   int32
	Path  string
	Flags int32
	Mode  uint32
}

// Encode writes the request in XDR layout.
func (m *OpenAtRequest) Encode(buf *bytes.Buffer) error {
	if len(m.Path) > MaxPathLen {
		return fmt.Errorf("path too long: %d bytes (max %d)", len(m.Path), MaxPathLen)
	}
	if err := xdr.WriteInt32(buf, m.Dir); err != nil {
		return err
	}
	if err := xdr.WriteXDRString(buf, m.Path); err != nil {
		return err
	}
	if err := xdr.WriteInt32(buf, m.Flags); err != nil {
		return err
	}
	return xdr.WriteUint32(buf, m.Mode)
}

// Decode reads the request from XDR layout.
func (m *OpenAtRequest) Decode(r io.Reader) error {
	var err error
	if m.Dir, err = xdr.DecodeInt32(r); err != nil {
		return fmt.Errorf("decode dir: %w", err)
	}

	path, err := xdr.DecodeString(r)
	if err != nil {
		return fmt.Errorf("decode path: %w", err)
	}
	if len(path) > MaxPathLen {
		return fmt.Errorf("path too long: %d bytes (max %d)", len(path), MaxPathLen)
	}
	m.Path = path

	if m.Flags, err = xdr.DecodeInt32(r); err != nil {
		return fmt.Errorf("decode flags: %w", err)
	}
	if m.Mode, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("decode mode: %w", err)
	}
	return nil
}

// OpenResponse carries the outcome of OPEN and OPENAT. On success Handle is
// the freshly installed client handle and Result repeats it; on failure both
// are -1 and Errno holds the captured kernel error.
type OpenResponse struct {
	Result int32
	Errno  int32
	Handle int32
}

// Encode writes the response in XDR layout.
func (m *OpenResponse) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt32(buf, m.Result); err != nil {
		return err
	}
	if err := xdr.WriteInt32(buf, m.Errno); err != nil {
		return err
	}
	return xdr.WriteInt32(buf, m.Handle)
}

// Decode reads the response from XDR layout.
func (m *OpenResponse) Decode(r io.Reader) error {
	var err error
	if m.Result, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	if m.Errno, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	m.Handle, err = xdr.DecodeInt32(r)
	return err
}
