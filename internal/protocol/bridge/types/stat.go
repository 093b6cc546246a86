package types

import (
	"bytes"
	"fmt"
	"io"

	"github.com/catabozan/fdbridge/internal/protocol/xdr"
)

// ============================================================================
// STAT / FSTATAT / FSTAT
// ============================================================================

// StatRequest asks for the metadata of a path, following symlinks.
type StatRequest struct {
	Path string
}

// Encode writes the request in XDR layout.
func (m *StatRequest) Encode(buf *bytes.Buffer) error {
	if len(m.Path) > MaxPathLen {
		return fmt.Errorf("path too long: %d bytes (max %d)", len(m.Path), MaxPathLen)
	}
	return xdr.WriteXDRString(buf, m.Path)
}

// Decode reads the request from XDR layout.
func (m *StatRequest) Decode(r io.Reader) error {
	path, err := xdr.DecodeString(r)
	if err != nil {
		return fmt.Errorf("decode path: %w", err)
	}
	if len(path) > MaxPathLen {
		return fmt.Errorf("path too long: %d bytes (max %d)", len(path), MaxPathLen)
	}
	m.Path = path
	return nil
}

// FstatAtRequest asks for the metadata of a path relative to a directory
// handle. Every host spelling of directory-relative stat (follow or not,
// empty path against the handle itself) funnels through this request, with
// Flags encoding the variant. Dir may be the AT_FDCWD sentinel.
type FstatAtRequest struct {
	Dir   int32
	Path  string
	Flags uint32
}

// Encode writes the request in XDR layout.
func (m *FstatAtRequest) Encode(buf *bytes.Buffer) error {
	if len(m.Path) > MaxPathLen {
		return fmt.Errorf("path too long: %d bytes (max %d)", len(m.Path), MaxPathLen)
	}
	if err := xdr.WriteInt32(buf, m.Dir); err != nil {
		return err
	}
	if err := xdr.WriteXDRString(buf, m.Path); err != nil {
		return err
	}
	return xdr.WriteUint32(buf, m.Flags)
}

// Decode reads the request from XDR layout.
func (m *FstatAtRequest) Decode(r io.Reader) error {
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

	m.Flags, err = xdr.DecodeUint32(r)
	return err
}

// FstatRequest asks for the metadata of an open handle.
type FstatRequest struct {
	Handle int32
}

// Encode writes the request in XDR layout.
func (m *FstatRequest) Encode(buf *bytes.Buffer) error {
	return xdr.WriteInt32(buf, m.Handle)
}

// Decode reads the request from XDR layout.
func (m *FstatRequest) Decode(r io.Reader) error {
	var err error
	m.Handle, err = xdr.DecodeInt32(r)
	return err
}

// StatResponse carries the outcome of the stat family. On success the record
// is populated from the kernel result; on failure it is zeroed so the wire
// content is deterministic.
type StatResponse struct {
	Result int32
	Errno  int32
	Stat   StatRecord
}

// Encode writes the response in XDR layout.
func (m *StatResponse) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt32(buf, m.Result); err != nil {
		return err
	}
	if err := xdr.WriteInt32(buf, m.Errno); err != nil {
		return err
	}
	return m.Stat.Encode(buf)
}

// Decode reads the response from XDR layout.
func (m *StatResponse) Decode(r io.Reader) error {
	var err error
	if m.Result, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	if m.Errno, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	return m.Stat.Decode(r)
}
