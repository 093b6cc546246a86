package types

import (
	"bytes"
	"fmt"
	"io"

	"github.com/catabozan/fdbridge/internal/protocol/xdr"
)

// ============================================================================
// READ / PREAD
// ============================================================================

// ReadRequest asks the server to read up to Count bytes from the descriptor
// behind Handle at its current position.
type ReadRequest struct {
	Handle int32
	Count  uint32
}

// Encode writes the request in XDR layout.
func (m *ReadRequest) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt32(buf, m.Handle); err != nil {
		return err
	}
	return xdr.WriteUint32(buf, m.Count)
}

// Decode reads the request from XDR layout.
func (m *ReadRequest) Decode(r io.Reader) error {
	var err error
	if m.Handle, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	m.Count, err = xdr.DecodeUint32(r)
	return err
}

// PreadRequest is ReadRequest plus an absolute offset; the descriptor's
// position is left untouched, mirroring pread(2).
type PreadRequest struct {
	Handle int32
	Count  uint32
	Offset int64
}

// Encode writes the request in XDR layout.
func (m *PreadRequest) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt32(buf, m.Handle); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, m.Count); err != nil {
		return err
	}
	return xdr.WriteInt64(buf, m.Offset)
}

// Decode reads the request from XDR layout.
func (m *PreadRequest) Decode(r io.Reader) error {
	var err error
	if m.Handle, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	if m.Count, err = xdr.DecodeUint32(r); err != nil {
		return err
	}
	m.Offset, err = xdr.DecodeInt64(r)
	return err
}

// ReadResponse carries the outcome of READ and PREAD. Data's length is the
// bytes actually read; Result repeats that count (or -1 on failure). A read
// at end-of-file is Result = 0 with an empty Data.
type ReadResponse struct {
	Result int32
	Errno  int32
	Data   []byte
}

// Encode writes the response in XDR layout.
func (m *ReadResponse) Encode(buf *bytes.Buffer) error {
	if len(m.Data) > MaxPayload {
		return fmt.Errorf("read payload too large: %d bytes (max %d)", len(m.Data), MaxPayload)
	}
	if err := xdr.WriteInt32(buf, m.Result); err != nil {
		return err
	}
	if err := xdr.WriteInt32(buf, m.Errno); err != nil {
		return err
	}
	return xdr.WriteXDROpaque(buf, m.Data)
}

// Decode reads the response from XDR layout.
func (m *ReadResponse) Decode(r io.Reader) error {
	var err error
	if m.Result, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	if m.Errno, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	m.Data, err = xdr.DecodeOpaque(r)
	return err
}

// ============================================================================
// WRITE / PWRITE
// ============================================================================

// WriteRequest asks the server to write Data to the descriptor behind Handle
// at its current position.
type WriteRequest struct {
	Handle int32
	Data   []byte
}

// Encode writes the request in XDR layout.
func (m *WriteRequest) Encode(buf *bytes.Buffer) error {
	if len(m.Data) > MaxPayload {
		return fmt.Errorf("write payload too large: %d bytes (max %d)", len(m.Data), MaxPayload)
	}
	if err := xdr.WriteInt32(buf, m.Handle); err != nil {
		return err
	}
	return xdr.WriteXDROpaque(buf, m.Data)
}

// Decode reads the request from XDR layout.
func (m *WriteRequest) Decode(r io.Reader) error {
	var err error
	if m.Handle, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	m.Data, err = xdr.DecodeOpaque(r)
	return err
}

// PwriteRequest is WriteRequest plus an absolute offset, mirroring pwrite(2).
type PwriteRequest struct {
	Handle int32
	Data   []byte
	Offset int64
}

// Encode writes the request in XDR layout.
func (m *PwriteRequest) Encode(buf *bytes.Buffer) error {
	if len(m.Data) > MaxPayload {
		return fmt.Errorf("write payload too large: %d bytes (max %d)", len(m.Data), MaxPayload)
	}
	if err := xdr.WriteInt32(buf, m.Handle); err != nil {
		return err
	}
	if err := xdr.WriteXDROpaque(buf, m.Data); err != nil {
		return err
	}
	return xdr.WriteInt64(buf, m.Offset)
}

// Decode reads the request from XDR layout.
func (m *PwriteRequest) Decode(r io.Reader) error {
	var err error
	if m.Handle, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	if m.Data, err = xdr.DecodeOpaque(r); err != nil {
		return err
	}
	m.Offset, err = xdr.DecodeInt64(r)
	return err
}

// WriteResponse carries the outcome of WRITE and PWRITE: the bytes-written
// count (partial writes surface as-is) and the captured kernel error.
type WriteResponse struct {
	Result int32
	Errno  int32
}

// Encode writes the response in XDR layout.
func (m *WriteResponse) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt32(buf, m.Result); err != nil {
		return err
	}
	return xdr.WriteInt32(buf, m.Errno)
}

// Decode reads the response from XDR layout.
func (m *WriteResponse) Decode(r io.Reader) error {
	var err error
	if m.Result, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	m.Errno, err = xdr.DecodeInt32(r)
	return err
}
