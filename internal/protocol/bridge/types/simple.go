package types

import (
	"bytes"
	"io"

	"github.com/catabozan/fdbridge/internal/protocol/xdr"
)

// ============================================================================
// CLOSE / FDATASYNC
// ============================================================================

// CloseRequest releases the descriptor behind a handle.
type CloseRequest struct {
	Handle int32
}

// Encode writes the request in XDR layout.
func (m *CloseRequest) Encode(buf *bytes.Buffer) error {
	return xdr.WriteInt32(buf, m.Handle)
}

// Decode reads the request from XDR layout.
func (m *CloseRequest) Decode(r io.Reader) error {
	var err error
	m.Handle, err = xdr.DecodeInt32(r)
	return err
}

// CloseResponse carries the close(2) result and captured kernel error.
type CloseResponse struct {
	Result int32
	Errno  int32
}

// Encode writes the response in XDR layout.
func (m *CloseResponse) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt32(buf, m.Result); err != nil {
		return err
	}
	return xdr.WriteInt32(buf, m.Errno)
}

// Decode reads the response from XDR layout.
func (m *CloseResponse) Decode(r io.Reader) error {
	var err error
	if m.Result, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	m.Errno, err = xdr.DecodeInt32(r)
	return err
}

// FdatasyncRequest flushes the data of an open handle to stable storage.
type FdatasyncRequest struct {
	Handle int32
}

// Encode writes the request in XDR layout.
func (m *FdatasyncRequest) Encode(buf *bytes.Buffer) error {
	return xdr.WriteInt32(buf, m.Handle)
}

// Decode reads the request from XDR layout.
func (m *FdatasyncRequest) Decode(r io.Reader) error {
	var err error
	m.Handle, err = xdr.DecodeInt32(r)
	return err
}

// FdatasyncResponse carries the fdatasync(2) result and captured error.
type FdatasyncResponse struct {
	Result int32
	Errno  int32
}

// Encode writes the response in XDR layout.
func (m *FdatasyncResponse) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt32(buf, m.Result); err != nil {
		return err
	}
	return xdr.WriteInt32(buf, m.Errno)
}

// Decode reads the response from XDR layout.
func (m *FdatasyncResponse) Decode(r io.Reader) error {
	var err error
	if m.Result, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	m.Errno, err = xdr.DecodeInt32(r)
	return err
}

// ============================================================================
// Codec Convenience
// ============================================================================

// EncodeMessage encodes any wire message to a fresh byte slice.
func EncodeMessage(m xdr.XdrEncoder) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.Encode(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMessage decodes any wire message from a byte slice.
func DecodeMessage(data []byte, m xdr.XdrDecoder) error {
	return m.Decode(bytes.NewReader(data))
}
