package rpc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFragmentSize is the maximum allowed record-marking fragment size.
// Must be larger than the 1 MiB payload cap to accommodate the RPC envelope
// and procedure headers around a maximum-size read or write body.
const MaxFragmentSize = (1 << 20) + (1 << 18) // 1MB + 256KB headroom

// MaxRecordSize bounds a fully reassembled multi-fragment record.
const MaxRecordSize = MaxFragmentSize

// FragmentHeader is a parsed RPC record-marking fragment header.
//
// The header is 4 bytes:
//   - Bit 31: last-fragment flag (1 = last, 0 = more fragments follow)
//   - Bits 0-30: fragment length in bytes
type FragmentHeader struct {
	IsLast bool
	Length uint32
}

// ReadFragmentHeader reads and parses the 4-byte fragment header.
//
// EOF errors are returned unwrapped so callers can detect a normal peer
// disconnect between records.
func ReadFragmentHeader(r io.Reader) (*FragmentHeader, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	header := binary.BigEndian.Uint32(buf[:])
	return &FragmentHeader{
		IsLast: (header & 0x80000000) != 0,
		Length: header & 0x7FFFFFFF,
	}, nil
}

// ReadRecord reads one complete record: fragments are read and concatenated
// until one carries the last-fragment flag.
//
// Both individual fragments and the reassembled record are bounded to keep a
// corrupt or hostile header from forcing a huge allocation. An EOF before the
// first header byte is returned unwrapped (normal disconnect); EOF anywhere
// else is a truncated record and reported as such.
func ReadRecord(r io.Reader) ([]byte, error) {
	var record []byte

	for {
		header, err := ReadFragmentHeader(r)
		if err != nil {
			if len(record) == 0 && err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read fragment header: %w", err)
		}

		if header.Length > MaxFragmentSize {
			return nil, fmt.Errorf("fragment too large: %d bytes", header.Length)
		}
		if uint64(len(record))+uint64(header.Length) > MaxRecordSize {
			return nil, fmt.Errorf("record too large: %d bytes", len(record)+int(header.Length))
		}

		fragment := make([]byte, header.Length)
		if _, err := io.ReadFull(r, fragment); err != nil {
			return nil, fmt.Errorf("read fragment body: %w", err)
		}

		if record == nil && header.IsLast {
			// Single-fragment fast path, no concatenation needed.
			return fragment, nil
		}
		record = append(record, fragment...)

		if header.IsLast {
			return record, nil
		}
	}
}

// WriteRecord writes data as a single record-marking fragment with the
// last-fragment flag set. Every message the bridge produces fits in one
// fragment, so multi-fragment writes are never generated.
func WriteRecord(w io.Writer, data []byte) error {
	if len(data) > MaxFragmentSize {
		return fmt.Errorf("record too large to frame: %d bytes", len(data))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data))|0x80000000)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write fragment header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write fragment body: %w", err)
	}
	return nil
}
