package types

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/catabozan/fdbridge/internal/protocol/xdr"
)

// ============================================================================
// Shared Wire Records
// ============================================================================

// TimeSpec is a file timestamp: seconds plus nanoseconds.
type TimeSpec struct {
	Sec  int64
	Nsec uint32
}

// Encode writes the timestamp in XDR layout.
func (t *TimeSpec) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt64(buf, t.Sec); err != nil {
		return err
	}
	return xdr.WriteUint32(buf, t.Nsec)
}

// Decode reads the timestamp from XDR layout.
func (t *TimeSpec) Decode(r io.Reader) error {
	var err error
	if t.Sec, err = xdr.DecodeInt64(r); err != nil {
		return err
	}
	t.Nsec, err = xdr.DecodeUint32(r)
	return err
}

// StatRecord is the flattened view of file metadata carried by value in
// stat-family responses. On failure every field is zeroed before encoding so
// the wire content is deterministic.
type StatRecord struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Blksize int32
	Blocks  int64
	Atime   TimeSpec
	Mtime   TimeSpec
	Ctime   TimeSpec
}

// FromKernel fills the record from a kernel stat result.
func (s *StatRecord) FromKernel(st *unix.Stat_t) {
	s.Dev = uint64(st.Dev)
	s.Ino = st.Ino
	s.Mode = st.Mode
	s.Nlink = uint32(st.Nlink)
	s.UID = st.Uid
	s.GID = st.Gid
	s.Rdev = uint64(st.Rdev)
	s.Size = st.Size
	s.Blksize = int32(st.Blksize)
	s.Blocks = st.Blocks
	s.Atime = TimeSpec{Sec: st.Atim.Sec, Nsec: uint32(st.Atim.Nsec)}
	s.Mtime = TimeSpec{Sec: st.Mtim.Sec, Nsec: uint32(st.Mtim.Nsec)}
	s.Ctime = TimeSpec{Sec: st.Ctim.Sec, Nsec: uint32(st.Ctim.Nsec)}
}

// ToKernel copies the record into a kernel stat structure. The shim uses
// this to fill the caller's buffer.
func (s *StatRecord) ToKernel(st *unix.Stat_t) {
	*st = unix.Stat_t{}
	st.Dev = uint64(s.Dev)
	st.Ino = s.Ino
	st.Mode = s.Mode
	st.Nlink = uint64(s.Nlink)
	st.Uid = s.UID
	st.Gid = s.GID
	st.Rdev = uint64(s.Rdev)
	st.Size = s.Size
	st.Blksize = int64(s.Blksize)
	st.Blocks = s.Blocks
	st.Atim = unix.Timespec{Sec: s.Atime.Sec, Nsec: int64(s.Atime.Nsec)}
	st.Mtim = unix.Timespec{Sec: s.Mtime.Sec, Nsec: int64(s.Mtime.Nsec)}
	st.Ctim = unix.Timespec{Sec: s.Ctime.Sec, Nsec: int64(s.Ctime.Nsec)}
}

// Encode writes the record in XDR layout, fields in declaration order.
func (s *StatRecord) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteUint64(buf, s.Dev); err != nil {
		return err
	}
	if err := xdr.WriteUint64(buf, s.Ino); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, s.Mode); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, s.Nlink); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, s.UID); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, s.GID); err != nil {
		return err
	}
	if err := xdr.WriteUint64(buf, s.Rdev); err != nil {
		return err
	}
	if err := xdr.WriteInt64(buf, s.Size); err != nil {
		return err
	}
	if err := xdr.WriteInt32(buf, s.Blksize); err != nil {
		return err
	}
	if err := xdr.WriteInt64(buf, s.Blocks); err != nil {
		return err
	}
	if err := s.Atime.Encode(buf); err != nil {
		return err
	}
	if err := s.Mtime.Encode(buf); err != nil {
		return err
	}
	return s.Ctime.Encode(buf)
}

// Decode reads the record from XDR layout.
func (s *StatRecord) Decode(r io.Reader) error {
	var err error
	if s.Dev, err = xdr.DecodeUint64(r); err != nil {
		return err
	}
	if s.Ino, err = xdr.DecodeUint64(r); err != nil {
		return err
	}
	if s.Mode, err = xdr.DecodeUint32(r); err != nil {
		return err
	}
	if s.Nlink, err = xdr.DecodeUint32(r); err != nil {
		return err
	}
	if s.UID, err = xdr.DecodeUint32(r); err != nil {
		return err
	}
	if s.GID, err = xdr.DecodeUint32(r); err != nil {
		return err
	}
	if s.Rdev, err = xdr.DecodeUint64(r); err != nil {
		return err
	}
	if s.Size, err = xdr.DecodeInt64(r); err != nil {
		return err
	}
	if s.Blksize, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	if s.Blocks, err = xdr.DecodeInt64(r); err != nil {
		return err
	}
	if err = s.Atime.Decode(r); err != nil {
		return err
	}
	if err = s.Mtime.Decode(r); err != nil {
		return err
	}
	return s.Ctime.Decode(r)
}

// FlockRecord is a file-lock description carried inside the FCNTL argument
// union: lock type, seek origin, 64-bit range, and owning pid.
type FlockRecord struct {
	Type   int32
	Whence int32
	Start  int64
	Len    int64
	PID    int32
}

// FromKernel fills the record from a kernel flock structure.
func (f *FlockRecord) FromKernel(fl *unix.Flock_t) {
	f.Type = int32(fl.Type)
	f.Whence = int32(fl.Whence)
	f.Start = fl.Start
	f.Len = fl.Len
	f.PID = fl.Pid
}

// ToKernel copies the record into a kernel flock structure.
func (f *FlockRecord) ToKernel(fl *unix.Flock_t) {
	*fl = unix.Flock_t{
		Type:   int16(f.Type),
		Whence: int16(f.Whence),
		Start:  f.Start,
		Len:    f.Len,
		Pid:    f.PID,
	}
}

// Encode writes the record in XDR layout.
func (f *FlockRecord) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt32(buf, f.Type); err != nil {
		return err
	}
	if err := xdr.WriteInt32(buf, f.Whence); err != nil {
		return err
	}
	if err := xdr.WriteInt64(buf, f.Start); err != nil {
		return err
	}
	if err := xdr.WriteInt64(buf, f.Len); err != nil {
		return err
	}
	return xdr.WriteInt32(buf, f.PID)
}

// Decode reads the record from XDR layout.
func (f *FlockRecord) Decode(r io.Reader) error {
	var err error
	if f.Type, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	if f.Whence, err = xdr.DecodeInt32(r); err != nil {
		return err
	}
	if f.Start, err = xdr.DecodeInt64(r); err != nil {
		return err
	}
	if f.Len, err = xdr.DecodeInt64(r); err != nil {
		return err
	}
	f.PID, err = xdr.DecodeInt32(r)
	return err
}

// ============================================================================
// FCNTL Argument Union
// ============================================================================

// FcntlArg union discriminants.
const (
	ArgNone  uint32 = 0
	ArgInt   uint32 = 1
	ArgFlock uint32 = 2
)

// FcntlArg is the discriminated union carried by the FCNTL procedure in both
// directions: { none | signed integer | file-lock record }. The discriminant
// determines which arm is present on the wire; the empty arm has no body.
type FcntlArg struct {
	Tag  uint32
	Int  int32
	Lock FlockRecord
}

// Encode writes the union: discriminant, then the selected arm.
func (a *FcntlArg) Encode(buf *bytes.Buffer) error {
	if err := xdr.EncodeUnionDiscriminant(buf, a.Tag); err != nil {
		return err
	}
	switch a.Tag {
	case ArgNone:
		return nil
	case ArgInt:
		return xdr.WriteInt32(buf, a.Int)
	case ArgFlock:
		return a.Lock.Encode(buf)
	default:
		return fmt.Errorf("unknown fcntl arg tag %d", a.Tag)
	}
}

// Decode reads the union: discriminant, then the selected arm.
func (a *FcntlArg) Decode(r io.Reader) error {
	tag, err := xdr.DecodeUnionDiscriminant(r)
	if err != nil {
		return err
	}
	a.Tag = tag

	switch tag {
	case ArgNone:
		return nil
	case ArgInt:
		a.Int, err = xdr.DecodeInt32(r)
		return err
	case ArgFlock:
		return a.Lock.Decode(r)
	default:
		return fmt.Errorf("unknown fcntl arg tag %d", tag)
	}
}

// ============================================================================
// FCNTL Command Classification
// ============================================================================

// FcntlArgClass returns which union arm a command's argument travels in.
// The client encodes with this table and the server decodes with it; the
// classification lives here so the two sides can never disagree.
func FcntlArgClass(cmd uint32) uint32 {
	switch cmd {
	case unix.F_DUPFD, unix.F_DUPFD_CLOEXEC, unix.F_SETFD, unix.F_SETFL:
		return ArgInt
	case unix.F_GETLK, unix.F_SETLK, unix.F_SETLKW,
		unix.F_OFD_GETLK, unix.F_OFD_SETLK, unix.F_OFD_SETLKW:
		return ArgFlock
	default:
		return ArgNone
	}
}

// IsDupCommand reports whether the command duplicates a descriptor with a
// caller-supplied lower bound, which the server must satisfy from the
// translation table rather than the kernel's descriptor space.
func IsDupCommand(cmd uint32) bool {
	return cmd == unix.F_DUPFD || cmd == unix.F_DUPFD_CLOEXEC
}

// IsGetLockCommand reports whether the command queries a lock record, which
// makes the response's output union carry the (possibly modified) record back.
func IsGetLockCommand(cmd uint32) bool {
	return cmd == unix.F_GETLK || cmd == unix.F_OFD_GETLK
}

// IsBlockingLockCommand reports whether the command may block indefinitely
// in the kernel. A blocking lock holds the session for its whole duration,
// stalling every later request on that session.
func IsBlockingLockCommand(cmd uint32) bool {
	return cmd == unix.F_SETLKW || cmd == unix.F_OFD_SETLKW
}
