package types

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestOpenMessages(t *testing.T) {
	t.Run("RequestRoundTrip", func(t *testing.T) {
		original := &OpenRequest{
			Path:  "/tmp/p3_tb_test.txt",
			Flags: int32(unix.O_CREAT | unix.O_WRONLY | unix.O_TRUNC),
			Mode:  0644,
		}

		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &OpenRequest{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, original, decoded)
	})

	t.Run("EncodedBytesAreStable", func(t *testing.T) {
		original := &OpenRequest{Path: "/a", Flags: 0, Mode: 0}
		first, err := EncodeMessage(original)
		require.NoError(t, err)
		second, err := EncodeMessage(original)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("RefusesOverlongPath", func(t *testing.T) {
		long := make([]byte, MaxPathLen+1)
		for i := range long {
			long[i] = 'a'
		}

		_, err := EncodeMessage(&OpenRequest{Path: string(long)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "path too long")
	})

	t.Run("OpenAtCarriesDirSentinel", func(t *testing.T) {
		original := &OpenAtRequest{
			Dir:   int32(unix.AT_FDCWD),
			Path:  "relative/file",
			Flags: int32(unix.O_RDONLY),
		}

		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &OpenAtRequest{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, original, decoded)
	})

	t.Run("ResponseRoundTrip", func(t *testing.T) {
		original := &OpenResponse{Result: 5, Errno: 0, Handle: 5}
		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &OpenResponse{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, original, decoded)
	})
}

func TestIOMessages(t *testing.T) {
	t.Run("PreadRequestRoundTrip", func(t *testing.T) {
		original := &PreadRequest{Handle: 4, Count: 255, Offset: 1 << 33}
		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &PreadRequest{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, original, decoded)
	})

	t.Run("ReadResponseCarriesPayload", func(t *testing.T) {
		payload := []byte("Hello from intercepted syscalls! This is a test message.")
		original := &ReadResponse{Result: int32(len(payload)), Errno: 0, Data: payload}

		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &ReadResponse{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, original.Result, decoded.Result)
		assert.Equal(t, payload, decoded.Data)
	})

	t.Run("EmptyReadAtEOF", func(t *testing.T) {
		original := &ReadResponse{Result: 0, Errno: 0, Data: []byte{}}
		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &ReadResponse{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, int32(0), decoded.Result)
		assert.Empty(t, decoded.Data)
	})

	t.Run("WriteRequestRefusesOversizedPayload", func(t *testing.T) {
		_, err := EncodeMessage(&WriteRequest{Handle: 3, Data: make([]byte, MaxPayload+1)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "payload too large")
	})

	t.Run("PwriteRequestRoundTrip", func(t *testing.T) {
		original := &PwriteRequest{Handle: 3, Data: []byte("ABCDE"), Offset: 5}
		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &PwriteRequest{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, original, decoded)
	})
}

func TestStatMessages(t *testing.T) {
	t.Run("StatRecordRoundTrip", func(t *testing.T) {
		original := &StatResponse{
			Result: 0,
			Errno:  0,
			Stat: StatRecord{
				Dev:     2050,
				Ino:     123456,
				Mode:    unix.S_IFREG | 0644,
				Nlink:   1,
				UID:     1000,
				GID:     1000,
				Size:    56,
				Blksize: 4096,
				Blocks:  8,
				Atime:   TimeSpec{Sec: 1700000000, Nsec: 500},
				Mtime:   TimeSpec{Sec: 1700000001, Nsec: 501},
				Ctime:   TimeSpec{Sec: 1700000002, Nsec: 502},
			},
		}

		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &StatResponse{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, original, decoded)
	})

	t.Run("FailedStatIsZeroed", func(t *testing.T) {
		original := &StatResponse{Result: -1, Errno: int32(unix.ENOENT)}
		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &StatResponse{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, int32(-1), decoded.Result)
		assert.Equal(t, int32(unix.ENOENT), decoded.Errno)
		assert.Equal(t, StatRecord{}, decoded.Stat)
	})

	t.Run("KernelConversionRoundTrip", func(t *testing.T) {
		var st unix.Stat_t
		record := StatRecord{
			Dev: 7, Ino: 9, Mode: unix.S_IFREG | 0600, Nlink: 2,
			UID: 1, GID: 2, Size: 4096, Blksize: 512, Blocks: 8,
			Mtime: TimeSpec{Sec: 99, Nsec: 7},
		}
		record.ToKernel(&st)

		var back StatRecord
		back.FromKernel(&st)
		assert.Equal(t, record, back)
	})
}

func TestFcntlMessages(t *testing.T) {
	t.Run("NoArgumentArm", func(t *testing.T) {
		original := &FcntlRequest{Handle: 3, Cmd: unix.F_GETFL}
		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &FcntlRequest{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, original, decoded)
	})

	t.Run("IntegerArm", func(t *testing.T) {
		original := &FcntlRequest{
			Handle: 3,
			Cmd:    unix.F_DUPFD,
			Arg:    FcntlArg{Tag: ArgInt, Int: 10},
		}
		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &FcntlRequest{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, original, decoded)
	})

	t.Run("FlockArm", func(t *testing.T) {
		original := &FcntlRequest{
			Handle: 3,
			Cmd:    unix.F_SETLK,
			Arg: FcntlArg{
				Tag: ArgFlock,
				Lock: FlockRecord{
					Type:   unix.F_WRLCK,
					Whence: 0,
					Start:  100,
					Len:    50,
					PID:    4321,
				},
			},
		}
		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &FcntlRequest{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, original, decoded)
	})

	t.Run("ResponseOutputUnion", func(t *testing.T) {
		original := &FcntlResponse{
			Result: 0,
			Out: FcntlArg{
				Tag:  ArgFlock,
				Lock: FlockRecord{Type: unix.F_UNLCK},
			},
		}
		wire, err := EncodeMessage(original)
		require.NoError(t, err)

		decoded := &FcntlResponse{}
		require.NoError(t, DecodeMessage(wire, decoded))
		assert.Equal(t, original, decoded)
	})

	t.Run("RejectsUnknownTag", func(t *testing.T) {
		bad := &FcntlArg{Tag: 7}
		buf := new(bytes.Buffer)
		require.Error(t, bad.Encode(buf))
	})
}

func TestFcntlClassification(t *testing.T) {
	t.Run("IntegerCommands", func(t *testing.T) {
		for _, cmd := range []uint32{unix.F_DUPFD, unix.F_DUPFD_CLOEXEC, unix.F_SETFD, unix.F_SETFL} {
			assert.Equal(t, ArgInt, FcntlArgClass(cmd), "cmd %d", cmd)
		}
	})

	t.Run("LockCommands", func(t *testing.T) {
		for _, cmd := range []uint32{unix.F_GETLK, unix.F_SETLK, unix.F_SETLKW} {
			assert.Equal(t, ArgFlock, FcntlArgClass(cmd), "cmd %d", cmd)
		}
	})

	t.Run("NoArgumentCommands", func(t *testing.T) {
		for _, cmd := range []uint32{unix.F_GETFD, unix.F_GETFL} {
			assert.Equal(t, ArgNone, FcntlArgClass(cmd), "cmd %d", cmd)
		}
	})

	t.Run("DupAndBlockingPredicates", func(t *testing.T) {
		assert.True(t, IsDupCommand(unix.F_DUPFD))
		assert.True(t, IsDupCommand(unix.F_DUPFD_CLOEXEC))
		assert.False(t, IsDupCommand(unix.F_SETFL))
		assert.True(t, IsBlockingLockCommand(unix.F_SETLKW))
		assert.False(t, IsBlockingLockCommand(unix.F_SETLK))
		assert.True(t, IsGetLockCommand(unix.F_GETLK))
	})
}

func TestErrnoOf(t *testing.T) {
	assert.Equal(t, int32(0), ErrnoOf(nil))
	assert.Equal(t, int32(unix.ENOENT), ErrnoOf(unix.ENOENT))
	assert.Equal(t, int32(unix.EIO), ErrnoOf(assert.AnError))
}
