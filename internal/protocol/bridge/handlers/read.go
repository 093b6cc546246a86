package handlers

import (
	"golang.org/x/sys/unix"

	"github.com/catabozan/fdbridge/internal/logger"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
	"github.com/catabozan/fdbridge/pkg/bufpool"
)

// Read reads up to the requested count from the descriptor behind a handle
// at its current position.
//
// The count is clamped to the payload bound before the kernel call. The
// returned Data slice comes from the buffer pool; the dispatcher returns it
// after encoding the response. A zero-byte result at end-of-file is
// Result = 0 with an empty byte string.
func (h *Handler) Read(req *types.ReadRequest) *types.ReadResponse {
	fd, err := h.Table.Translate(req.Handle)
	if err != nil {
		return &types.ReadResponse{Result: -1, Errno: int32(unix.EBADF)}
	}

	count := req.Count
	if count > types.MaxPayload {
		count = types.MaxPayload
	}

	buf := bufpool.GetUint32(count)
	n, err := unix.Read(fd, buf)
	if err != nil {
		bufpool.Put(buf)
		h.Log.Debug("READ failed",
			logger.KeyHandle, req.Handle,
			logger.KeyErrno, types.ErrnoOf(err))
		return &types.ReadResponse{Result: -1, Errno: types.ErrnoOf(err)}
	}

	h.Log.Debug("READ",
		logger.KeyHandle, req.Handle,
		logger.KeyCount, count,
		logger.KeyBytesRead, n)
	return &types.ReadResponse{Result: int32(n), Errno: 0, Data: buf[:n]}
}

// Pread is Read at an absolute offset; the descriptor's position is left
// untouched.
func (h *Handler) Pread(req *types.PreadRequest) *types.ReadResponse {
	fd, err := h.Table.Translate(req.Handle)
	if err != nil {
		return &types.ReadResponse{Result: -1, Errno: int32(unix.EBADF)}
	}

	count := req.Count
	if count > types.MaxPayload {
		count = types.MaxPayload
	}

	buf := bufpool.GetUint32(count)
	n, err := unix.Pread(fd, buf, req.Offset)
	if err != nil {
		bufpool.Put(buf)
		h.Log.Debug("PREAD failed",
			logger.KeyHandle, req.Handle,
			logger.KeyOffset, req.Offset,
			logger.KeyErrno, types.ErrnoOf(err))
		return &types.ReadResponse{Result: -1, Errno: types.ErrnoOf(err)}
	}

	h.Log.Debug("PREAD",
		logger.KeyHandle, req.Handle,
		logger.KeyOffset, req.Offset,
		logger.KeyBytesRead, n)
	return &types.ReadResponse{Result: int32(n), Errno: 0, Data: buf[:n]}
}
