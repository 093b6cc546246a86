package handlers

import (
	"golang.org/x/sys/unix"

	"github.com/catabozan/fdbridge/internal/logger"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
)

// Write writes the request's byte string to the descriptor behind a handle
// at its current position. Partial writes surface as-is in the result count.
//
// Oversized payloads never reach this handler: the codec refuses bodies
// above the payload bound, and the shim chunks larger writes client-side.
func (h *Handler) Write(req *types.WriteRequest) *types.WriteResponse {
	fd, err := h.Table.Translate(req.Handle)
	if err != nil {
		return &types.WriteResponse{Result: -1, Errno: int32(unix.EBADF)}
	}

	n, err := unix.Write(fd, req.Data)
	if err != nil {
		h.Log.Debug("WRITE failed",
			logger.KeyHandle, req.Handle,
			logger.KeyErrno, types.ErrnoOf(err))
		return &types.WriteResponse{Result: -1, Errno: types.ErrnoOf(err)}
	}

	h.Log.Debug("WRITE",
		logger.KeyHandle, req.Handle,
		logger.KeyBytesWritten, n)
	return &types.WriteResponse{Result: int32(n), Errno: 0}
}

// Pwrite is Write at an absolute offset, mirroring pwrite(2). Partial writes
// are returned as-is, without server-side retry.
func (h *Handler) Pwrite(req *types.PwriteRequest) *types.WriteResponse {
	fd, err := h.Table.Translate(req.Handle)
	if err != nil {
		return &types.WriteResponse{Result: -1, Errno: int32(unix.EBADF)}
	}

	n, err := unix.Pwrite(fd, req.Data, req.Offset)
	if err != nil {
		h.Log.Debug("PWRITE failed",
			logger.KeyHandle, req.Handle,
			logger.KeyOffset, req.Offset,
			logger.KeyErrno, types.ErrnoOf(err))
		return &types.WriteResponse{Result: -1, Errno: types.ErrnoOf(err)}
	}

	h.Log.Debug("PWRITE",
		logger.KeyHandle, req.Handle,
		logger.KeyOffset, req.Offset,
		logger.KeyBytesWritten, n)
	return &types.WriteResponse{Result: int32(n), Errno: 0}
}
