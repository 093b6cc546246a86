package handlers

import (
	"golang.org/x/sys/unix"

	"github.com/catabozan/fdbridge/internal/logger"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
)

// Close closes the kernel descriptor behind a handle and releases the
// translation slot.
//
// The slot is released only after a successful kernel close. On kernel
// failure the mapping stays installed: the descriptor may still be open in
// the kernel's view, and keeping the slot lets the client retry or observe
// a consistent failure.
func (h *Handler) Close(req *types.CloseRequest) *types.CloseResponse {
	fd, err := h.Table.Translate(req.Handle)
	if err != nil {
		return &types.CloseResponse{Result: -1, Errno: int32(unix.EBADF)}
	}

	if err := unix.Close(fd); err != nil {
		h.Log.Debug("CLOSE failed",
			logger.KeyHandle, req.Handle,
			logger.KeyErrno, types.ErrnoOf(err))
		return &types.CloseResponse{Result: -1, Errno: types.ErrnoOf(err)}
	}

	h.Table.Release(req.Handle)
	h.Log.Debug("CLOSE", logger.KeyHandle, req.Handle)
	return &types.CloseResponse{Result: 0, Errno: 0}
}
