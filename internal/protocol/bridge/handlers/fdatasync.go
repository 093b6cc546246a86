package handlers

import (
	"golang.org/x/sys/unix"

	"github.com/catabozan/fdbridge/internal/logger"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
)

// Fdatasync flushes the data of the descriptor behind a handle to stable
// storage, returning the kernel result and captured error.
func (h *Handler) Fdatasync(req *types.FdatasyncRequest) *types.FdatasyncResponse {
	fd, err := h.Table.Translate(req.Handle)
	if err != nil {
		return &types.FdatasyncResponse{Result: -1, Errno: int32(unix.EBADF)}
	}

	if err := unix.Fdatasync(fd); err != nil {
		h.Log.Debug("FDATASYNC failed",
			logger.KeyHandle, req.Handle,
			logger.KeyErrno, types.ErrnoOf(err))
		return &types.FdatasyncResponse{Result: -1, Errno: types.ErrnoOf(err)}
	}

	h.Log.Debug("FDATASYNC", logger.KeyHandle, req.Handle)
	return &types.FdatasyncResponse{Result: 0, Errno: 0}
}
