package handlers

import (
	"golang.org/x/sys/unix"

	"github.com/catabozan/fdbridge/internal/logger"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
)

// Stat returns the metadata of a path, following symlinks.
//
// The response record is populated from the kernel result on success and
// left fully zeroed on failure, so the wire content is deterministic either
// way.
func (h *Handler) Stat(req *types.StatRequest) *types.StatResponse {
	var st unix.Stat_t
	if err := unix.Stat(req.Path, &st); err != nil {
		h.Log.Debug("STAT failed",
			logger.KeyPath, req.Path,
			logger.KeyErrno, types.ErrnoOf(err))
		return &types.StatResponse{Result: -1, Errno: types.ErrnoOf(err)}
	}

	resp := &types.StatResponse{Result: 0, Errno: 0}
	resp.Stat.FromKernel(&st)
	h.Log.Debug("STAT", logger.KeyPath, req.Path, "size", st.Size)
	return resp
}

// FstatAt returns the metadata of a path relative to a directory handle.
// The flags pass through to the kernel: AT_SYMLINK_NOFOLLOW selects the
// no-follow spelling and AT_EMPTY_PATH stats the handle itself.
func (h *Handler) FstatAt(req *types.FstatAtRequest) *types.StatResponse {
	dirfd := unix.AT_FDCWD
	if req.Dir != unix.AT_FDCWD {
		fd, err := h.Table.Translate(req.Dir)
		if err != nil {
			return &types.StatResponse{Result: -1, Errno: int32(unix.EBADF)}
		}
		dirfd = fd
	}

	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, req.Path, &st, int(req.Flags)); err != nil {
		h.Log.Debug("FSTATAT failed",
			logger.KeyPath, req.Path,
			logger.KeyFlags, req.Flags,
			logger.KeyErrno, types.ErrnoOf(err))
		return &types.StatResponse{Result: -1, Errno: types.ErrnoOf(err)}
	}

	resp := &types.StatResponse{Result: 0, Errno: 0}
	resp.Stat.FromKernel(&st)
	h.Log.Debug("FSTATAT", logger.KeyPath, req.Path, logger.KeyFlags, req.Flags)
	return resp
}

// Fstat returns the metadata of an open handle.
func (h *Handler) Fstat(req *types.FstatRequest) *types.StatResponse {
	fd, err := h.Table.Translate(req.Handle)
	if err != nil {
		return &types.StatResponse{Result: -1, Errno: int32(unix.EBADF)}
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		h.Log.Debug("FSTAT failed",
			logger.KeyHandle, req.Handle,
			logger.KeyErrno, types.ErrnoOf(err))
		return &types.StatResponse{Result: -1, Errno: types.ErrnoOf(err)}
	}

	resp := &types.StatResponse{Result: 0, Errno: 0}
	resp.Stat.FromKernel(&st)
	h.Log.Debug("FSTAT", logger.KeyHandle, req.Handle)
	return resp
}
