package handlers

import (
	"golang.org/x/sys/unix"

	"github.com/catabozan/fdbridge/internal/logger"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
)

// Open opens a file by path on the server's behalf and installs the new
// kernel descriptor into the translation table.
//
// On success the fresh client handle is returned in both the Handle and
// Result fields. On kernel failure both are -1 with the captured error. If
// the table has no free slot the kernel descriptor is closed before the
// table-full error is reported, so a failed install never leaks.
func (h *Handler) Open(req *types.OpenRequest) *types.OpenResponse {
	fd, err := unix.Open(req.Path, int(req.Flags), req.Mode)
	if err != nil {
		h.Log.Debug("OPEN failed",
			logger.KeyPath, req.Path,
			logger.KeyErrno, types.ErrnoOf(err))
		return &types.OpenResponse{Result: -1, Errno: types.ErrnoOf(err), Handle: -1}
	}

	handle, err := h.Table.Install(fd)
	if err != nil {
		// The kernel descriptor must not outlive the failed mapping.
		_ = unix.Close(fd)
		h.Log.Warn("OPEN dropped: translation table full", logger.KeyPath, req.Path)
		return &types.OpenResponse{Result: -1, Errno: int32(unix.EMFILE), Handle: -1}
	}

	h.Log.Debug("OPEN",
		logger.KeyPath, req.Path,
		logger.KeyFlags, req.Flags,
		logger.KeyHandle, handle)
	return &types.OpenResponse{Result: handle, Errno: 0, Handle: handle}
}

// OpenAt opens a path relative to a previously opened directory handle.
// The AT_FDCWD sentinel passes through to the kernel untranslated; any other
// directory value must be a live handle.
func (h *Handler) OpenAt(req *types.OpenAtRequest) *types.OpenResponse {
	dirfd := unix.AT_FDCWD
	if req.Dir != unix.AT_FDCWD {
		fd, err := h.Table.Translate(req.Dir)
		if err != nil {
			return &types.OpenResponse{Result: -1, Errno: int32(unix.EBADF), Handle: -1}
		}
		dirfd = fd
	}

	fd, err := unix.Openat(dirfd, req.Path, int(req.Flags), req.Mode)
	if err != nil {
		h.Log.Debug("OPENAT failed",
			logger.KeyPath, req.Path,
			logger.KeyErrno, types.ErrnoOf(err))
		return &types.OpenResponse{Result: -1, Errno: types.ErrnoOf(err), Handle: -1}
	}

	handle, err := h.Table.Install(fd)
	if err != nil {
		_ = unix.Close(fd)
		h.Log.Warn("OPENAT dropped: translation table full", logger.KeyPath, req.Path)
		return &types.OpenResponse{Result: -1, Errno: int32(unix.EMFILE), Handle: -1}
	}

	h.Log.Debug("OPENAT",
		logger.KeyPath, req.Path,
		logger.KeyHandle, handle)
	return &types.OpenResponse{Result: handle, Errno: 0, Handle: handle}
}
