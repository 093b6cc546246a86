package handlers

import (
	"golang.org/x/sys/unix"

	"github.com/catabozan/fdbridge/internal/logger"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
)

// Fcntl executes a descriptor-attribute or advisory-locking command.
//
// Command families:
//
//   - Duplicate with lower bound (F_DUPFD, F_DUPFD_CLOEXEC): the kernel
//     duplicates the server descriptor, then the new descriptor is installed
//     at the lowest free slot >= the integer argument. The bound applies to
//     the client handle space, not the kernel's; the kernel-side dup uses 0.
//     On table exhaustion the duplicate is closed before the error returns.
//   - Lock commands (F_GETLK/F_SETLK/F_SETLKW and the OFD variants): the
//     lock record passes to the kernel as a mutable copy; query commands
//     copy the kernel's answer back into the response's output union.
//   - Everything else: the kernel result is returned directly with an empty
//     output union.
//
// A blocking wait (F_SETLKW) is executed but holds the session for as long
// as the kernel blocks, stalling later requests on this connection, so it is
// logged as advisory.
func (h *Handler) Fcntl(req *types.FcntlRequest) *types.FcntlResponse {
	fd, err := h.Table.Translate(req.Handle)
	if err != nil {
		return &types.FcntlResponse{Result: -1, Errno: int32(unix.EBADF)}
	}

	cmd := int(req.Cmd)

	switch {
	case types.IsDupCommand(req.Cmd):
		return h.fcntlDup(fd, cmd, req)

	case types.FcntlArgClass(req.Cmd) == types.ArgFlock:
		return h.fcntlLock(fd, cmd, req)

	case types.FcntlArgClass(req.Cmd) == types.ArgInt:
		res, err := unix.FcntlInt(uintptr(fd), cmd, int(req.Arg.Int))
		if err != nil {
			return &types.FcntlResponse{Result: -1, Errno: types.ErrnoOf(err)}
		}
		return &types.FcntlResponse{Result: int32(res), Errno: 0}

	default:
		res, err := unix.FcntlInt(uintptr(fd), cmd, 0)
		if err != nil {
			return &types.FcntlResponse{Result: -1, Errno: types.ErrnoOf(err)}
		}
		return &types.FcntlResponse{Result: int32(res), Errno: 0}
	}
}

// fcntlDup duplicates the descriptor and installs the duplicate above the
// caller's lower bound.
func (h *Handler) fcntlDup(fd, cmd int, req *types.FcntlRequest) *types.FcntlResponse {
	nfd, err := unix.FcntlInt(uintptr(fd), cmd, 0)
	if err != nil {
		return &types.FcntlResponse{Result: -1, Errno: types.ErrnoOf(err)}
	}

	handle, err := h.Table.InstallFrom(nfd, req.Arg.Int)
	if err != nil {
		// The duplicate must not outlive the failed mapping.
		_ = unix.Close(nfd)
		h.Log.Warn("FCNTL dup dropped: translation table full",
			logger.KeyHandle, req.Handle)
		return &types.FcntlResponse{Result: -1, Errno: int32(unix.EMFILE)}
	}

	h.Log.Debug("FCNTL dup",
		logger.KeyHandle, req.Handle,
		"min", req.Arg.Int,
		"new_handle", handle)
	return &types.FcntlResponse{Result: handle, Errno: 0}
}

// fcntlLock runs a lock command with a mutable copy of the caller's record.
func (h *Handler) fcntlLock(fd, cmd int, req *types.FcntlRequest) *types.FcntlResponse {
	if types.IsBlockingLockCommand(req.Cmd) {
		h.Log.Warn("blocking lock request holds the session until granted",
			logger.KeyHandle, req.Handle)
	}

	var fl unix.Flock_t
	req.Arg.Lock.ToKernel(&fl)

	if err := unix.FcntlFlock(uintptr(fd), cmd, &fl); err != nil {
		return &types.FcntlResponse{Result: -1, Errno: types.ErrnoOf(err)}
	}

	resp := &types.FcntlResponse{Result: 0, Errno: 0}
	if types.IsGetLockCommand(req.Cmd) {
		resp.Out.Tag = types.ArgFlock
		resp.Out.Lock.FromKernel(&fl)
	}
	return resp
}
