package shim

import (
	"golang.org/x/sys/unix"
)

// Direct kernel fallback path. Every interposed entry point degrades to one
// of these when a guard is set or the session cannot be constructed, so the
// shim behaves exactly like the host's native operation with the server
// absent. The guards and the fallback share these primitives on purpose:
// whatever the guard re-enters lands on the kernel, never back in the shim.

func directOpen(path string, flags int, mode uint32) (int, error) {
	fd, err := unix.Open(path, flags, mode)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

func directOpenat(dirfd int, path string, flags int, mode uint32) (int, error) {
	fd, err := unix.Openat(dirfd, path, flags, mode)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

func directClose(fd int) (int, error) {
	if err := unix.Close(fd); err != nil {
		return -1, err
	}
	return 0, nil
}

func directRead(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if err != nil {
		return -1, err
	}
	return n, nil
}

func directPread(fd int, p []byte, offset int64) (int, error) {
	n, err := unix.Pread(fd, p, offset)
	if err != nil {
		return -1, err
	}
	return n, nil
}

func directWrite(fd int, p []byte) (int, error) {
	n, err := unix.Write(fd, p)
	if err != nil {
		return -1, err
	}
	return n, nil
}

func directPwrite(fd int, p []byte, offset int64) (int, error) {
	n, err := unix.Pwrite(fd, p, offset)
	if err != nil {
		return -1, err
	}
	return n, nil
}

func directFstatat(dirfd int, path string, st *unix.Stat_t, flags int) (int, error) {
	if err := unix.Fstatat(dirfd, path, st, flags); err != nil {
		return -1, err
	}
	return 0, nil
}

func directFstat(fd int, st *unix.Stat_t) (int, error) {
	if err := unix.Fstat(fd, st); err != nil {
		return -1, err
	}
	return 0, nil
}

func directFcntlInt(fd, cmd, arg int) (int, error) {
	res, err := unix.FcntlInt(uintptr(fd), cmd, arg)
	if err != nil {
		return -1, err
	}
	return res, nil
}

func directFcntlFlock(fd, cmd int, fl *unix.Flock_t) (int, error) {
	if err := unix.FcntlFlock(uintptr(fd), cmd, fl); err != nil {
		return -1, err
	}
	return 0, nil
}

func directFdatasync(fd int) (int, error) {
	if err := unix.Fdatasync(fd); err != nil {
		return -1, err
	}
	return 0, nil
}
