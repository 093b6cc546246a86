// Package types defines the wire-level vocabulary of the bridge protocol:
// the program/version/procedure identifiers, the size bounds, and the
// request/response structures for every procedure together with their XDR
// codecs. Both the server dispatcher and the client shim build on this
// package so that the two sides can never drift apart on layout.
package types

import (
	"golang.org/x/sys/unix"
)

// Program identifies the bridge RPC program. The value sits in the range
// reserved for site-defined programs so it can never collide with a
// registered service on the portmapper.
const Program uint32 = 0x20000101

// Version is the bridge protocol version.
const Version uint32 = 1

// Procedure numbers. Stable within a version; NULL is 0 by RPC convention.
const (
	ProcNull      uint32 = 0
	ProcOpen      uint32 = 1
	ProcOpenAt    uint32 = 2
	ProcClose     uint32 = 3
	ProcRead      uint32 = 4
	ProcPread     uint32 = 5
	ProcWrite     uint32 = 6
	ProcPwrite    uint32 = 7
	ProcStat      uint32 = 8
	ProcFstatAt   uint32 = 9
	ProcFstat     uint32 = 10
	ProcFcntl     uint32 = 11
	ProcFdatasync uint32 = 12

	// ProcCount is one past the highest procedure number.
	ProcCount = 13
)

// Size bounds.
const (
	// MaxPathLen bounds path strings on the wire.
	MaxPathLen = 4096

	// MaxPayload bounds a single read or write body. Reads above the bound
	// are clamped server-side; the shim chunks writes above it.
	MaxPayload = 1 << 20
)

// Handle allocation.
const (
	// HandleStart is the first client handle the server mints. 0-2 are
	// reserved for the standard streams.
	HandleStart = 3

	// DefaultMaxHandles is the default translation table capacity.
	DefaultMaxHandles = 1024
)

// procNames maps procedure numbers to their display names for logging.
var procNames = [ProcCount]string{
	"NULL", "OPEN", "OPENAT", "CLOSE", "READ", "PREAD", "WRITE",
	"PWRITE", "STAT", "FSTATAT", "FSTAT", "FCNTL", "FDATASYNC",
}

// ProcName returns the display name of a procedure number.
func ProcName(proc uint32) string {
	if proc < ProcCount {
		return procNames[proc]
	}
	return "UNKNOWN"
}

// ErrnoOf extracts the kernel error value from an error returned by the
// syscall layer. Returns 0 for nil and EIO for errors that carry no errno,
// so that a response always has a meaningful error field.
func ErrnoOf(err error) int32 {
	if err == nil {
		return 0
	}
	if errno, ok := err.(unix.Errno); ok {
		return int32(errno)
	}
	return int32(unix.EIO)
}
