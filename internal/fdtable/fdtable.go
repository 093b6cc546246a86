// Package fdtable implements the per-connection descriptor translation table:
// a fixed-capacity mapping from client-visible handles to real kernel
// descriptors owned by the server process.
//
// Handles start at 3 (0-2 are reserved for the standard streams) and are
// allocated from the lowest free slot, so a released slot becomes available
// again immediately. Only the connection that owns the table mutates it;
// the table therefore carries no locking of its own.
package fdtable

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
)

// freeSlot marks an unoccupied slot. Valid kernel descriptors are >= 0.
const freeSlot = -1

var (
	// ErrTableFull is returned when no free slot satisfies the request.
	// Maps to EMFILE at the protocol layer.
	ErrTableFull = errors.New("translation table full")

	// ErrBadHandle is returned for out-of-range or free handles.
	// Maps to EBADF at the protocol layer.
	ErrBadHandle = errors.New("bad handle")
)

// Table maps client handles to server-side kernel descriptors.
//
// Invariants: every non-free slot names a currently open server descriptor;
// a released slot is never observed live until it is re-installed; at most
// one live mapping exists per slot.
type Table struct {
	slots []int
	live  int
}

// New creates a table with the given capacity. Capacities at or below the
// handle start are replaced with the default so the table is always usable.
func New(capacity int) *Table {
	if capacity <= types.HandleStart {
		capacity = types.DefaultMaxHandles
	}

	t := &Table{slots: make([]int, capacity)}
	for i := range t.slots {
		t.slots[i] = freeSlot
	}
	return t
}

// Install stores a server descriptor in the lowest free slot at or above the
// handle start and returns the chosen handle. On failure the caller still
// owns the descriptor and must close it before surfacing the error.
func (t *Table) Install(serverFD int) (int32, error) {
	return t.InstallFrom(serverFD, types.HandleStart)
}

// InstallFrom is Install with a caller-supplied lower bound: the chosen slot
// is the lowest free index >= max(HandleStart, min). Used by the
// duplicate-with-lower-bound control command.
func (t *Table) InstallFrom(serverFD int, min int32) (int32, error) {
	start := int(min)
	if start < types.HandleStart {
		start = types.HandleStart
	}

	for i := start; i < len(t.slots); i++ {
		if t.slots[i] == freeSlot {
			t.slots[i] = serverFD
			t.live++
			return int32(i), nil
		}
	}
	return -1, ErrTableFull
}

// Translate returns the server descriptor behind a client handle.
// Out-of-range and free slots are rejected.
func (t *Table) Translate(handle int32) (int, error) {
	if handle < types.HandleStart || int(handle) >= len(t.slots) {
		return -1, ErrBadHandle
	}
	fd := t.slots[handle]
	if fd == freeSlot {
		return -1, ErrBadHandle
	}
	return fd, nil
}

// Release marks a slot free. It never closes the kernel descriptor; the
// handler decides whether the descriptor outlives the mapping.
func (t *Table) Release(handle int32) {
	if handle < types.HandleStart || int(handle) >= len(t.slots) {
		return
	}
	if t.slots[handle] != freeSlot {
		t.slots[handle] = freeSlot
		t.live--
	}
}

// Live returns the number of occupied slots.
func (t *Table) Live() int {
	return t.live
}

// CloseAll closes every live kernel descriptor and frees its slot.
// Called at connection teardown. Returns the number of descriptors closed.
func (t *Table) CloseAll() int {
	closed := 0
	for i := types.HandleStart; i < len(t.slots); i++ {
		if t.slots[i] != freeSlot {
			_ = unix.Close(t.slots[i])
			t.slots[i] = freeSlot
			t.live--
			closed++
		}
	}
	return closed
}
