package shim

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/catabozan/fdbridge/internal/logger"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
	"github.com/catabozan/fdbridge/internal/protocol/xdr"
)

// Shim redirects file-I/O entry points to the bridge server.
//
// Every entry point follows the same template:
//
//  1. Extract the variadic argument where applicable (the open family's
//     creation mode, the control operation's command-dependent argument).
//  2. Consult the re-entry guards: if the per-entry guard or the shared
//     in-RPC flag is set, invoke the kernel directly with the same
//     arguments and return.
//  3. Set the per-entry guard.
//  4. Acquire the session, constructing it lazily on first use. A
//     construction failure makes this call take the fallback path.
//  5. Under the in-RPC flag: marshal, call, unmarshal.
//  6. Copy out-parameters back (reads truncate to the caller's count) and
//     carry the server-reported errno in the returned error.
//  7. Clear the per-entry guard and return.
//
// The guard discipline is not an optimization. The per-entry guard breaks
// recursion when an intercepted operation indirectly causes itself (a debug
// write inside the write wrapper); the shared flag breaks recursion from
// any other entry point the transport machinery touches while a call is in
// flight. Dropping either one turns the first lazy session construction
// into a stack overflow.
//
// A Shim is owned by one goroutine; nothing in it is locked. Once a call
// fails mid-session the shim is broken: every further remote call returns
// EIO until the shim is closed, mirroring a dead per-thread connection.
type Shim struct {
	cfg Config

	session *Session
	broken  bool

	// guards are the per-entry-point re-entry flags, indexed by wire
	// procedure. inRPC is the shared "RPC machinery running" flag.
	guards [types.ProcCount]bool
	inRPC  bool
}

// Shim registry: stands in for the process-teardown hook that closes any
// session still open at exit. This is the only state shared across shims.
var (
	registryMu sync.Mutex
	registry   = make(map[*Shim]struct{})
)

// New creates a shim configured from the environment (RPC_TRANSPORT).
func New() *Shim {
	return NewWithConfig(ConfigFromEnv())
}

// NewWithConfig creates a shim with an explicit endpoint configuration.
func NewWithConfig(cfg Config) *Shim {
	s := &Shim{cfg: cfg}
	registryMu.Lock()
	registry[s] = struct{}{}
	registryMu.Unlock()
	return s
}

// Teardown closes the shim's session and unregisters it. Distinct from
// Close, which is the interposed close(2) entry point.
func (s *Shim) Teardown() error {
	registryMu.Lock()
	delete(registry, s)
	registryMu.Unlock()

	if s.session != nil {
		err := s.session.Close()
		s.session = nil
		return err
	}
	return nil
}

// Shutdown closes every registered shim's session. Call it once at process
// teardown.
func Shutdown() {
	registryMu.Lock()
	shims := make([]*Shim, 0, len(registry))
	for s := range registry {
		shims = append(shims, s)
	}
	registry = make(map[*Shim]struct{})
	registryMu.Unlock()

	for _, s := range shims {
		if s.session != nil {
			_ = s.session.Close()
			s.session = nil
		}
	}
}

// ============================================================================
// Guard and Session Machinery
// ============================================================================

// bypass implements step 2: either guard set means the kernel gets the call.
func (s *Shim) bypass(proc uint32) bool {
	return s.guards[proc] || s.inRPC
}

// acquire implements step 4. It returns the session, or nil with fallback
// reporting whether the direct-kernel path may be taken: construction
// failure permits fallback (the server was never contacted for this call),
// a broken session does not (the caller gets EIO).
func (s *Shim) acquire() (sess *Session, fallback bool) {
	if s.broken {
		return nil, false
	}
	if s.session != nil {
		return s.session, false
	}

	// Session construction performs its own I/O (name resolution,
	// connect, portmapper lookup); the shared flag keeps that I/O from
	// re-entering the shim.
	s.inRPC = true
	newSess, err := newSession(s.cfg)
	s.inRPC = false

	if err != nil {
		logger.Debug("Session construction failed, using kernel fallback", "error", err)
		return nil, true
	}
	s.session = newSess
	return newSess, false
}

// call implements step 5: one exchange under the shared flag, decoding the
// response into resp. Any failure breaks the shim.
func (s *Shim) call(proc uint32, args []byte, resp xdr.XdrDecoder) bool {
	s.inRPC = true
	body, err := s.session.Call(proc, args)
	s.inRPC = false

	if err != nil {
		s.markBroken(proc, err)
		return false
	}
	if err := types.DecodeMessage(body, resp); err != nil {
		s.markBroken(proc, err)
		return false
	}
	return true
}

// markBroken tears the session down and poisons the shim.
func (s *Shim) markBroken(proc uint32, err error) {
	logger.Warn("Session broken",
		logger.KeyProcedure, types.ProcName(proc),
		"error", err)
	if s.session != nil {
		_ = s.session.Close()
		s.session = nil
	}
	s.broken = true
}

func (s *Shim) clearGuard(proc uint32) {
	s.guards[proc] = false
}

// creationMode extracts the open family's variadic mode argument: honored
// only when the flags carry a creation bit, zero otherwise.
func creationMode(flags int, mode []uint32) uint32 {
	if !needsMode(flags) || len(mode) == 0 {
		return 0
	}
	return mode[0]
}

// needsMode reports whether the open flags require a mode argument.
func needsMode(flags int) bool {
	return flags&unix.O_CREAT != 0 || flags&unix.O_TMPFILE == unix.O_TMPFILE
}

// ============================================================================
// Open Family
// ============================================================================

// Open opens path on the server and returns an opaque client handle shaped
// like a file descriptor. The mode argument is consulted only when the
// flags include a creation bit.
func (s *Shim) Open(path string, flags int, mode ...uint32) (int, error) {
	m := creationMode(flags, mode)

	if s.bypass(types.ProcOpen) {
		return directOpen(path, flags, m)
	}
	s.guards[types.ProcOpen] = true
	defer s.clearGuard(types.ProcOpen)

	sess, fallback := s.acquire()
	if sess == nil {
		if fallback {
			return directOpen(path, flags, m)
		}
		return -1, unix.EIO
	}

	if len(path) > types.MaxPathLen {
		return -1, unix.ENAMETOOLONG
	}

	args, err := types.EncodeMessage(&types.OpenRequest{
		Path:  path,
		Flags: int32(flags),
		Mode:  m,
	})
	if err != nil {
		return -1, unix.EINVAL
	}

	resp := &types.OpenResponse{}
	if !s.call(types.ProcOpen, args, resp) {
		return -1, unix.EIO
	}
	if resp.Result < 0 {
		return -1, unix.Errno(resp.Errno)
	}
	return int(resp.Handle), nil
}

// Open64 is the large-file spelling of Open: the regular entry point with
// O_LARGEFILE OR'ed into the flags.
func (s *Shim) Open64(path string, flags int, mode ...uint32) (int, error) {
	return s.Open(path, flags|unix.O_LARGEFILE, mode...)
}

// Openat opens a path relative to a directory handle (or unix.AT_FDCWD).
func (s *Shim) Openat(dirfd int, path string, flags int, mode ...uint32) (int, error) {
	m := creationMode(flags, mode)

	if s.bypass(types.ProcOpenAt) {
		return directOpenat(dirfd, path, flags, m)
	}
	s.guards[types.ProcOpenAt] = true
	defer s.clearGuard(types.ProcOpenAt)

	sess, fallback := s.acquire()
	if sess == nil {
		if fallback {
			return directOpenat(dirfd, path, flags, m)
		}
		return -1, unix.EIO
	}

	if len(path) > types.MaxPathLen {
		return -1, unix.ENAMETOOLONG
	}

	args, err := types.EncodeMessage(&types.OpenAtRequest{
		Dir:   int32(dirfd),
		Path:  path,
		Flags: int32(flags),
		Mode:  m,
	})
	if err != nil {
		return -1, unix.EINVAL
	}

	resp := &types.OpenResponse{}
	if !s.call(types.ProcOpenAt, args, resp) {
		return -1, unix.EIO
	}
	if resp.Result < 0 {
		return -1, unix.Errno(resp.Errno)
	}
	return int(resp.Handle), nil
}

// ============================================================================
// Close
// ============================================================================

// Close releases the server-side descriptor behind a handle.
func (s *Shim) Close(fd int) (int, error) {
	if s.bypass(types.ProcClose) {
		return directClose(fd)
	}
	s.guards[types.ProcClose] = true
	defer s.clearGuard(types.ProcClose)

	sess, fallback := s.acquire()
	if sess == nil {
		if fallback {
			return directClose(fd)
		}
		return -1, unix.EIO
	}

	args, err := types.EncodeMessage(&types.CloseRequest{Handle: int32(fd)})
	if err != nil {
		return -1, unix.EINVAL
	}

	resp := &types.CloseResponse{}
	if !s.call(types.ProcClose, args, resp) {
		return -1, unix.EIO
	}
	if resp.Result < 0 {
		return -1, unix.Errno(resp.Errno)
	}
	return int(resp.Result), nil
}

// ============================================================================
// Read Family
// ============================================================================

// Read reads up to len(p) bytes into p from the handle's current position.
// At most min(server-reported bytes, len(p)) land in p; the return value is
// the server's count.
func (s *Shim) Read(fd int, p []byte) (int, error) {
	if s.bypass(types.ProcRead) {
		return directRead(fd, p)
	}
	s.guards[types.ProcRead] = true
	defer s.clearGuard(types.ProcRead)

	sess, fallback := s.acquire()
	if sess == nil {
		if fallback {
			return directRead(fd, p)
		}
		return -1, unix.EIO
	}

	args, err := types.EncodeMessage(&types.ReadRequest{
		Handle: int32(fd),
		Count:  uint32(len(p)),
	})
	if err != nil {
		return -1, unix.EINVAL
	}

	resp := &types.ReadResponse{}
	if !s.call(types.ProcRead, args, resp) {
		return -1, unix.EIO
	}
	if resp.Result < 0 {
		return -1, unix.Errno(resp.Errno)
	}

	copy(p, resp.Data)
	return int(resp.Result), nil
}

// Pread is Read at an absolute offset.
func (s *Shim) Pread(fd int, p []byte, offset int64) (int, error) {
	if s.bypass(types.ProcPread) {
		return directPread(fd, p, offset)
	}
	s.guards[types.ProcPread] = true
	defer s.clearGuard(types.ProcPread)

	sess, fallback := s.acquire()
	if sess == nil {
		if fallback {
			return directPread(fd, p, offset)
		}
		return -1, unix.EIO
	}

	args, err := types.EncodeMessage(&types.PreadRequest{
		Handle: int32(fd),
		Count:  uint32(len(p)),
		Offset: offset,
	})
	if err != nil {
		return -1, unix.EINVAL
	}

	resp := &types.ReadResponse{}
	if !s.call(types.ProcPread, args, resp) {
		return -1, unix.EIO
	}
	if resp.Result < 0 {
		return -1, unix.Errno(resp.Errno)
	}

	copy(p, resp.Data)
	return int(resp.Result), nil
}

// Pread64 is the large-file spelling of Pread; offsets are already 64-bit.
func (s *Shim) Pread64(fd int, p []byte, offset int64) (int, error) {
	return s.Pread(fd, p, offset)
}

// ============================================================================
// Write Family
// ============================================================================

// Write writes p to the handle's current position. Payloads above the wire
// bound are split into bound-size chunks; the count accumulates until the
// first short or failed chunk, matching the short-write contract.
func (s *Shim) Write(fd int, p []byte) (int, error) {
	if s.bypass(types.ProcWrite) {
		return directWrite(fd, p)
	}
	s.guards[types.ProcWrite] = true
	defer s.clearGuard(types.ProcWrite)

	sess, fallback := s.acquire()
	if sess == nil {
		if fallback {
			return directWrite(fd, p)
		}
		return -1, unix.EIO
	}

	total := 0
	for {
		chunk := p[total:]
		if len(chunk) > types.MaxPayload {
			chunk = chunk[:types.MaxPayload]
		}

		args, err := types.EncodeMessage(&types.WriteRequest{
			Handle: int32(fd),
			Data:   chunk,
		})
		if err != nil {
			return -1, unix.EINVAL
		}

		resp := &types.WriteResponse{}
		if !s.call(types.ProcWrite, args, resp) {
			if total > 0 {
				return total, nil
			}
			return -1, unix.EIO
		}
		if resp.Result < 0 {
			if total > 0 {
				return total, nil
			}
			return -1, unix.Errno(resp.Errno)
		}

		total += int(resp.Result)
		if int(resp.Result) < len(chunk) || total >= len(p) {
			return total, nil
		}
	}
}

// Pwrite is Write at an absolute offset; chunks advance the offset rather
// than the descriptor position.
func (s *Shim) Pwrite(fd int, p []byte, offset int64) (int, error) {
	if s.bypass(types.ProcPwrite) {
		return directPwrite(fd, p, offset)
	}
	s.guards[types.ProcPwrite] = true
	defer s.clearGuard(types.ProcPwrite)

	sess, fallback := s.acquire()
	if sess == nil {
		if fallback {
			return directPwrite(fd, p, offset)
		}
		return -1, unix.EIO
	}

	total := 0
	for {
		chunk := p[total:]
		if len(chunk) > types.MaxPayload {
			chunk = chunk[:types.MaxPayload]
		}

		args, err := types.EncodeMessage(&types.PwriteRequest{
			Handle: int32(fd),
			Data:   chunk,
			Offset: offset + int64(total),
		})
		if err != nil {
			return -1, unix.EINVAL
		}

		resp := &types.WriteResponse{}
		if !s.call(types.ProcPwrite, args, resp) {
			if total > 0 {
				return total, nil
			}
			return -1, unix.EIO
		}
		if resp.Result < 0 {
			if total > 0 {
				return total, nil
			}
			return -1, unix.Errno(resp.Errno)
		}

		total += int(resp.Result)
		if int(resp.Result) < len(chunk) || total >= len(p) {
			return total, nil
		}
	}
}

// Pwrite64 is the large-file spelling of Pwrite.
func (s *Shim) Pwrite64(fd int, p []byte, offset int64) (int, error) {
	return s.Pwrite(fd, p, offset)
}

// ============================================================================
// Stat Family
// ============================================================================

// Stat fills st with the metadata of path, following symlinks. All path
// spellings funnel through the directory-relative request with AT_FDCWD.
func (s *Shim) Stat(path string, st *unix.Stat_t) (int, error) {
	return s.Fstatat(unix.AT_FDCWD, path, st, 0)
}

// Lstat is Stat without following a trailing symlink.
func (s *Shim) Lstat(path string, st *unix.Stat_t) (int, error) {
	return s.Fstatat(unix.AT_FDCWD, path, st, unix.AT_SYMLINK_NOFOLLOW)
}

// Fstatat fills st with the metadata of path relative to dirfd. Flags pass
// through: AT_SYMLINK_NOFOLLOW and AT_EMPTY_PATH select the host's other
// stat spellings.
func (s *Shim) Fstatat(dirfd int, path string, st *unix.Stat_t, flags int) (int, error) {
	if s.bypass(types.ProcFstatAt) {
		return directFstatat(dirfd, path, st, flags)
	}
	s.guards[types.ProcFstatAt] = true
	defer s.clearGuard(types.ProcFstatAt)

	sess, fallback := s.acquire()
	if sess == nil {
		if fallback {
			return directFstatat(dirfd, path, st, flags)
		}
		return -1, unix.EIO
	}

	if len(path) > types.MaxPathLen {
		return -1, unix.ENAMETOOLONG
	}

	args, err := types.EncodeMessage(&types.FstatAtRequest{
		Dir:   int32(dirfd),
		Path:  path,
		Flags: uint32(flags),
	})
	if err != nil {
		return -1, unix.EINVAL
	}

	resp := &types.StatResponse{}
	if !s.call(types.ProcFstatAt, args, resp) {
		return -1, unix.EIO
	}
	if resp.Result < 0 {
		return -1, unix.Errno(resp.Errno)
	}

	resp.Stat.ToKernel(st)
	return 0, nil
}

// Newfstatat is the host's alternate spelling of Fstatat.
func (s *Shim) Newfstatat(dirfd int, path string, st *unix.Stat_t, flags int) (int, error) {
	return s.Fstatat(dirfd, path, st, flags)
}

// Fstat fills st with the metadata of an open handle.
func (s *Shim) Fstat(fd int, st *unix.Stat_t) (int, error) {
	if s.bypass(types.ProcFstat) {
		return directFstat(fd, st)
	}
	s.guards[types.ProcFstat] = true
	defer s.clearGuard(types.ProcFstat)

	sess, fallback := s.acquire()
	if sess == nil {
		if fallback {
			return directFstat(fd, st)
		}
		return -1, unix.EIO
	}

	args, err := types.EncodeMessage(&types.FstatRequest{Handle: int32(fd)})
	if err != nil {
		return -1, unix.EINVAL
	}

	resp := &types.StatResponse{}
	if !s.call(types.ProcFstat, args, resp) {
		return -1, unix.EIO
	}
	if resp.Result < 0 {
		return -1, unix.Errno(resp.Errno)
	}

	resp.Stat.ToKernel(st)
	return 0, nil
}

// ============================================================================
// Fcntl
// ============================================================================

// Fcntl executes a descriptor-attribute or locking command. The third
// argument's type depends on the command code and is classified by the same
// table the server uses: an integer for the dup and set commands, a
// *unix.Flock_t for the lock commands, ignored otherwise.
//
// F_SETLKW is accepted but logged as advisory: a blocking wait holds the
// session, stalling every later call on this shim until the lock is
// granted.
func (s *Shim) Fcntl(fd, cmd int, arg any) (int, error) {
	class := types.FcntlArgClass(uint32(cmd))

	if s.bypass(types.ProcFcntl) {
		return s.directFcntl(fd, cmd, class, arg)
	}
	s.guards[types.ProcFcntl] = true
	defer s.clearGuard(types.ProcFcntl)

	sess, fallback := s.acquire()
	if sess == nil {
		if fallback {
			return s.directFcntl(fd, cmd, class, arg)
		}
		return -1, unix.EIO
	}

	req := &types.FcntlRequest{
		Handle: int32(fd),
		Cmd:    uint32(cmd),
		Arg:    types.FcntlArg{Tag: class},
	}

	var callerLock *unix.Flock_t
	switch class {
	case types.ArgInt:
		req.Arg.Int = intArg(arg)
	case types.ArgFlock:
		fl, ok := arg.(*unix.Flock_t)
		if !ok || fl == nil {
			return -1, unix.EINVAL
		}
		callerLock = fl
		req.Arg.Lock.FromKernel(fl)
	}

	if types.IsBlockingLockCommand(uint32(cmd)) {
		logger.Warn("Blocking lock request will hold the session until granted",
			logger.KeyHandle, fd)
	}

	args, err := types.EncodeMessage(req)
	if err != nil {
		return -1, unix.EINVAL
	}

	resp := &types.FcntlResponse{}
	if !s.call(types.ProcFcntl, args, resp) {
		return -1, unix.EIO
	}
	if resp.Result < 0 {
		return -1, unix.Errno(resp.Errno)
	}

	if resp.Out.Tag == types.ArgFlock && callerLock != nil {
		resp.Out.Lock.ToKernel(callerLock)
	}
	return int(resp.Result), nil
}

// FcntlInt is Fcntl for integer-argument commands.
func (s *Shim) FcntlInt(fd, cmd, arg int) (int, error) {
	return s.Fcntl(fd, cmd, arg)
}

// FcntlFlock is Fcntl for lock commands.
func (s *Shim) FcntlFlock(fd, cmd int, fl *unix.Flock_t) (int, error) {
	return s.Fcntl(fd, cmd, fl)
}

// directFcntl routes the fallback by argument class.
func (s *Shim) directFcntl(fd, cmd int, class uint32, arg any) (int, error) {
	switch class {
	case types.ArgFlock:
		fl, ok := arg.(*unix.Flock_t)
		if !ok || fl == nil {
			return -1, unix.EINVAL
		}
		return directFcntlFlock(fd, cmd, fl)
	case types.ArgInt:
		return directFcntlInt(fd, cmd, int(intArg(arg)))
	default:
		return directFcntlInt(fd, cmd, 0)
	}
}

// intArg coerces the variadic-shaped argument to the wire integer.
func intArg(arg any) int32 {
	switch v := arg.(type) {
	case int:
		return int32(v)
	case int32:
		return v
	case int64:
		return int32(v)
	case uint32:
		return int32(v)
	default:
		return 0
	}
}

// ============================================================================
// Fdatasync
// ============================================================================

// Fdatasync flushes the handle's data to stable storage on the server.
func (s *Shim) Fdatasync(fd int) (int, error) {
	if s.bypass(types.ProcFdatasync) {
		return directFdatasync(fd)
	}
	s.guards[types.ProcFdatasync] = true
	defer s.clearGuard(types.ProcFdatasync)

	sess, fallback := s.acquire()
	if sess == nil {
		if fallback {
			return directFdatasync(fd)
		}
		return -1, unix.EIO
	}

	args, err := types.EncodeMessage(&types.FdatasyncRequest{Handle: int32(fd)})
	if err != nil {
		return -1, unix.EINVAL
	}

	resp := &types.FdatasyncResponse{}
	if !s.call(types.ProcFdatasync, args, resp) {
		return -1, unix.EIO
	}
	if resp.Result < 0 {
		return -1, unix.Errno(resp.Errno)
	}
	return int(resp.Result), nil
}
