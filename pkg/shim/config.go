// Package shim is the client side of the bridge: entry points shaped like
// the host C library's file-I/O functions (Open, Read, Pwrite, Fcntl, ...)
// that marshal their arguments, call the server over a lazily created
// session, and restore the server's captured errno to the caller. When the
// server is unreachable, or when a re-entry guard is set, every entry point
// degrades to a direct kernel call with the same arguments.
//
// A Shim owns one session and one set of guard flags and is not safe for
// concurrent use; give each goroutine its own Shim, the way the original
// per-thread state works. The package-level Shutdown closes every session
// still registered, standing in for a process-teardown hook.
package shim

import (
	"os"
	"strings"
)

// Compiled-in transport constants. The socket path and TCP fallback port
// are fixed; everything else about the endpoint comes from RPC_TRANSPORT.
const (
	// TransportEnv is the environment variable selecting the transport.
	TransportEnv = "RPC_TRANSPORT"

	// DefaultSocketPath is the fixed unix socket path of the server.
	DefaultSocketPath = "/tmp/p3_tb"

	// DefaultHost is the server host for the TCP transport.
	DefaultHost = "127.0.0.1"

	// DefaultTCPPort is used when the portmapper cannot resolve the
	// program (not running, or registration missing).
	DefaultTCPPort = 20049
)

// Config selects the endpoint a Shim connects to.
type Config struct {
	// Transport is "unix" or "tcp"; anything else falls back to unix.
	Transport string

	// SocketPath overrides the unix socket path.
	SocketPath string

	// Host overrides the TCP host.
	Host string

	// Port overrides the TCP port, bypassing portmapper resolution.
	// Zero means resolve through the portmapper.
	Port int
}

// ConfigFromEnv builds the default configuration: transport from the
// RPC_TRANSPORT environment variable (case-insensitive, default unix) and
// compiled-in constants for the rest.
func ConfigFromEnv() Config {
	transport := strings.ToLower(os.Getenv(TransportEnv))
	if transport != "tcp" {
		transport = "unix"
	}
	return Config{
		Transport:  transport,
		SocketPath: DefaultSocketPath,
		Host:       DefaultHost,
	}
}
