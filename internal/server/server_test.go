package server

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
	"github.com/catabozan/fdbridge/internal/protocol/rpc"
	"github.com/catabozan/fdbridge/internal/protocol/xdr"
)

// startTestServer runs a server on a private unix socket and returns a
// connected raw stream to it.
func startTestServer(t *testing.T) net.Conn {
	t.Helper()

	dir, err := os.MkdirTemp("", "fdbsrv")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socket := filepath.Join(dir, "s.sock")

	srv := New(Config{Transport: TransportUnix, SocketPath: socket, MaxHandles: 16})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		srv.Stop()
		<-done
	})

	require.Eventually(t, func() bool {
		_, err := os.Stat(socket)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// exchange sends one call and returns the parsed reply.
func exchange(t *testing.T, conn net.Conn, call *rpc.CallMessage) *rpc.ReplyMessage {
	t.Helper()

	msg, err := rpc.EncodeCall(call)
	require.NoError(t, err)
	require.NoError(t, rpc.WriteRecord(conn, msg))

	record, err := rpc.ReadRecord(conn)
	require.NoError(t, err)

	reply, err := rpc.ParseReply(record)
	require.NoError(t, err)
	assert.Equal(t, call.XID, reply.XID)
	return reply
}

func TestServerEnvelopeHandling(t *testing.T) {
	t.Run("NullProcedureSucceeds", func(t *testing.T) {
		conn := startTestServer(t)
		reply := exchange(t, conn, &rpc.CallMessage{
			XID:       1,
			Program:   types.Program,
			Version:   types.Version,
			Procedure: types.ProcNull,
		})
		assert.Equal(t, uint32(rpc.Success), reply.AcceptStat)
	})

	t.Run("WrongProgramIsProgUnavail", func(t *testing.T) {
		conn := startTestServer(t)
		reply := exchange(t, conn, &rpc.CallMessage{
			XID:       2,
			Program:   types.Program + 1,
			Version:   types.Version,
			Procedure: types.ProcNull,
		})
		assert.Equal(t, uint32(rpc.ProgUnavail), reply.AcceptStat)
	})

	t.Run("WrongVersionIsProgMismatchWithRange", func(t *testing.T) {
		conn := startTestServer(t)
		reply := exchange(t, conn, &rpc.CallMessage{
			XID:       3,
			Program:   types.Program,
			Version:   types.Version + 5,
			Procedure: types.ProcNull,
		})
		require.Equal(t, uint32(rpc.ProgMismatch), reply.AcceptStat)

		// Body carries the supported [low, high] version range.
		r := bytes.NewReader(reply.Body)
		low, err := xdr.DecodeUint32(r)
		require.NoError(t, err)
		high, err := xdr.DecodeUint32(r)
		require.NoError(t, err)
		assert.Equal(t, types.Version, low)
		assert.Equal(t, types.Version, high)
	})

	t.Run("UnknownProcedureIsProcUnavail", func(t *testing.T) {
		conn := startTestServer(t)
		reply := exchange(t, conn, &rpc.CallMessage{
			XID:       4,
			Program:   types.Program,
			Version:   types.Version,
			Procedure: 99,
		})
		assert.Equal(t, uint32(rpc.ProcUnavail), reply.AcceptStat)
	})

	t.Run("MalformedEnvelopeDropsConnection", func(t *testing.T) {
		conn := startTestServer(t)

		// A record too short to hold an envelope.
		require.NoError(t, rpc.WriteRecord(conn, []byte{0x01, 0x02}))

		_, err := rpc.ReadRecord(conn)
		assert.Error(t, err, "server must tear down rather than answer garbage")
	})

	t.Run("ServesRequestsSerially", func(t *testing.T) {
		conn := startTestServer(t)
		for xid := uint32(10); xid < 15; xid++ {
			reply := exchange(t, conn, &rpc.CallMessage{
				XID:       xid,
				Program:   types.Program,
				Version:   types.Version,
				Procedure: types.ProcNull,
			})
			assert.Equal(t, uint32(rpc.Success), reply.AcceptStat)
		}
	})

	t.Run("ServesMultipleConnections", func(t *testing.T) {
		dir, err := os.MkdirTemp("", "fdbsrv")
		require.NoError(t, err)
		t.Cleanup(func() { _ = os.RemoveAll(dir) })
		socket := filepath.Join(dir, "s.sock")

		srv := New(Config{Transport: TransportUnix, SocketPath: socket, MaxHandles: 16})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = srv.Serve(ctx)
		}()
		t.Cleanup(func() { cancel(); srv.Stop(); <-done })

		require.Eventually(t, func() bool {
			_, err := os.Stat(socket)
			return err == nil
		}, 2*time.Second, 10*time.Millisecond)

		for i := 0; i < 3; i++ {
			conn, err := net.Dial("unix", socket)
			require.NoError(t, err)

			reply := exchange(t, conn, &rpc.CallMessage{
				XID:       uint32(100 + i),
				Program:   types.Program,
				Version:   types.Version,
				Procedure: types.ProcNull,
			})
			assert.Equal(t, uint32(rpc.Success), reply.AcceptStat)
			_ = conn.Close()
		}
	})
}

func TestStaleSocketIsReplaced(t *testing.T) {
	dir, err := os.MkdirTemp("", "fdbsrv")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socket := filepath.Join(dir, "stale.sock")

	// Plant a stale socket entry.
	stale, err := net.Listen("unix", socket)
	require.NoError(t, err)
	_ = stale.Close()
	// Closing removes the entry on most platforms; recreate a dead file
	// to force the unlink path.
	if _, err := os.Stat(socket); os.IsNotExist(err) {
		require.NoError(t, os.WriteFile(socket, nil, 0644))
	}

	srv := New(Config{Transport: TransportUnix, SocketPath: socket, MaxHandles: 16})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() { cancel(); srv.Stop(); <-done })

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond, "server must bind over the stale entry")
}
