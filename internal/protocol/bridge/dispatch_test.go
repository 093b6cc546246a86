package bridge

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/catabozan/fdbridge/internal/fdtable"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/handlers"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
	"github.com/catabozan/fdbridge/internal/protocol/rpc"
)

func newTestHandler(t *testing.T) *handlers.Handler {
	t.Helper()
	table := fdtable.New(16)
	t.Cleanup(func() { table.CloseAll() })
	return handlers.New(table, nil)
}

func TestDispatch(t *testing.T) {
	t.Run("EveryProcedureIsRegistered", func(t *testing.T) {
		for proc := uint32(0); proc < types.ProcCount; proc++ {
			assert.Contains(t, DispatchTable, proc, "procedure %s", types.ProcName(proc))
		}
	})

	t.Run("NullReturnsEmptyBody", func(t *testing.T) {
		h := newTestHandler(t)
		body, status := Dispatch(h, types.ProcNull, nil)
		assert.Equal(t, uint32(rpc.Success), status)
		assert.Empty(t, body)
	})

	t.Run("UnknownProcedureIsProcUnavail", func(t *testing.T) {
		h := newTestHandler(t)
		body, status := Dispatch(h, 99, nil)
		assert.Equal(t, uint32(rpc.ProcUnavail), status)
		assert.Nil(t, body)
	})

	t.Run("TruncatedArgumentsAreGarbage", func(t *testing.T) {
		h := newTestHandler(t)
		_, status := Dispatch(h, types.ProcOpen, []byte{0x00, 0x00})
		assert.Equal(t, uint32(rpc.GarbageArgs), status)
	})

	t.Run("OpenDispatchesEndToEnd", func(t *testing.T) {
		h := newTestHandler(t)
		path := filepath.Join(t.TempDir(), "via_dispatch.txt")

		args, err := types.EncodeMessage(&types.OpenRequest{
			Path:  path,
			Flags: int32(unix.O_CREAT | unix.O_WRONLY),
			Mode:  0644,
		})
		require.NoError(t, err)

		body, status := Dispatch(h, types.ProcOpen, args)
		require.Equal(t, uint32(rpc.Success), status)

		resp := &types.OpenResponse{}
		require.NoError(t, types.DecodeMessage(body, resp))
		assert.GreaterOrEqual(t, resp.Handle, int32(types.HandleStart))
	})

	t.Run("ReadResponseSurvivesBufferPooling", func(t *testing.T) {
		h := newTestHandler(t)
		path := filepath.Join(t.TempDir(), "pooled.txt")

		args, err := types.EncodeMessage(&types.OpenRequest{
			Path:  path,
			Flags: int32(unix.O_CREAT | unix.O_RDWR),
			Mode:  0644,
		})
		require.NoError(t, err)
		body, _ := Dispatch(h, types.ProcOpen, args)
		openResp := &types.OpenResponse{}
		require.NoError(t, types.DecodeMessage(body, openResp))

		wargs, err := types.EncodeMessage(&types.PwriteRequest{
			Handle: openResp.Handle,
			Data:   []byte("pooled data"),
			Offset: 0,
		})
		require.NoError(t, err)
		body, status := Dispatch(h, types.ProcPwrite, wargs)
		require.Equal(t, uint32(rpc.Success), status)

		rargs, err := types.EncodeMessage(&types.PreadRequest{
			Handle: openResp.Handle,
			Count:  64,
			Offset: 0,
		})
		require.NoError(t, err)
		body, status = Dispatch(h, types.ProcPread, rargs)
		require.Equal(t, uint32(rpc.Success), status)

		readResp := &types.ReadResponse{}
		require.NoError(t, types.DecodeMessage(body, readResp))
		assert.Equal(t, "pooled data", string(readResp.Data))
	})
}
