// Package bridge wires the procedure numbers of the protocol to their
// server-side handlers. The dispatcher is the only component that sees both
// the raw argument bytes and the typed handler layer: it decodes the
// request, invokes the handler, encodes the response, and reports the RPC
// accept status.
package bridge

import (
	"github.com/catabozan/fdbridge/internal/protocol/bridge/handlers"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
	"github.com/catabozan/fdbridge/internal/protocol/rpc"
	"github.com/catabozan/fdbridge/pkg/bufpool"
)

// procedureHandler decodes arguments, runs the procedure, and returns the
// encoded response body. A non-nil error means the arguments could not be
// decoded (GARBAGE_ARGS); operation failures are encoded in the body.
type procedureHandler func(h *handlers.Handler, data []byte) ([]byte, error)

// procedure holds dispatch metadata for one procedure number.
type procedure struct {
	// Name is the procedure name for logging (e.g. "OPEN", "READ").
	Name string

	// Handler processes the procedure.
	Handler procedureHandler
}

// DispatchTable maps procedure numbers to their handlers. Initialized once
// at package init time; read-only afterwards.
var DispatchTable map[uint32]*procedure

func init() {
	DispatchTable = map[uint32]*procedure{
		types.ProcNull:      {Name: "NULL", Handler: handleNull},
		types.ProcOpen:      {Name: "OPEN", Handler: handleOpen},
		types.ProcOpenAt:    {Name: "OPENAT", Handler: handleOpenAt},
		types.ProcClose:     {Name: "CLOSE", Handler: handleClose},
		types.ProcRead:      {Name: "READ", Handler: handleRead},
		types.ProcPread:     {Name: "PREAD", Handler: handlePread},
		types.ProcWrite:     {Name: "WRITE", Handler: handleWrite},
		types.ProcPwrite:    {Name: "PWRITE", Handler: handlePwrite},
		types.ProcStat:      {Name: "STAT", Handler: handleStat},
		types.ProcFstatAt:   {Name: "FSTATAT", Handler: handleFstatAt},
		types.ProcFstat:     {Name: "FSTAT", Handler: handleFstat},
		types.ProcFcntl:     {Name: "FCNTL", Handler: handleFcntl},
		types.ProcFdatasync: {Name: "FDATASYNC", Handler: handleFdatasync},
	}
}

// Dispatch routes one decoded call to its handler and returns the encoded
// response body plus the RPC accept status. Unknown procedures yield
// PROC_UNAVAIL, undecodable arguments GARBAGE_ARGS, and encode failures
// SYSTEM_ERR; all three produce an empty body.
func Dispatch(h *handlers.Handler, procNum uint32, data []byte) ([]byte, uint32) {
	proc, ok := DispatchTable[procNum]
	if !ok {
		return nil, rpc.ProcUnavail
	}

	body, err := proc.Handler(h, data)
	if err != nil {
		h.Log.Warn("Undecodable arguments",
			"procedure", proc.Name,
			"error", err)
		return nil, rpc.GarbageArgs
	}
	if body == nil {
		return nil, rpc.SystemErr
	}
	return body, rpc.Success
}

func handleNull(h *handlers.Handler, _ []byte) ([]byte, error) {
	h.Null()
	return []byte{}, nil
}

func handleOpen(h *handlers.Handler, data []byte) ([]byte, error) {
	req := &types.OpenRequest{}
	if err := types.DecodeMessage(data, req); err != nil {
		return nil, err
	}
	body, err := types.EncodeMessage(h.Open(req))
	return encodeOrNil(h, body, err)
}

func handleOpenAt(h *handlers.Handler, data []byte) ([]byte, error) {
	req := &types.OpenAtRequest{}
	if err := types.DecodeMessage(data, req); err != nil {
		return nil, err
	}
	body, err := types.EncodeMessage(h.OpenAt(req))
	return encodeOrNil(h, body, err)
}

func handleClose(h *handlers.Handler, data []byte) ([]byte, error) {
	req := &types.CloseRequest{}
	if err := types.DecodeMessage(data, req); err != nil {
		return nil, err
	}
	body, err := types.EncodeMessage(h.Close(req))
	return encodeOrNil(h, body, err)
}

func handleRead(h *handlers.Handler, data []byte) ([]byte, error) {
	req := &types.ReadRequest{}
	if err := types.DecodeMessage(data, req); err != nil {
		return nil, err
	}
	resp := h.Read(req)
	body, err := types.EncodeMessage(resp)
	if resp.Data != nil {
		bufpool.Put(resp.Data)
	}
	return encodeOrNil(h, body, err)
}

func handlePread(h *handlers.Handler, data []byte) ([]byte, error) {
	req := &types.PreadRequest{}
	if err := types.DecodeMessage(data, req); err != nil {
		return nil, err
	}
	resp := h.Pread(req)
	body, err := types.EncodeMessage(resp)
	if resp.Data != nil {
		bufpool.Put(resp.Data)
	}
	return encodeOrNil(h, body, err)
}

func handleWrite(h *handlers.Handler, data []byte) ([]byte, error) {
	req := &types.WriteRequest{}
	if err := types.DecodeMessage(data, req); err != nil {
		return nil, err
	}
	body, err := types.EncodeMessage(h.Write(req))
	return encodeOrNil(h, body, err)
}

func handlePwrite(h *handlers.Handler, data []byte) ([]byte, error) {
	req := &types.PwriteRequest{}
	if err := types.DecodeMessage(data, req); err != nil {
		return nil, err
	}
	body, err := types.EncodeMessage(h.Pwrite(req))
	return encodeOrNil(h, body, err)
}

func handleStat(h *handlers.Handler, data []byte) ([]byte, error) {
	req := &types.StatRequest{}
	if err := types.DecodeMessage(data, req); err != nil {
		return nil, err
	}
	body, err := types.EncodeMessage(h.Stat(req))
	return encodeOrNil(h, body, err)
}

func handleFstatAt(h *handlers.Handler, data []byte) ([]byte, error) {
	req := &types.FstatAtRequest{}
	if err := types.DecodeMessage(data, req); err != nil {
		return nil, err
	}
	body, err := types.EncodeMessage(h.FstatAt(req))
	return encodeOrNil(h, body, err)
}

func handleFstat(h *handlers.Handler, data []byte) ([]byte, error) {
	req := &types.FstatRequest{}
	if err := types.DecodeMessage(data, req); err != nil {
		return nil, err
	}
	body, err := types.EncodeMessage(h.Fstat(req))
	return encodeOrNil(h, body, err)
}

func handleFcntl(h *handlers.Handler, data []byte) ([]byte, error) {
	req := &types.FcntlRequest{}
	if err := types.DecodeMessage(data, req); err != nil {
		return nil, err
	}
	body, err := types.EncodeMessage(h.Fcntl(req))
	return encodeOrNil(h, body, err)
}

func handleFdatasync(h *handlers.Handler, data []byte) ([]byte, error) {
	req := &types.FdatasyncRequest{}
	if err := types.DecodeMessage(data, req); err != nil {
		return nil, err
	}
	body, err := types.EncodeMessage(h.Fdatasync(req))
	return encodeOrNil(h, body, err)
}

// encodeOrNil collapses a response-encode failure to a nil body, which
// Dispatch reports as SYSTEM_ERR. Encode failures are programming errors
// (a response built by a handler always fits its own layout), so they are
// logged loudly rather than handled.
func encodeOrNil(h *handlers.Handler, body []byte, err error) ([]byte, error) {
	if err != nil {
		h.Log.Error("Response encode failed", "error", err)
		return nil, nil
	}
	return body, nil
}
