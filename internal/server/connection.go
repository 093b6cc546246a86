package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/catabozan/fdbridge/internal/fdtable"
	"github.com/catabozan/fdbridge/internal/logger"
	"github.com/catabozan/fdbridge/internal/protocol/bridge"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/handlers"
	"github.com/catabozan/fdbridge/internal/protocol/bridge/types"
	"github.com/catabozan/fdbridge/internal/protocol/rpc"
	"github.com/catabozan/fdbridge/internal/protocol/xdr"
)

// handleConnection services one client connection until it closes or breaks.
//
// Lifecycle: Accepted → Serving → (Broken | ClientClosed) → TornDown.
// Teardown closes every kernel descriptor the connection still owns via the
// translation table, so a crashed client can never strand descriptors in
// the server.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	connID := uuid.New().String()[:8]
	log := logger.With(
		logger.KeyConnID, connID,
		logger.KeyClientAddr, conn.RemoteAddr().String())

	connectionsOpen.Inc()
	log.Info("Connection accepted")

	table := fdtable.New(s.cfg.MaxHandles)
	handler := handlers.New(table, log)

	// Unblock the read loop on shutdown: closing the connection is the only
	// way to interrupt a pending ReadRecord.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.shutdown:
		case <-stop:
			return
		}
		_ = conn.Close()
	}()

	defer func() {
		closed := table.CloseAll()
		descriptorsLive.Sub(float64(closed))
		_ = conn.Close()
		connectionsOpen.Dec()
		log.Info("Connection torn down", "descriptors_closed", closed)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		default:
		}

		record, err := rpc.ReadRecord(conn)
		if err != nil {
			if err == io.EOF {
				log.Info("Client closed connection")
			} else {
				log.Warn("Connection broken", "error", err)
			}
			return
		}

		if !s.serveRequest(handler, conn, log, record) {
			return
		}
	}
}

// serveRequest parses, dispatches, and answers one request. Returns false
// when the connection must be torn down (malformed envelope, reply that
// cannot be encoded, or unwritable reply).
func (s *Server) serveRequest(handler *handlers.Handler, conn net.Conn, log *slog.Logger, record []byte) bool {
	start := time.Now()

	call, err := rpc.ParseCall(record)
	if err != nil {
		// An unparseable envelope leaves no xid to answer with; the only
		// safe move is to drop the connection.
		log.Warn("Malformed request envelope", "error", err)
		return false
	}

	liveBefore := handler.Table.Live()

	body, status := s.dispatchCall(handler, call)

	descriptorsLive.Add(float64(handler.Table.Live() - liveBefore))

	procName := types.ProcName(call.Procedure)
	observeRequest(procName, status, start)
	trackIOBytes(call, body, status)

	reply, err := rpc.EncodeAcceptedReply(call.XID, status, body)
	if err != nil {
		log.Warn("Reply encode failed", "error", err)
		return false
	}
	if err := rpc.WriteRecord(conn, reply); err != nil {
		log.Warn("Reply write failed", "error", err)
		return false
	}

	log.Debug("Request served",
		logger.KeyProcedure, procName,
		logger.KeyXID, call.XID,
		logger.KeyStatus, status,
		logger.KeyDurationMs, logger.Duration(start))
	return true
}

// dispatchCall validates the program/version triple and dispatches the call.
func (s *Server) dispatchCall(handler *handlers.Handler, call *rpc.CallMessage) ([]byte, uint32) {
	if call.Program != types.Program {
		return nil, rpc.ProgUnavail
	}
	if call.Version != types.Version {
		return progMismatchBody(), rpc.ProgMismatch
	}
	return bridge.Dispatch(handler, call.Procedure, call.Body)
}

// progMismatchBody is the PROG_MISMATCH reply body: the low and high
// supported versions.
func progMismatchBody() []byte {
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, types.Version)
	_ = xdr.WriteUint32(buf, types.Version)
	return buf.Bytes()
}

// trackIOBytes feeds the byte counters from successfully served data calls.
// The counts are read off the wire layout rather than re-decoding the
// bodies: the payload's length prefix sits after the two result words in a
// read reply, and after the handle word in a write request.
func trackIOBytes(call *rpc.CallMessage, body []byte, status uint32) {
	if status != rpc.Success {
		return
	}

	switch call.Procedure {
	case types.ProcRead, types.ProcPread:
		if len(body) >= 12 {
			bytesRead.Add(float64(binary.BigEndian.Uint32(body[8:12])))
		}
	case types.ProcWrite, types.ProcPwrite:
		if len(call.Body) >= 8 {
			bytesWritten.Add(float64(binary.BigEndian.Uint32(call.Body[4:8])))
		}
	}
}
