// Package handlers implements the per-procedure server logic of the bridge
// protocol. Each handler receives a decoded request, executes the underlying
// kernel operation on the server's own descriptors, and fills a response
// carrying the numeric result and the captured kernel error.
//
// Handlers never fail "upward": every outcome of the target operation,
// including errors, is a successful RPC reply whose body reports the result.
// Only undecodable arguments or transport failures surface as RPC-level
// errors, and those are the dispatcher's business.
package handlers

import (
	"log/slog"

	"github.com/catabozan/fdbridge/internal/fdtable"
	"github.com/catabozan/fdbridge/internal/logger"
)

// Handler executes bridge procedures against one connection's translation
// table. The dispatcher owns exactly one Handler per connection and calls it
// serially, so the Handler carries no locking.
type Handler struct {
	// Table is the connection's descriptor translation table.
	Table *fdtable.Table

	// Log is the connection-scoped logger, pre-bound with the connection id.
	Log *slog.Logger
}

// New creates a Handler bound to a translation table.
func New(table *fdtable.Table, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.With()
	}
	return &Handler{Table: table, Log: log}
}

// Null does nothing. Used by clients to probe connectivity.
func (h *Handler) Null() {}
