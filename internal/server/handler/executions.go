package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

// RecentExecutions lists executions newest first.
type RecentExecutions interface {
	Executions(limit int) []domain.Execution
}

// ExecutionHandler serves recent executions from the database when one is
// configured and from the in-memory journal otherwise.
type ExecutionHandler struct {
	store   domain.ExecutionStore
	journal RecentExecutions
	logger  *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler. Either source may be nil.
func NewExecutionHandler(store domain.ExecutionStore, journal RecentExecutions, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		store:   store,
		journal: journal,
		logger:  logger.With(slog.String("handler", "executions")),
	}
}

// ListRecent returns up to ?limit= executions.
// GET /api/executions/recent
func (h *ExecutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	var execs []domain.Execution
	switch {
	case h.store != nil:
		var err error
		execs, err = h.store.ListRecent(r.Context(), limit)
		if err != nil {
			h.logger.Error("list executions failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list executions")
			return
		}
	case h.journal != nil:
		execs = h.journal.Executions(limit)
	}
	if execs == nil {
		execs = []domain.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs, "count": len(execs)})
}
