package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/query"
)

// Handlers holds the query facade the read-only endpoints consult.
type Handlers struct {
	facade *query.Facade
	logger *slog.Logger
}

// NewHandlers builds a Handlers wrapping facade.
func NewHandlers(facade *query.Facade, logger *slog.Logger) *Handlers {
	return &Handlers{facade: facade, logger: logger.With("component", "api-handlers")}
}

// HandleHealth is an unauthenticated liveness probe.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleGetUser serves GET /user/{addr}.
func (h *Handlers) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	addr, err := address.FromString(r.PathValue("addr"))
	if err != nil {
		writeError(w, &query.Error{Kind: query.InvalidArgument, Err: err})
		return
	}
	info, err := h.facade.GetUserInfo(addr)
	if err != nil {
		h.writeFacadeError(w, err)
		return
	}
	writeJSON(w, info)
}

// HandleGetPositions serves GET /position/{addr}?history=1.
func (h *Handlers) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	addr, err := address.FromString(r.PathValue("addr"))
	if err != nil {
		writeError(w, &query.Error{Kind: query.InvalidArgument, Err: err})
		return
	}
	prefix := query.Active
	if r.URL.Query().Get("history") != "" {
		prefix = query.HistoryPrefix
	}
	list, err := h.facade.GetPositionList(addr, prefix)
	if err != nil {
		h.writeFacadeError(w, err)
		return
	}
	writeJSON(w, list)
}

func (h *Handlers) writeFacadeError(w http.ResponseWriter, err error) {
	var qErr *query.Error
	if !errors.As(err, &qErr) {
		h.logger.Error("unclassified facade error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if qErr.Kind == query.Internal {
		h.logger.Error("facade error", "error", err)
	}
	writeError(w, qErr)
}

func writeError(w http.ResponseWriter, qErr *query.Error) {
	status := http.StatusInternalServerError
	switch qErr.Kind {
	case query.NotFound:
		status = http.StatusNotFound
	case query.InvalidArgument:
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": qErr.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
