package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tradeindia-proxy/internal/tradeindia"
)

// LeadFetcher is the upstream collaborator; *tradeindia.Client implements it.
type LeadFetcher interface {
	FetchLeads(ctx context.Context, q tradeindia.Query) ([]byte, error)
}

type Handler struct {
	Leads LeadFetcher
	Now   func() time.Time
	Log   *zap.Logger
}

func New(leads LeadFetcher, now func() time.Time, log *zap.Logger) *Handler {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Leads: leads, Now: now, Log: log}
}

// ---- small helpers ----

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteRawJSON writes an already-encoded JSON document as is.
func WriteRawJSON(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]any{"error": msg})
}
