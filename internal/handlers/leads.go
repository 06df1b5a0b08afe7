package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tradeindia-proxy/internal/metrics"
	"tradeindia-proxy/internal/tradeindia"
)

const upstreamFailure = "Failed to fetch TradeIndia data"

// FetchTradeIndia validates the query, calls the upstream once and relays its
// body. Rate limiting happens before this handler runs.
func (h *Handler) FetchTradeIndia(w http.ResponseWriter, r *http.Request) {
	today := h.Now().UTC().Format(DateLayout)

	q, err := ParseQuery(r.URL.Query(), today)
	if err != nil {
		var qe *QueryError
		if errors.As(err, &qe) {
			WriteError(w, http.StatusBadRequest, qe.Error())
			return
		}
		WriteError(w, http.StatusBadRequest, "Invalid query")
		return
	}

	start := time.Now()
	body, err := h.Leads.FetchLeads(r.Context(), q)
	if err != nil {
		metrics.UpstreamDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		h.Log.Warn("error fetching TradeIndia data",
			zap.String("from_date", q.FromDate),
			zap.String("to_date", q.ToDate),
			zap.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   upstreamFailure,
			"details": upstreamDetails(err),
		})
		return
	}
	metrics.UpstreamDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	if !json.Valid(body) {
		// Non-JSON bodies go out as a JSON string.
		WriteJSON(w, http.StatusOK, string(body))
		return
	}
	WriteRawJSON(w, http.StatusOK, body)
}

func upstreamDetails(err error) string {
	var te *tradeindia.Error
	if errors.As(err, &te) {
		return te.Error()
	}
	// Other LeadFetcher implementations are not known to scrub their errors.
	return "upstream request failed"
}
