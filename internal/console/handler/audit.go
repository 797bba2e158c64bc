package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/xela07ax/custody-guard/internal/audit"
	"github.com/xela07ax/custody-guard/internal/domain"
)

type AuditHandler struct {
	ledger *audit.Ledger
}

func NewAuditHandler(l *audit.Ledger) *AuditHandler {
	return &AuditHandler{ledger: l}
}

// parseFilter собирает AuditFilter из query-параметров.
// GET /v1/audit?status=denied&action_type=transfer&from=...&search=...
func parseFilter(r *http.Request) domain.AuditFilter {
	q := r.URL.Query()
	f := domain.AuditFilter{
		Status:     domain.AuditStatus(q.Get("status")),
		ActionType: q.Get("action_type"),
		AccountID:  q.Get("account_id"),
		Search:     q.Get("search"),
	}
	if ts, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		f.From = ts
	}
	if ts, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		f.To = ts
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		f.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		f.Offset = n
	}
	return f
}

// GetLogs возвращает страницу журнала решений.
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	page, err := h.ledger.Query(r.Context(), parseFilter(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetStats — GET /v1/audit/stats: агрегаты считаются на момент запроса.
func (h *AuditHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context(), parseFilter(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Export — GET /v1/audit/export: CSV-выгрузка отфильтрованного среза.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.ledger.ExportCSV(r.Context(), parseFilter(r))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
