package reporting

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/reporting/export"
)

// Handler manages reporting endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/statistics", h.statistics)
	r.Get("/reports/invoices.csv", h.invoicesCSV)
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	stats, err := h.service.GetStatistics(r.Context(), from, to)
	if err != nil {
		h.logger.Error("statistics", slog.Any("error", err))
		httpx.Internal(w)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) invoicesCSV(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	rows, err := h.service.InvoiceRows(r.Context(), from, to)
	if err != nil {
		h.logger.Error("invoice export", slog.Any("error", err))
		httpx.Internal(w)
		return
	}

	filename := fmt.Sprintf("invoices_%s_%s.csv", from.Format("2006-01-02"), to.Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := export.WriteInvoicesCSV(w, rows); err != nil {
		h.logger.Error("invoice export write", slog.Any("error", err))
	}
}

// parseRange reads from/to query dates, defaulting to the current day.
func (h *Handler) parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	now := time.Now()
	from, to := now, now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.BadRequest(w, "invalid from date")
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.BadRequest(w, "invalid to date")
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}
	if to.Before(from) {
		httpx.BadRequest(w, "to must not precede from")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
