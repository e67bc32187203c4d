package cashdesk

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/shared"
)

// Handler manages cash desk endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers cash desk routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/journals/open", h.openJournal)
	r.Post("/journals/close", h.closeJournal)
	r.Get("/journals/current", h.currentJournal)
	r.Get("/reports/daily", h.dailyReport)
}

type openJournalForm struct {
	BusinessDate   string `json:"business_date" validate:"omitempty,datetime=2006-01-02"`
	OpeningBalance int64  `json:"opening_balance" validate:"gte=0"`
	PIN            string `json:"pin" validate:"omitempty,min=4,max=12"`
}

func (h *Handler) openJournal(w http.ResponseWriter, r *http.Request) {
	cashier, ok := shared.CashierFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "cashier identity required")
		return
	}

	var form openJournalForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.BadRequest(w, "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.UnprocessableEntity(w, err.Error())
		return
	}

	input := OpenJournalInput{
		CashierRef:     cashier.Ref,
		OpeningBalance: form.OpeningBalance,
		PIN:            form.PIN,
	}
	if form.BusinessDate != "" {
		input.BusinessDate, _ = time.Parse("2006-01-02", form.BusinessDate)
	}

	journal, err := h.service.OpenJournal(r.Context(), input)
	if err != nil {
		h.respondError(w, err, "open journal")
		return
	}
	httpx.JSON(w, http.StatusCreated, journalResponse(journal))
}

type closeJournalForm struct {
	BusinessDate   string `json:"business_date" validate:"omitempty,datetime=2006-01-02"`
	CountedBalance *int64 `json:"counted_balance" validate:"omitempty,gte=0"`
}

func (h *Handler) closeJournal(w http.ResponseWriter, r *http.Request) {
	cashier, ok := shared.CashierFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "cashier identity required")
		return
	}

	var form closeJournalForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.BadRequest(w, "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.UnprocessableEntity(w, err.Error())
		return
	}

	input := CloseJournalInput{
		CashierRef:     cashier.Ref,
		CountedBalance: form.CountedBalance,
	}
	if form.BusinessDate != "" {
		input.BusinessDate, _ = time.Parse("2006-01-02", form.BusinessDate)
	}

	journal, err := h.service.CloseJournal(r.Context(), input)
	if err != nil {
		h.respondError(w, err, "close journal")
		return
	}
	httpx.JSON(w, http.StatusOK, journalResponse(journal))
}

func (h *Handler) currentJournal(w http.ResponseWriter, r *http.Request) {
	cashier, ok := shared.CashierFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "cashier identity required")
		return
	}

	date := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.BadRequest(w, "invalid date")
			return
		}
		date = parsed
	}

	journal, err := h.service.GetJournal(r.Context(), cashier.Ref, date)
	if err != nil {
		h.respondError(w, err, "get journal")
		return
	}
	httpx.JSON(w, http.StatusOK, journalResponse(journal))
}

func (h *Handler) dailyReport(w http.ResponseWriter, r *http.Request) {
	date := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.BadRequest(w, "invalid date")
			return
		}
		date = parsed
	}

	var cashierRef *uuid.UUID
	if raw := r.URL.Query().Get("cashier_ref"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpx.BadRequest(w, "invalid cashier_ref")
			return
		}
		cashierRef = &parsed
	}

	report, err := h.service.GetDailyReport(r.Context(), date, cashierRef)
	if err != nil {
		h.respondError(w, err, "daily report")
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) respondError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrInvalidOpening):
		httpx.UnprocessableEntity(w, err.Error())
	case errors.Is(err, ErrInvalidPIN):
		httpx.Unauthorized(w, err.Error())
	case errors.Is(err, ErrJournalAlreadyOpen), errors.Is(err, ErrJournalAlreadyClosed):
		httpx.Conflict(w, err.Error())
	case errors.Is(err, ErrJournalNotFound):
		httpx.NotFound(w, err.Error())
	case errors.Is(err, shared.ErrCashierMissing):
		httpx.Unauthorized(w, err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Internal(w)
	}
}

func journalResponse(j *Journal) map[string]any {
	resp := map[string]any{
		"id":              j.ID,
		"cashier_ref":     j.CashierRef,
		"business_date":   j.BusinessDate.Format("2006-01-02"),
		"opening_balance": j.OpeningBalance,
		"status":          j.Status,
		"opened_at":       j.OpenedAt,
	}
	if j.ClosingBalance != nil {
		resp["closing_balance"] = *j.ClosingBalance
	}
	if j.CountedBalance != nil {
		resp["counted_balance"] = *j.CountedBalance
		resp["variance"] = j.Variance()
	}
	if j.ClosedAt != nil {
		resp["closed_at"] = *j.ClosedAt
	}
	return resp
}
