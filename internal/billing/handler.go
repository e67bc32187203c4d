package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/catalog"
	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/shared"
)

// Handler manages billing endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	catalog   catalog.Lookup
	validator *validator.Validate
	clinicRef uuid.UUID
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, lookup catalog.Lookup, clinicRef uuid.UUID) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		catalog:   lookup,
		validator: validator.New(),
		clinicRef: clinicRef,
	}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Post("/invoices/{id}/cancel", h.cancelInvoice)
	r.Get("/invoices/{id}/settled", h.invoiceSettled)
	r.Get("/invoices/{id}/payments", h.listPayments)
	r.Post("/invoices/{id}/payments", h.recordPayment)
	r.Post("/payments/{id}/void", h.voidPayment)
}

type createLineForm struct {
	ServiceCode  string `json:"service_code" validate:"required"`
	Label        string `json:"label"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice    *int64 `json:"unit_price" validate:"omitempty,gte=0"`
	LineDiscount int64  `json:"line_discount" validate:"gte=0"`
}

type createInvoiceForm struct {
	PatientRef   string           `json:"patient_ref" validate:"required,uuid"`
	EncounterRef string           `json:"encounter_ref" validate:"omitempty,uuid"`
	Discount     int64            `json:"discount" validate:"gte=0"`
	OriginTag    string           `json:"origin_tag" validate:"max=64"`
	Lines        []createLineForm `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var form createInvoiceForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.BadRequest(w, "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.UnprocessableEntity(w, err.Error())
		return
	}

	patientRef, _ := uuid.Parse(form.PatientRef)
	var encounterRef *uuid.UUID
	if form.EncounterRef != "" {
		ref, _ := uuid.Parse(form.EncounterRef)
		encounterRef = &ref
	}

	lines := make([]LineInput, 0, len(form.Lines))
	for _, lf := range form.Lines {
		line := LineInput{
			ServiceCode:  lf.ServiceCode,
			Label:        lf.Label,
			LineDiscount: lf.LineDiscount,
			Quantity:     lf.Quantity,
		}
		// Resolve label and tariff from the catalog when the caller sends
		// only the service code.
		if lf.UnitPrice == nil || lf.Label == "" {
			item, err := h.catalog.FindByCode(r.Context(), lf.ServiceCode)
			if err != nil {
				if errors.Is(err, catalog.ErrUnknownService) {
					httpx.UnprocessableEntity(w, "unknown service code "+lf.ServiceCode)
					return
				}
				h.logger.Error("catalog lookup", slog.Any("error", err), slog.String("code", lf.ServiceCode))
				httpx.Internal(w)
				return
			}
			if lf.UnitPrice == nil {
				line.UnitPrice = item.BaseTariff
			} else {
				line.UnitPrice = *lf.UnitPrice
			}
			if lf.Label == "" {
				line.Label = item.Label
			}
		} else {
			line.UnitPrice = *lf.UnitPrice
		}
		lines = append(lines, line)
	}

	inv, err := h.service.CreateInvoice(r.Context(), CreateInvoiceInput{
		ClinicRef:    h.clinicRef,
		PatientRef:   patientRef,
		EncounterRef: encounterRef,
		Discount:     form.Discount,
		OriginTag:    form.OriginTag,
		Lines:        lines,
	})
	if err != nil {
		h.respondError(w, err, "create invoice")
		return
	}
	httpx.JSON(w, http.StatusCreated, invoiceResponse(inv))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "get invoice")
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse(inv))
}

func (h *Handler) invoiceSettled(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	settled, err := h.service.IsInvoiceSettled(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "invoice settled")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice_id": id, "settled": settled})
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListInvoicesFilter{
		Status:      InvoiceStatus(q.Get("status")),
		NumberQuery: q.Get("number"),
	}
	if ref := q.Get("patient_ref"); ref != "" {
		parsed, err := uuid.Parse(ref)
		if err != nil {
			httpx.BadRequest(w, "invalid patient_ref")
			return
		}
		filter.PatientRef = parsed
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.BadRequest(w, "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.BadRequest(w, "invalid to date")
			return
		}
		filter.To = t.AddDate(0, 0, 1)
	}
	if limit := q.Get("limit"); limit != "" {
		filter.Limit, _ = strconv.Atoi(limit)
	}
	if offset := q.Get("offset"); offset != "" {
		filter.Offset, _ = strconv.Atoi(offset)
	}

	invoices, pagination, err := h.service.ListInvoices(r.Context(), filter)
	if err != nil {
		h.respondError(w, err, "list invoices")
		return
	}
	items := make([]map[string]any, 0, len(invoices))
	for i := range invoices {
		items = append(items, invoiceResponse(&invoices[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices": items,
		"pagination": map[string]int{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	cashier, ok := shared.CashierFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "cashier identity required")
		return
	}
	inv, err := h.service.CancelInvoice(r.Context(), id, cashier.Ref)
	if err != nil {
		h.respondError(w, err, "cancel invoice")
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse(inv))
}

type recordPaymentForm struct {
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	Method         string `json:"method" validate:"required"`
	TransactionRef string `json:"transaction_ref"`
	BankName       string `json:"bank_name"`
	ChequeNumber   string `json:"cheque_number"`
	CoverageRef    string `json:"coverage_ref"`
	ReceivedAt     string `json:"received_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	cashier, ok := shared.CashierFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "cashier identity required")
		return
	}

	var form recordPaymentForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.BadRequest(w, "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.UnprocessableEntity(w, err.Error())
		return
	}

	input := RecordPaymentInput{
		InvoiceID:      id,
		Amount:         form.Amount,
		Method:         PaymentMethod(form.Method),
		TransactionRef: form.TransactionRef,
		BankName:       form.BankName,
		ChequeNumber:   form.ChequeNumber,
		CoverageRef:    form.CoverageRef,
		CashierRef:     cashier.Ref,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if form.ReceivedAt != "" {
		input.ReceivedAt, _ = time.Parse(time.RFC3339, form.ReceivedAt)
	}

	result, err := h.service.RecordPayment(r.Context(), input)
	if err != nil {
		h.respondError(w, err, "record payment")
		return
	}
	httpx.JSON(w, http.StatusCreated, paymentResultResponse(result))
}

type voidPaymentForm struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

func (h *Handler) voidPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	cashier, ok := shared.CashierFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "cashier identity required")
		return
	}

	var form voidPaymentForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.BadRequest(w, "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.UnprocessableEntity(w, err.Error())
		return
	}

	result, err := h.service.VoidPayment(r.Context(), VoidPaymentInput{
		PaymentID:  id,
		Reason:     form.Reason,
		CashierRef: cashier.Ref,
	})
	if err != nil {
		h.respondError(w, err, "void payment")
		return
	}
	httpx.JSON(w, http.StatusOK, paymentResultResponse(result))
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	payments, err := h.service.ListPaymentsForInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "list payments")
		return
	}
	items := make([]map[string]any, 0, len(payments))
	for i := range payments {
		items = append(items, paymentResponse(payments[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": items})
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.BadRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrEmptyInvoice),
		errors.Is(err, ErrInvalidLine),
		errors.Is(err, ErrInvalidDiscount),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidMethod),
		errors.Is(err, ErrMissingMethodField):
		httpx.UnprocessableEntity(w, err.Error())
	case errors.Is(err, ErrOverpayment),
		errors.Is(err, ErrInvoiceHasPayments),
		errors.Is(err, ErrInvoiceNotCancellable),
		errors.Is(err, ErrInvoiceNotPayable),
		errors.Is(err, ErrNoOpenJournal),
		errors.Is(err, ErrPaymentAlreadyVoid),
		errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Conflict(w, err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.NotFound(w, err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Internal(w)
	}
}

func invoiceResponse(inv *Invoice) map[string]any {
	lines := make([]map[string]any, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		lines = append(lines, map[string]any{
			"id":            l.ID,
			"service_code":  l.ServiceCode,
			"label":         l.Label,
			"quantity":      l.Quantity,
			"unit_price":    l.UnitPrice,
			"line_discount": l.LineDiscount,
			"amount":        l.Amount,
		})
	}
	resp := map[string]any{
		"id":             inv.ID,
		"number":         inv.Number,
		"patient_ref":    inv.PatientRef,
		"lines":          lines,
		"gross_total":    inv.GrossTotal,
		"discount_total": inv.DiscountTotal,
		"net_total":      inv.NetTotal,
		"paid_total":     inv.PaidTotal,
		"balance_due":    inv.BalanceDue(),
		"status":         inv.Status,
		"origin_tag":     inv.OriginTag,
		"created_at":     inv.CreatedAt,
	}
	if inv.EncounterRef != nil {
		resp["encounter_ref"] = *inv.EncounterRef
	}
	if inv.CancelledAt != nil {
		resp["cancelled_at"] = *inv.CancelledAt
	}
	return resp
}

func paymentResponse(p Payment) map[string]any {
	resp := map[string]any{
		"id":          p.ID,
		"number":      p.Number,
		"invoice_id":  p.InvoiceID,
		"amount":      p.Amount,
		"method":      p.Method,
		"cashier_ref": p.CashierRef,
		"received_at": p.ReceivedAt,
		"voided":      p.Voided(),
	}
	if p.TransactionRef != "" {
		resp["transaction_ref"] = p.TransactionRef
	}
	if p.BankName != "" {
		resp["bank_name"] = p.BankName
		resp["cheque_number"] = p.ChequeNumber
	}
	if p.CoverageRef != "" {
		resp["coverage_ref"] = p.CoverageRef
	}
	if p.JournalID != nil {
		resp["journal_id"] = *p.JournalID
	}
	if p.VoidedAt != nil {
		resp["voided_at"] = *p.VoidedAt
		resp["void_reason"] = p.VoidReason
	}
	return resp
}

func paymentResultResponse(result *PaymentResult) map[string]any {
	return map[string]any{
		"payment":     paymentResponse(result.Payment),
		"balance_due": result.BalanceDue,
		"status":      result.Status,
	}
}
