package finance

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dukapos/dukapos/internal/ledger"
	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/shared"
)

// PaymentEnqueuer hands a payment posting to the background queue when the
// synchronous path fails for a transient reason.
type PaymentEnqueuer interface {
	EnqueuePostPayment(ctx context.Context, paymentID string, pc ledger.PaymentContext) error
}

// Handler exposes the finance façade over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	queue    PaymentEnqueuer
	validate *validator.Validate
}

// NewHandler builds Handler instance. The queue is optional; without it a
// failed payment posting is reported to the caller instead of being retried.
func NewHandler(logger *slog.Logger, service *Service, queue PaymentEnqueuer) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		queue:    queue,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers finance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments", h.recordPayment)
	r.Post("/credit-sales", h.recordCreditSale)
	r.Post("/supplier-purchases", h.recordSupplierPurchase)
	r.Post("/supplier-payments", h.recordSupplierPayment)
	r.Post("/refunds", h.recordRefund)

	r.Route("/channels/{channelID}", func(r chi.Router) {
		r.Get("/summary", h.summary)
		r.Get("/customers/{customerID}/balance", h.customerBalance)
		r.Get("/suppliers/{supplierID}/balance", h.supplierBalance)
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

// retryable reports whether a failed posting may succeed on a later attempt.
// Malformed entries and misconfigured accounts never will.
func retryable(err error) bool {
	return !errors.Is(err, shared.ErrUnbalancedEntry) &&
		!errors.Is(err, shared.ErrConfiguration) &&
		!errors.Is(err, shared.ErrInvariantViolation)
}

type paymentRequest struct {
	PaymentID  string `json:"paymentId" validate:"required"`
	ChannelID  int64  `json:"channelId" validate:"required,gt=0"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	Method     string `json:"method" validate:"required"`
	OrderID    string `json:"orderId"`
	OrderCode  string `json:"orderCode"`
	CustomerID string `json:"customerId"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var input paymentRequest
	if !h.decode(w, r, &input) {
		return
	}
	pc := ledger.PaymentContext{
		ChannelID:  input.ChannelID,
		Amount:     input.Amount,
		Method:     input.Method,
		OrderID:    input.OrderID,
		OrderCode:  input.OrderCode,
		CustomerID: input.CustomerID,
	}
	if err := h.service.RecordPayment(r.Context(), input.PaymentID, pc); err != nil {
		if h.queue != nil && retryable(err) {
			if qerr := h.queue.EnqueuePostPayment(r.Context(), input.PaymentID, pc); qerr == nil {
				h.logger.Warn("payment posting queued for retry",
					slog.String("payment_id", input.PaymentID),
					slog.Any("error", err))
				httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
				return
			}
		}
		h.logger.Error("record payment", slog.Any("error", err), slog.String("payment_id", input.PaymentID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "posted"})
}

func (h *Handler) recordCreditSale(w http.ResponseWriter, r *http.Request) {
	var input struct {
		OrderID      string `json:"orderId" validate:"required"`
		ChannelID    int64  `json:"channelId" validate:"required,gt=0"`
		Amount       int64  `json:"amount" validate:"required,gt=0"`
		OrderCode    string `json:"orderCode"`
		CustomerID   string `json:"customerId" validate:"required"`
		IsCreditSale bool   `json:"isCreditSale"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	err := h.service.RecordCreditSale(r.Context(), input.OrderID, ledger.SaleContext{
		ChannelID:    input.ChannelID,
		Amount:       input.Amount,
		OrderID:      input.OrderID,
		OrderCode:    input.OrderCode,
		CustomerID:   input.CustomerID,
		IsCreditSale: input.IsCreditSale,
	})
	if err != nil {
		h.logger.Error("record credit sale", slog.Any("error", err), slog.String("order_id", input.OrderID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "posted"})
}

func (h *Handler) recordSupplierPurchase(w http.ResponseWriter, r *http.Request) {
	var input struct {
		PurchaseID        string `json:"purchaseId" validate:"required"`
		ChannelID         int64  `json:"channelId" validate:"required,gt=0"`
		Amount            int64  `json:"amount" validate:"required,gt=0"`
		PurchaseReference string `json:"purchaseReference"`
		SupplierID        string `json:"supplierId" validate:"required"`
		IsCreditPurchase  bool   `json:"isCreditPurchase"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	err := h.service.RecordSupplierPurchase(r.Context(), input.PurchaseID, ledger.PurchaseContext{
		ChannelID:         input.ChannelID,
		Amount:            input.Amount,
		PurchaseID:        input.PurchaseID,
		PurchaseReference: input.PurchaseReference,
		SupplierID:        input.SupplierID,
		IsCreditPurchase:  input.IsCreditPurchase,
	})
	if err != nil {
		h.logger.Error("record supplier purchase", slog.Any("error", err), slog.String("purchase_id", input.PurchaseID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "posted"})
}

func (h *Handler) recordSupplierPayment(w http.ResponseWriter, r *http.Request) {
	var input struct {
		PaymentID         string `json:"paymentId" validate:"required"`
		ChannelID         int64  `json:"channelId" validate:"required,gt=0"`
		Amount            int64  `json:"amount" validate:"required,gt=0"`
		PurchaseID        string `json:"purchaseId"`
		PurchaseReference string `json:"purchaseReference"`
		SupplierID        string `json:"supplierId" validate:"required"`
		Method            string `json:"method" validate:"required"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	err := h.service.RecordSupplierPayment(r.Context(), input.PaymentID, ledger.SupplierPaymentContext{
		ChannelID:         input.ChannelID,
		Amount:            input.Amount,
		PurchaseID:        input.PurchaseID,
		PurchaseReference: input.PurchaseReference,
		SupplierID:        input.SupplierID,
		Method:            input.Method,
	})
	if err != nil {
		h.logger.Error("record supplier payment", slog.Any("error", err), slog.String("payment_id", input.PaymentID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "posted"})
}

func (h *Handler) recordRefund(w http.ResponseWriter, r *http.Request) {
	var input struct {
		RefundID          string `json:"refundId" validate:"required"`
		ChannelID         int64  `json:"channelId" validate:"required,gt=0"`
		Amount            int64  `json:"amount" validate:"required,gt=0"`
		OrderID           string `json:"orderId"`
		OrderCode         string `json:"orderCode"`
		OriginalPaymentID string `json:"originalPaymentId"`
		Method            string `json:"method" validate:"required"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	err := h.service.RecordRefund(r.Context(), input.RefundID, ledger.RefundContext{
		ChannelID:         input.ChannelID,
		Amount:            input.Amount,
		OrderID:           input.OrderID,
		OrderCode:         input.OrderCode,
		OriginalPaymentID: input.OriginalPaymentID,
		Method:            input.Method,
	})
	if err != nil {
		h.logger.Error("record refund", slog.Any("error", err), slog.String("refund_id", input.RefundID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "posted"})
}

func (h *Handler) channelID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid channel id")
		return 0, false
	}
	return channelID, true
}

// periodRange parses optional from/to query parameters as RFC 3339 dates.
func periodRange(r *http.Request) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, nil, err
		}
		to = &t
	}
	return from, to, nil
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.channelID(w, r)
	if !ok {
		return
	}
	from, to, err := periodRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period bound, expected RFC 3339")
		return
	}
	summary, err := h.service.GetSummary(r.Context(), channelID, from, to)
	if err != nil {
		h.logger.Error("finance summary", slog.Any("error", err), slog.Int64("channel_id", channelID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) customerBalance(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.channelID(w, r)
	if !ok {
		return
	}
	amount, err := h.service.GetCustomerBalance(r.Context(), channelID, chi.URLParam(r, "customerID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, amount)
}

func (h *Handler) supplierBalance(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.channelID(w, r)
	if !ok {
		return
	}
	amount, err := h.service.GetSupplierBalance(r.Context(), channelID, chi.URLParam(r, "supplierID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, amount)
}
