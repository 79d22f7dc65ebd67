package credit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dukapos/dukapos/internal/platform/httpx"
)

// Handler exposes customer and supplier credit management over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	suppliers *SupplierService
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, suppliers *SupplierService) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		suppliers: suppliers,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers credit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/channels/{channelID}/customers/{customerID}", func(r chi.Router) {
		r.Get("/", h.summary)
		r.Post("/approval", h.approve)
		r.Put("/limit", h.updateLimit)
		r.Put("/duration", h.updateDuration)
		r.Post("/charges", h.charge)
		r.Post("/repayments", h.repay)
	})
	r.Route("/channels/{channelID}/suppliers/{supplierID}", func(r chi.Router) {
		r.Get("/", h.supplierSummary)
		r.Post("/approval", h.supplierApprove)
		r.Put("/limit", h.supplierUpdateLimit)
		r.Put("/duration", h.supplierUpdateDuration)
		r.Post("/repayments", h.supplierRepay)
	})
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid channel id")
		return 0, "", false
	}
	customerID := chi.URLParam(r, "customerID")
	if customerID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "missing customer id")
		return 0, "", false
	}
	return channelID, customerID, true
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

func (h *Handler) respond(w http.ResponseWriter, customerID string, summary Summary, err error) {
	if err != nil {
		h.logger.Error("credit operation", slog.Any("error", err), slog.String("customer_id", customerID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	channelID, customerID, ok := h.params(w, r)
	if !ok {
		return
	}
	summary, err := h.service.GetCreditSummary(r.Context(), channelID, customerID)
	h.respond(w, customerID, summary, err)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	channelID, customerID, ok := h.params(w, r)
	if !ok {
		return
	}
	var input struct {
		Approved bool `json:"approved"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	summary, err := h.service.ApproveCredit(r.Context(), channelID, customerID, input.Approved)
	h.respond(w, customerID, summary, err)
}

func (h *Handler) updateLimit(w http.ResponseWriter, r *http.Request) {
	channelID, customerID, ok := h.params(w, r)
	if !ok {
		return
	}
	var input struct {
		Limit int64 `json:"limit" validate:"min=0"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	summary, err := h.service.UpdateCreditLimit(r.Context(), channelID, customerID, input.Limit)
	h.respond(w, customerID, summary, err)
}

func (h *Handler) updateDuration(w http.ResponseWriter, r *http.Request) {
	channelID, customerID, ok := h.params(w, r)
	if !ok {
		return
	}
	var input struct {
		Days int `json:"days" validate:"min=0"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	summary, err := h.service.UpdateCreditDuration(r.Context(), channelID, customerID, input.Days)
	h.respond(w, customerID, summary, err)
}

func (h *Handler) charge(w http.ResponseWriter, r *http.Request) {
	channelID, customerID, ok := h.params(w, r)
	if !ok {
		return
	}
	var input struct {
		Amount int64 `json:"amount" validate:"required,gt=0"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	summary, err := h.service.ApplyCreditCharge(r.Context(), channelID, customerID, input.Amount)
	h.respond(w, customerID, summary, err)
}

func (h *Handler) repay(w http.ResponseWriter, r *http.Request) {
	channelID, customerID, ok := h.params(w, r)
	if !ok {
		return
	}
	var input struct {
		Amount int64 `json:"amount" validate:"required,gt=0"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	summary, err := h.service.ReleaseCreditCharge(r.Context(), channelID, customerID, input.Amount)
	h.respond(w, customerID, summary, err)
}

func (h *Handler) supplierParams(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid channel id")
		return 0, "", false
	}
	supplierID := chi.URLParam(r, "supplierID")
	if supplierID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "missing supplier id")
		return 0, "", false
	}
	return channelID, supplierID, true
}

func (h *Handler) respondSupplier(w http.ResponseWriter, supplierID string, summary SupplierSummary, err error) {
	if err != nil {
		h.logger.Error("supplier credit operation", slog.Any("error", err), slog.String("supplier_id", supplierID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) supplierSummary(w http.ResponseWriter, r *http.Request) {
	channelID, supplierID, ok := h.supplierParams(w, r)
	if !ok {
		return
	}
	summary, err := h.suppliers.GetSupplierCreditSummary(r.Context(), channelID, supplierID)
	h.respondSupplier(w, supplierID, summary, err)
}

func (h *Handler) supplierApprove(w http.ResponseWriter, r *http.Request) {
	channelID, supplierID, ok := h.supplierParams(w, r)
	if !ok {
		return
	}
	var input struct {
		Approved bool `json:"approved"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	summary, err := h.suppliers.ApproveSupplierCredit(r.Context(), channelID, supplierID, input.Approved)
	h.respondSupplier(w, supplierID, summary, err)
}

func (h *Handler) supplierUpdateLimit(w http.ResponseWriter, r *http.Request) {
	channelID, supplierID, ok := h.supplierParams(w, r)
	if !ok {
		return
	}
	var input struct {
		Limit int64 `json:"limit" validate:"min=0"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	summary, err := h.suppliers.UpdateSupplierCreditLimit(r.Context(), channelID, supplierID, input.Limit)
	h.respondSupplier(w, supplierID, summary, err)
}

func (h *Handler) supplierUpdateDuration(w http.ResponseWriter, r *http.Request) {
	channelID, supplierID, ok := h.supplierParams(w, r)
	if !ok {
		return
	}
	var input struct {
		Days int `json:"days" validate:"min=0"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	summary, err := h.suppliers.UpdateSupplierCreditDuration(r.Context(), channelID, supplierID, input.Days)
	h.respondSupplier(w, supplierID, summary, err)
}

func (h *Handler) supplierRepay(w http.ResponseWriter, r *http.Request) {
	channelID, supplierID, ok := h.supplierParams(w, r)
	if !ok {
		return
	}
	var input struct {
		Amount int64 `json:"amount" validate:"required,gt=0"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	summary, err := h.suppliers.RecordSupplierRepayment(r.Context(), channelID, supplierID, input.Amount)
	h.respondSupplier(w, supplierID, summary, err)
}
