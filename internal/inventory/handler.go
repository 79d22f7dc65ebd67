package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukapos/dukapos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	config   *ConfigService
	recon    *ReconciliationService
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, config *ConfigService, recon *ReconciliationService) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		config:   config,
		recon:    recon,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchases", h.recordPurchase)
	r.Post("/sales", h.recordSale)
	r.Post("/adjustments", h.recordAdjustment)
	r.Post("/write-offs", h.recordWriteOff)
	r.Post("/channels/{channelID}/expiry-scan", h.runExpiryScan)
	r.Get("/channels/{channelID}/valuation", h.getValuation)
	r.Get("/channels/{channelID}/batches", h.getOpenBatches)
	r.Get("/channels/{channelID}/movements", h.getMovements)
	r.Get("/channels/{channelID}/config", h.getConfig)
	r.Put("/channels/{channelID}/config", h.setConfig)
	r.Get("/channels/{channelID}/reconciliation", h.getReconciliationReport)
	r.Get("/channels/{channelID}/reconciliation/valuation", h.checkValuation)
	r.Get("/channels/{channelID}/reconciliation/stock", h.checkStockLevel)
}

func (h *Handler) recordPurchase(w http.ResponseWriter, r *http.Request) {
	var input PurchaseInput
	if !h.decode(w, r, &input) {
		return
	}
	result, err := h.service.RecordPurchase(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	var input SaleInput
	if !h.decode(w, r, &input) {
		return
	}
	result, err := h.service.RecordSale(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) recordAdjustment(w http.ResponseWriter, r *http.Request) {
	var input AdjustmentInput
	if !h.decode(w, r, &input) {
		return
	}
	movements, err := h.service.RecordAdjustment(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"movements": movements})
}

func (h *Handler) recordWriteOff(w http.ResponseWriter, r *http.Request) {
	var input WriteOffInput
	if !h.decode(w, r, &input) {
		return
	}
	result, err := h.service.RecordWriteOff(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) runExpiryScan(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.channelID(w, r)
	if !ok {
		return
	}
	scanID := "expiry:" + uuid.NewString()
	result, err := h.service.RecordExpiry(r.Context(), channelID, scanID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scanId": scanID, "result": result})
}

func (h *Handler) getValuation(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.channelID(w, r)
	if !ok {
		return
	}
	filters := BatchFilters{ChannelID: channelID}
	filters.LocationID, _ = strconv.ParseInt(r.URL.Query().Get("locationId"), 10, 64)
	filters.VariantID = r.URL.Query().Get("variantId")

	snap, err := h.service.GetValuation(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) getOpenBatches(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.channelID(w, r)
	if !ok {
		return
	}
	filters := BatchFilters{ChannelID: channelID}
	filters.LocationID, _ = strconv.ParseInt(r.URL.Query().Get("locationId"), 10, 64)
	filters.VariantID = r.URL.Query().Get("variantId")
	if r.URL.Query().Get("expired") == "true" {
		now := time.Now().UTC()
		filters.ExpiredBefore = &now
	}

	batches, err := h.service.GetOpenBatches(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": toBatchViews(batches)})
}

func (h *Handler) getMovements(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.channelID(w, r)
	if !ok {
		return
	}
	filters := MovementFilters{ChannelID: channelID}
	filters.LocationID, _ = strconv.ParseInt(r.URL.Query().Get("locationId"), 10, 64)
	filters.VariantID = r.URL.Query().Get("variantId")
	filters.Type = MovementType(r.URL.Query().Get("type"))
	filters.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if raw := r.URL.Query().Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "from must be RFC3339")
			return
		}
		filters.From = &ts
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "to must be RFC3339")
			return
		}
		filters.To = &ts
	}

	trail, err := h.recon.GetMovementTrail(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, trail)
}

func (h *Handler) getReconciliationReport(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.channelID(w, r)
	if !ok {
		return
	}
	report, err := h.recon.GetReport(r.Context(), channelID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) checkValuation(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.channelID(w, r)
	if !ok {
		return
	}
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("locationId"), 10, 64)
	result, err := h.recon.CheckValuation(r.Context(), channelID, locationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) checkStockLevel(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.channelID(w, r)
	if !ok {
		return
	}
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("locationId"), 10, 64)
	variantID := r.URL.Query().Get("variantId")
	if locationID == 0 || variantID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "locationId and variantId are required")
		return
	}
	result, err := h.recon.CheckStockLevel(r.Context(), channelID, locationID, variantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.channelID(w, r)
	if !ok {
		return
	}
	cfg, err := h.config.GetConfiguration(r.Context(), channelID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

type setConfigRequest struct {
	StrategyName  string `json:"strategyName" validate:"required"`
	PolicyName    string `json:"policyName" validate:"required"`
	ValuationMode string `json:"valuationMode" validate:"required"`
}

func (h *Handler) setConfig(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.channelID(w, r)
	if !ok {
		return
	}
	var req setConfigRequest
	if !h.decode(w, r, &req) {
		return
	}
	cfg := ChannelConfig{
		ChannelID:     channelID,
		StrategyName:  req.StrategyName,
		PolicyName:    req.PolicyName,
		ValuationMode: ValuationMode(req.ValuationMode),
	}
	if err := h.config.SetConfiguration(r.Context(), cfg); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *Handler) channelID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid channel id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

type batchView struct {
	ID         int64      `json:"id"`
	LocationID int64      `json:"locationId"`
	VariantID  string     `json:"variantId"`
	Quantity   int64      `json:"quantity"`
	UnitCost   int64      `json:"unitCost"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func toBatchViews(batches []Batch) []batchView {
	out := make([]batchView, 0, len(batches))
	for _, b := range batches {
		out = append(out, batchView{
			ID:         b.ID,
			LocationID: b.LocationID,
			VariantID:  b.VariantID,
			Quantity:   b.Quantity,
			UnitCost:   b.UnitCost,
			ExpiryDate: b.ExpiryDate,
			CreatedAt:  b.CreatedAt,
		})
	}
	return out
}
