package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukapos/dukapos/internal/platform/httpx"
)

// Handler exposes read-only ledger endpoints. Postings are never driven over
// HTTP; they happen inside the domain services that own the source events.
type Handler struct {
	logger  *slog.Logger
	queries *QueryService
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, queries *QueryService) *Handler {
	return &Handler{logger: logger, queries: queries}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/channels/{channelID}/accounts/{code}/balance", h.getAccountBalance)
	r.Get("/channels/{channelID}/customers/{customerID}/balance", h.getCustomerBalance)
	r.Get("/channels/{channelID}/suppliers/{supplierID}/balance", h.getSupplierBalance)
	r.Get("/channels/{channelID}/entries", h.listEntries)
}

func (h *Handler) getAccountBalance(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid channel id")
		return
	}
	code := chi.URLParam(r, "code")

	from, to, perr := parseRange(r)
	if perr != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period bound, expected RFC 3339")
		return
	}

	var bal AccountBalance
	if from != nil || to != nil {
		bal, err = h.queries.GetAccountActivity(r.Context(), channelID, code, from, to)
	} else {
		bal, err = h.queries.GetAccountBalance(r.Context(), channelID, code)
	}
	if err != nil {
		h.logger.Error("get account balance", slog.Any("error", err), slog.String("code", code))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

func parseRange(r *http.Request) (*time.Time, *time.Time, error) {
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

func (h *Handler) getCustomerBalance(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid channel id")
		return
	}
	customerID := chi.URLParam(r, "customerID")

	net, err := h.queries.GetCustomerBalance(r.Context(), channelID, customerID)
	if err != nil {
		h.logger.Error("get customer balance", slog.Any("error", err), slog.String("customer_id", customerID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"channelId":  channelID,
		"customerId": customerID,
		"balance":    net,
	})
}

func (h *Handler) getSupplierBalance(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid channel id")
		return
	}
	supplierID := chi.URLParam(r, "supplierID")

	net, err := h.queries.GetSupplierBalance(r.Context(), channelID, supplierID)
	if err != nil {
		h.logger.Error("get supplier balance", slog.Any("error", err), slog.String("supplier_id", supplierID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"channelId":  channelID,
		"supplierId": supplierID,
		"balance":    net,
	})
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid channel id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.queries.ListEntries(r.Context(), channelID, limit)
	if err != nil {
		h.logger.Error("list journal entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":     toEntryViews(entries),
		"generatedAt": time.Now().UTC(),
	})
}

type entryView struct {
	ID         int64      `json:"id"`
	EntryDate  time.Time  `json:"entryDate"`
	Memo       string     `json:"memo"`
	SourceType string     `json:"sourceType"`
	SourceID   string     `json:"sourceId"`
	Lines      []lineView `json:"lines"`
}

type lineView struct {
	AccountCode string `json:"accountCode"`
	Debit       int64  `json:"debit"`
	Credit      int64  `json:"credit"`
}

func toEntryViews(entries []JournalEntry) []entryView {
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		ev := entryView{
			ID:         e.ID,
			EntryDate:  e.EntryDate,
			Memo:       e.Memo,
			SourceType: e.SourceType,
			SourceID:   e.SourceID,
		}
		for _, l := range e.Lines {
			ev.Lines = append(ev.Lines, lineView{AccountCode: l.AccountCode, Debit: l.Debit, Credit: l.Credit})
		}
		out = append(out, ev)
	}
	return out
}
