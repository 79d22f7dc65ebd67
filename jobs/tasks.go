// Package jobs holds the asynq task definitions and worker wiring for
// background processing: the ledger safety-net posting and the nightly
// batch-expiry scan.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dukapos/dukapos/internal/inventory"
	"github.com/dukapos/dukapos/internal/ledger"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerPostPayment re-posts a settled payment to the ledger. The
	// posting is keyed by the payment id, so re-running it after the
	// synchronous posting already succeeded is a no-op.
	TaskLedgerPostPayment = "ledger:post_payment"
	// TaskInventoryExpiryScan clears expired batches for a set of channels.
	TaskInventoryExpiryScan = "inventory:expiry_scan"
)

// PostPaymentPayload carries a settled payment into the safety-net task.
type PostPaymentPayload struct {
	PaymentID string                `json:"paymentId"`
	Payment   ledger.PaymentContext `json:"payment"`
}

// NewPostPaymentTask constructs the safety-net posting task.
func NewPostPaymentTask(payload PostPaymentPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerPostPayment, data), nil
}

// ExpiryScanPayload lists the channels one scan pass covers.
type ExpiryScanPayload struct {
	ChannelIDs []int64 `json:"channelIds"`
}

// NewExpiryScanTask constructs the expiry-scan task.
func NewExpiryScanTask(payload ExpiryScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryExpiryScan, data), nil
}

// PaymentPoster is the ledger surface the safety-net task drives.
type PaymentPoster interface {
	PostPayment(ctx context.Context, sourceID string, pc ledger.PaymentContext) error
}

// ExpiryRunner is the inventory surface the scan task drives.
type ExpiryRunner interface {
	RecordExpiry(ctx context.Context, channelID int64, scanID string) (inventory.ExpiryResult, error)
}

// Handlers processes the domain tasks.
type Handlers struct {
	poster PaymentPoster
	runner ExpiryRunner
	logger *slog.Logger
	now    func() time.Time
}

// NewHandlers builds Handlers.
func NewHandlers(poster PaymentPoster, runner ExpiryRunner, logger *slog.Logger) *Handlers {
	return &Handlers{poster: poster, runner: runner, logger: logger, now: time.Now}
}

// HandlePostPayment processes TaskLedgerPostPayment. Malformed payloads skip
// retry; posting errors retry with asynq's backoff, and an already-posted
// payment succeeds silently.
func (h *Handlers) HandlePostPayment(ctx context.Context, t *asynq.Task) error {
	var payload PostPaymentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("malformed post-payment payload", slog.Any("error", err))
		return asynq.SkipRetry
	}
	if err := h.poster.PostPayment(ctx, payload.PaymentID, payload.Payment); err != nil {
		return err
	}
	h.logger.Info("safety-net payment posting done", slog.String("payment_id", payload.PaymentID))
	return nil
}

// HandleExpiryScan processes TaskInventoryExpiryScan. The scan id is derived
// from the scan date so a re-delivered task posts nothing twice.
func (h *Handlers) HandleExpiryScan(ctx context.Context, t *asynq.Task) error {
	var payload ExpiryScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("malformed expiry-scan payload", slog.Any("error", err))
		return asynq.SkipRetry
	}

	day := h.now().UTC().Format(time.DateOnly)
	for _, channelID := range payload.ChannelIDs {
		scanID := "expiry-scan:" + strconv.FormatInt(channelID, 10) + ":" + day
		result, err := h.runner.RecordExpiry(ctx, channelID, scanID)
		if err != nil {
			return err
		}
		h.logger.Info("expiry scan done",
			slog.Int64("channel_id", channelID),
			slog.Int64("batches_expired", result.BatchesExpired),
			slog.Int64("total_loss", result.TotalLoss))
	}
	return nil
}
