package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/inventory"
	"github.com/dukapos/dukapos/internal/ledger"
)

type fakePoster struct {
	posted []string
	err    error
}

func (p *fakePoster) PostPayment(_ context.Context, sourceID string, _ ledger.PaymentContext) error {
	if p.err != nil {
		return p.err
	}
	p.posted = append(p.posted, sourceID)
	return nil
}

type fakeExpiryRunner struct {
	scans []string
}

func (r *fakeExpiryRunner) RecordExpiry(_ context.Context, _ int64, scanID string) (inventory.ExpiryResult, error) {
	r.scans = append(r.scans, scanID)
	return inventory.ExpiryResult{BatchesExpired: 2, TotalLoss: 500}, nil
}

func newTestHandlers(poster *fakePoster, runner *fakeExpiryRunner) *Handlers {
	h := NewHandlers(poster, runner, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC) }
	return h
}

func TestHandlePostPayment(t *testing.T) {
	poster := &fakePoster{}
	h := newTestHandlers(poster, &fakeExpiryRunner{})

	task, err := NewPostPaymentTask(PostPaymentPayload{
		PaymentID: "pay-1",
		Payment:   ledger.PaymentContext{ChannelID: 1, Amount: 100, Method: "cash-payment"},
	})
	require.NoError(t, err)

	require.NoError(t, h.HandlePostPayment(context.Background(), task))
	require.Equal(t, []string{"pay-1"}, poster.posted)
}

func TestHandlePostPaymentRetriesOnError(t *testing.T) {
	poster := &fakePoster{err: errors.New("db down")}
	h := newTestHandlers(poster, &fakeExpiryRunner{})

	task, err := NewPostPaymentTask(PostPaymentPayload{PaymentID: "pay-1"})
	require.NoError(t, err)

	err = h.HandlePostPayment(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePostPaymentSkipsMalformedPayload(t *testing.T) {
	h := newTestHandlers(&fakePoster{}, &fakeExpiryRunner{})

	task := asynq.NewTask(TaskLedgerPostPayment, []byte("{not json"))
	err := h.HandlePostPayment(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleExpiryScanDerivesStableScanIDs(t *testing.T) {
	runner := &fakeExpiryRunner{}
	h := newTestHandlers(&fakePoster{}, runner)

	payload, err := json.Marshal(ExpiryScanPayload{ChannelIDs: []int64{1, 7}})
	require.NoError(t, err)
	task := asynq.NewTask(TaskInventoryExpiryScan, payload)

	require.NoError(t, h.HandleExpiryScan(context.Background(), task))
	require.Equal(t, []string{
		"expiry-scan:1:2025-06-01",
		"expiry-scan:7:2025-06-01",
	}, runner.scans)

	// A redelivered task produces the same ids, so postings dedupe.
	require.NoError(t, h.HandleExpiryScan(context.Background(), task))
	require.Equal(t, "expiry-scan:1:2025-06-01", runner.scans[2])
}
