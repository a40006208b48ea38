package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"restaurant-payment-engine/internal/config"
	"restaurant-payment-engine/internal/domain"
	"restaurant-payment-engine/internal/domain/model"
	"restaurant-payment-engine/internal/domain/ports/adapter"
	"restaurant-payment-engine/internal/domain/ports/repository"
	"restaurant-payment-engine/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileStats summarizes one reconciliation sweep.
type ReconcileStats struct {
	Checked   int
	Corrected int
	Divergent int
	Errors    int
	Replayed  int
}

// ReconcileUseCase periodically compares local payment state against
// gateway truth. Corrections never mutate records directly; they are
// synthesized as webhook events and flow through the normal apply path, so
// every state change shares one transition gate and one audit trail.
type ReconcileUseCase interface {
	Run(ctx context.Context) (ReconcileStats, error)
	ReconcileOrder(ctx context.Context, orderID string) error
}

type reconcileUC struct {
	mappings repository.MappingRepository
	orders   repository.PaymentOrderRepository
	txns     repository.TransactionRepository
	events   repository.WebhookEventRepository
	gateway  adapter.GatewayClient
	webhooks WebhookUseCase
	cfg      *config.Config
	log      *zerolog.Logger
}

func NewReconcileUseCase(
	mappings repository.MappingRepository,
	orders repository.PaymentOrderRepository,
	txns repository.TransactionRepository,
	events repository.WebhookEventRepository,
	gw adapter.GatewayClient,
	webhooks WebhookUseCase,
	cfg *config.Config,
	logger *zerolog.Logger,
) *reconcileUC {
	l := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{
		mappings: mappings, orders: orders, txns: txns, events: events,
		gateway: gw, webhooks: webhooks, cfg: cfg, log: &l,
	}
}

func (u *reconcileUC) Run(ctx context.Context) (ReconcileStats, error) {
	metrics.IncReconcileRun()
	now := time.Now()
	var stats ReconcileStats

	due, err := u.mappings.ListDue(ctx, repository.NoTX, now.Add(-u.cfg.Reconcile.Staleness), now, u.cfg.Reconcile.BatchSize)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return stats, err
	}
	for _, m := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++
		switch result, err := u.reconcileMapping(ctx, m); {
		case err != nil:
			stats.Errors++
			u.recordFailure(ctx, m, err)
		case result == "corrected":
			stats.Corrected++
		case result == "divergent":
			stats.Divergent++
		}
	}

	// Orphan replay rides along with every sweep; late order creation is the
	// common cause of orphans and resolves itself within one interval.
	replayed, err := u.webhooks.ReplayOrphans(ctx, u.cfg.Reconcile.BatchSize)
	if err != nil {
		u.log.Warn().Err(err).Msg("orphan replay failed")
	}
	stats.Replayed = replayed

	u.log.Info().
		Int("checked", stats.Checked).
		Int("corrected", stats.Corrected).
		Int("divergent", stats.Divergent).
		Int("errors", stats.Errors).
		Int("replayed", stats.Replayed).
		Msg("reconciliation sweep finished")
	return stats, nil
}

func (u *reconcileUC) ReconcileOrder(ctx context.Context, orderID string) error {
	m, err := u.mappings.FindByOrder(ctx, repository.NoTX, orderID)
	if err != nil {
		return err
	}
	if _, err := u.reconcileMapping(ctx, m); err != nil {
		u.recordFailure(ctx, m, err)
		return err
	}
	return nil
}

// reconcileMapping fetches gateway truth for one mapping and returns
// "synced", "corrected" or "divergent".
func (u *reconcileUC) reconcileMapping(ctx context.Context, m *model.ExternalMapping) (string, error) {
	res, err := u.gateway.Fetch(ctx, m.ExternalOrderID, m.ExternalPaymentID)
	if err != nil {
		return "", err
	}

	local, err := u.localStatus(ctx, m, res.GatewayPaymentID)
	if err != nil {
		return "", err
	}
	remote := stateToStatus(res.State)

	switch {
	case remote.Rank() > local.Rank():
		// Gateway is ahead, usually a missed webhook. Synthesize one.
		if err := u.synthesize(ctx, m, res); err != nil {
			return "", err
		}
		metrics.IncReconcileMapping("corrected")
		_ = u.mappings.MarkSynced(ctx, repository.NoTX, m.OrderID, time.Now())
		return "corrected", nil
	case remote.Rank() < local.Rank():
		// Local ahead of the money source is never self-healing.
		detail := fmt.Sprintf("local=%s gateway=%s payment=%s", local, res.State, res.GatewayPaymentID)
		u.log.Error().
			Str("order_id", m.OrderID).
			Str("local_status", string(local)).
			Str("gateway_state", string(res.State)).
			Msg("local state ahead of gateway; flagged divergent")
		metrics.IncReconcileMapping("divergent")
		return "divergent", u.mappings.MarkDivergent(ctx, repository.NoTX, m.OrderID, detail)
	default:
		metrics.IncReconcileMapping("synced")
		return "synced", u.mappings.MarkSynced(ctx, repository.NoTX, m.OrderID, time.Now())
	}
}

// localStatus resolves the transaction the mapping points at. A mapping
// without any transaction yet ranks below every gateway state.
func (u *reconcileUC) localStatus(ctx context.Context, m *model.ExternalMapping, gatewayPaymentID string) (model.TransactionStatus, error) {
	if gatewayPaymentID != "" {
		t, err := u.txns.FindByGatewayPaymentID(ctx, repository.NoTX, gatewayPaymentID)
		if err == nil {
			return t.Status, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
	}
	t, err := u.txns.FindLatestByGatewayOrderID(ctx, repository.NoTX, m.ExternalOrderID)
	if err == nil {
		return t.Status, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil // Rank() == 0
	}
	return "", err
}

// synthesize builds a reconcile.sync event from gateway truth and pushes it
// through the webhook apply path. The event id is derived from the payment
// and sequence so repeated sweeps deduplicate naturally.
func (u *reconcileUC) synthesize(ctx context.Context, m *model.ExternalMapping, res adapter.FetchResult) error {
	var ge gatewayEvent
	ge.EventID = fmt.Sprintf("recon:%s:%d", res.GatewayPaymentID, res.Sequence)
	ge.EventType = "reconcile.sync"
	ge.Sequence = res.Sequence
	ge.OccurredAt = res.UpdatedAt
	ge.Data.OrderID = m.ExternalOrderID
	ge.Data.PaymentID = res.GatewayPaymentID
	ge.Data.State = string(res.State)
	ge.Data.AmountCaptured = res.AmountCaptured
	ge.Data.FailureCode = res.FailureCode
	ge.Data.FailureMessage = res.FailureMessage

	raw, err := json.Marshal(ge)
	if err != nil {
		return err
	}
	ev := &model.WebhookEvent{
		ID:               ulid.Make().String(),
		GatewayEventID:   ge.EventID,
		EventType:        ge.EventType,
		RawPayload:       raw,
		SignatureOK:      true, // locally synthesized, no wire signature
		Status:           model.WebhookStatusVerified,
		GatewayOrderID:   ge.Data.OrderID,
		GatewayPaymentID: ge.Data.PaymentID,
		Sequence:         ge.Sequence,
		OccurredAt:       ge.OccurredAt,
		ReceivedAt:       time.Now(),
	}
	if err := u.events.Save(ctx, repository.NoTX, ev); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return err
		}
		// A prior sweep already synthesized this correction. If its apply
		// finished there is nothing left to do; otherwise resume it, the
		// same way Ingest resumes a half-processed delivery.
		prior, ferr := u.events.FindByGatewayEventID(ctx, repository.NoTX, ev.GatewayEventID)
		if ferr != nil {
			return ferr
		}
		if prior.Status == model.WebhookStatusApplied || prior.Status == model.WebhookStatusRejected {
			return nil
		}
		prior.AttemptCount++
		ev = prior
	}
	_, err = u.webhooks.Apply(ctx, ev)
	return err
}

// recordFailure pushes the mapping's next sync out by backoff_base * 2^attempts,
// capped at the staleness window. Hitting the attempt ceiling parks the
// mapping in sync_error for operator attention.
func (u *reconcileUC) recordFailure(ctx context.Context, m *model.ExternalMapping, cause error) {
	delay := u.cfg.Reconcile.BackoffBase << uint(m.SyncAttempts)
	if delay > u.cfg.Reconcile.Staleness || delay <= 0 {
		delay = u.cfg.Reconcile.Staleness
	}
	status := model.SyncStatusPending
	if m.SyncAttempts+1 >= u.cfg.Reconcile.MaxSyncAttempts {
		status = model.SyncStatusError
		u.log.Error().Err(cause).Str("order_id", m.OrderID).Int("attempts", m.SyncAttempts+1).Msg("mapping sync attempts exhausted")
	}
	metrics.IncReconcileMapping("error")
	if err := u.mappings.RecordFailure(ctx, repository.NoTX, m.OrderID, cause.Error(), time.Now().Add(delay), status); err != nil {
		u.log.Error().Err(err).Str("order_id", m.OrderID).Msg("failed to record sync failure")
	}
}
