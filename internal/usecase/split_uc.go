package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"restaurant-payment-engine/internal/domain"
	"restaurant-payment-engine/internal/domain/model"
	"restaurant-payment-engine/internal/domain/ports/repository"
	"restaurant-payment-engine/internal/infra/metrics"
)

// Compile-time check
var _ SplitUseCase = (*splitUC)(nil)

// SplitUseCase divides a captured transaction between the restaurant, the
// platform and the delivery partner, and tracks per-share settlement.
type SplitUseCase interface {
	// Compute persists the share set for a captured transaction. Exactly one
	// set may exist per transaction.
	Compute(ctx context.Context, transactionID string, specs []model.ShareSpec) ([]*model.SplitShare, error)
	// Settle marks one share paid out. Re-settling with the same reference
	// is a no-op; a different reference is an error.
	Settle(ctx context.Context, shareID, settlementRef string) (*model.SplitShare, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]*model.SplitShare, error)
}

type splitUC struct {
	splits repository.SplitShareRepository
	txns   repository.TransactionRepository
	audit  repository.AuditRepository
	tm     repository.TransactionManager
	log    *zerolog.Logger
}

func NewSplitUseCase(
	splits repository.SplitShareRepository,
	txns repository.TransactionRepository,
	audit repository.AuditRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *splitUC {
	l := logger.With().Str("component", "SplitUC").Logger()
	return &splitUC{splits: splits, txns: txns, audit: audit, tm: tm, log: &l}
}

func (u *splitUC) Compute(ctx context.Context, transactionID string, specs []model.ShareSpec) ([]*model.SplitShare, error) {
	if len(specs) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	t, err := u.txns.FindByID(ctx, repository.NoTX, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TransactionStatusCaptured && t.Status != model.TransactionStatusSettled {
		return nil, domain.ErrInvalidArgument
	}

	shares, err := buildShares(t, specs)
	if err != nil {
		return nil, err
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		existing, err := u.splits.ListByTransaction(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return domain.ErrAlreadyExists
		}
		if err := u.splits.SaveAll(ctx, tx, shares); err != nil {
			return err
		}
		return appendAudit(ctx, u.audit, tx, "payment_transaction", t.ID, "split_computed", actorSystem, nil, shares)
	})
	if err != nil {
		return nil, err
	}
	return shares, nil
}

// buildShares validates conservation and assigns the rounding remainder to
// the platform share. The caller-side sum may differ from the captured
// amount by at most len(specs)-1 minor units, the worst case of per-share
// rounding.
func buildShares(t *model.PaymentTransaction, specs []model.ShareSpec) ([]*model.SplitShare, error) {
	var sum int64
	platform := -1
	for i, s := range specs {
		if s.Amount < 0 || s.PartyRef == "" {
			return nil, domain.ErrInvalidArgument
		}
		if s.PartyType == model.PartyTypePlatform {
			platform = i
		}
		sum += s.Amount
	}
	diff := t.AmountCaptured - sum
	if diff < 0 {
		diff = -diff
	}
	if diff > int64(len(specs)-1) {
		return nil, domain.ErrSplitMismatch
	}
	if diff != 0 && platform < 0 {
		return nil, domain.ErrSplitMismatch
	}

	now := time.Now()
	shares := make([]*model.SplitShare, 0, len(specs))
	for i, s := range specs {
		amount := s.Amount
		if i == platform {
			amount += t.AmountCaptured - sum
		}
		share := &model.SplitShare{
			ID:            uuid.NewString(),
			TransactionID: t.ID,
			OrderID:       t.OrderID,
			PartyType:     s.PartyType,
			PartyRef:      s.PartyRef,
			Amount:        amount,
			CreatedAt:     now,
		}
		if t.AmountCaptured > 0 {
			share.PercentBps = amount * 10000 / t.AmountCaptured
		}
		shares = append(shares, share)
	}
	return shares, nil
}

func (u *splitUC) Settle(ctx context.Context, shareID, settlementRef string) (*model.SplitShare, error) {
	if settlementRef == "" {
		return nil, domain.ErrInvalidArgument
	}
	var share *model.SplitShare
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		share, err = u.splits.FindByID(ctx, tx, shareID)
		if err != nil {
			return err
		}
		if share.Settled {
			if share.SettlementRef == settlementRef {
				return nil
			}
			return domain.ErrInvalidArgument
		}
		now := time.Now()
		before := *share
		if err := u.splits.MarkSettled(ctx, tx, shareID, settlementRef, now); err != nil {
			return err
		}
		share.Settled = true
		share.SettledAt = &now
		share.SettlementRef = settlementRef
		metrics.IncShareSettled()
		return appendAudit(ctx, u.audit, tx, "split_share", share.ID, "share_settled", actorSystem, &before, share)
	})
	if err != nil {
		return nil, err
	}
	return share, nil
}

func (u *splitUC) ListByTransaction(ctx context.Context, transactionID string) ([]*model.SplitShare, error) {
	return u.splits.ListByTransaction(ctx, repository.NoTX, transactionID)
}
