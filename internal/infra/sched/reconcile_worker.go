package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"restaurant-payment-engine/internal/usecase"
)

// ReconcileWorker drives the periodic gateway reconciliation sweep. One
// instance per process; concurrent sweeps would fight over the same
// mappings for no benefit.
type ReconcileWorker struct {
	uc       usecase.ReconcileUseCase
	interval time.Duration
	log      *zerolog.Logger
}

func NewReconcileWorker(uc usecase.ReconcileUseCase, interval time.Duration, logger *zerolog.Logger) *ReconcileWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "ReconcileWorker").Logger()
	return &ReconcileWorker{uc: uc, interval: interval, log: &l}
}

func (w *ReconcileWorker) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := w.uc.Run(ctx); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("reconciliation sweep failed")
			}
		}
	}
}
