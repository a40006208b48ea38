package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"restaurant-payment-engine/internal/usecase"
)

// ExpiryWorker sweeps orders whose payment link lapsed before any capture.
type ExpiryWorker struct {
	uc       usecase.OrderUseCase
	interval time.Duration
	batch    int
	log      *zerolog.Logger
}

func NewExpiryWorker(uc usecase.OrderUseCase, interval time.Duration, batch int, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 200
	}
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{uc: uc, interval: interval, batch: batch, log: &l}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := w.uc.ExpireDue(ctx, w.batch)
			if err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("expiry sweep failed")
				continue
			}
			if n > 0 {
				w.log.Info().Int("expired", n).Msg("expired stale payment links")
			}
		}
	}
}
