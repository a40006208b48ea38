package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"restaurant-payment-engine/internal/domain"
	"restaurant-payment-engine/internal/infra/worker"
	"restaurant-payment-engine/internal/usecase"
)

// RetryWorker scans for failed orders whose backoff window elapsed and
// submits one re-attempt per order to the shared pool. A full queue is
// fine; the next scan finds the order again.
type RetryWorker struct {
	uc       usecase.RetryUseCase
	pool     *worker.Pool
	interval time.Duration
	batch    int
	log      *zerolog.Logger
}

func NewRetryWorker(uc usecase.RetryUseCase, pool *worker.Pool, interval time.Duration, batch int, logger *zerolog.Logger) *RetryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	l := logger.With().Str("component", "RetryWorker").Logger()
	return &RetryWorker{uc: uc, pool: pool, interval: interval, batch: batch, log: &l}
}

func (w *RetryWorker) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *RetryWorker) tick(ctx context.Context) {
	due, err := w.uc.DueOrders(ctx, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("retry scan failed")
		return
	}
	for _, orderID := range due {
		id := orderID
		err := w.pool.Submit(func(ctx context.Context) error {
			_, err := w.uc.ScheduleRetry(ctx, id)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, domain.ErrLockNotAcquired),
				errors.Is(err, domain.ErrVersionConflict),
				errors.Is(err, domain.ErrNotRetriable),
				errors.Is(err, domain.ErrRetryExhausted),
				errors.Is(err, domain.ErrInvalidArgument):
				// Lost a race or the order moved on; nothing to log loudly.
				return nil
			default:
				return err
			}
		})
		if err != nil {
			w.log.Debug().Str("order_id", id).Msg("retry queue full, deferring to next scan")
			return
		}
	}
}
