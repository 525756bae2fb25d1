package stock

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("pharma/stock")

// Retrying re-submits a whole batch when it lost a version race. Any other
// failure, including a cancelled or timed-out context, is returned as is.
type Retrying struct {
	Ledger
	Attempts int
	Backoff  time.Duration
	Log      *zap.Logger
}

func NewRetrying(l Ledger, attempts int, backoff time.Duration, log *zap.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retrying{Ledger: l, Attempts: attempts, Backoff: backoff, Log: log}
}

func (r *Retrying) ApplyBatch(ctx context.Context, b Batch) error {
	ctx, span := tracer.Start(ctx, "stock.apply_batch")
	defer span.End()
	span.SetAttributes(attribute.String("stock.batch_key", b.Key))

	start := time.Now()
	err := r.retry(ctx, b.Key, func() error { return r.Ledger.ApplyBatch(ctx, b) })
	observeBatch(err, len(b.Deltas), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Outcome(err))
	}
	return err
}

func (r *Retrying) Revert(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "stock.revert")
	defer span.End()
	span.SetAttributes(attribute.String("stock.batch_key", key))

	err := r.retry(ctx, key, func() error { return r.Ledger.Revert(ctx, key) })
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Outcome(err))
	}
	return err
}

func (r *Retrying) Adjust(ctx context.Context, sizeID string, delta int) (int, error) {
	var after int
	start := time.Now()
	err := r.retry(ctx, "adjust", func() error {
		var err error
		after, err = r.Ledger.Adjust(ctx, sizeID, delta)
		return err
	})
	observeBatch(err, 1, time.Since(start))
	return after, err
}

func (r *Retrying) retry(ctx context.Context, key string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) || attempt >= r.Attempts {
			return err
		}
		batchRetries.Inc()
		r.Log.Warn("stock batch conflict, retrying",
			zap.String("batch_key", key), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.Backoff * time.Duration(attempt)):
		}
	}
}
