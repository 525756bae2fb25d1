// Package reconcile turns order and purchase-order transitions into stock
// batches. Each transition is submitted as exactly one batch.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/ariefcatur/go-pharma-stock/internal/stock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Engine struct {
	ledger stock.Ledger
	log    *zap.Logger
	tracer trace.Tracer
}

func New(ledger stock.Ledger, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{ledger: ledger, log: log, tracer: otel.Tracer("pharma/reconcile")}
}

// Key names the batch of one transition. The revision makes a retried
// request collide with its first attempt instead of applying twice.
func Key(subject, id, action string, revision int64) string {
	return fmt.Sprintf("%s:%s:%s:r%d", subject, id, action, revision)
}

func lineDeltas(lines []orders.SizeLine, sign int) []stock.Delta {
	out := make([]stock.Delta, 0, len(lines))
	for _, l := range lines {
		out = append(out, stock.Delta{SizeID: l.SizeID, Delta: sign * l.Quantity})
	}
	return out
}

// CreateDeltas deducts every size line.
func CreateDeltas(items []orders.OrderItem) []stock.Delta {
	return lineDeltas(orders.Lines(items), -1)
}

// RestoreDeltas gives back every size line.
func RestoreDeltas(items []orders.OrderItem) []stock.Delta {
	return lineDeltas(orders.Lines(items), 1)
}

// EditDeltas reverses the old item list and applies the new one.
func EditDeltas(oldItems, newItems []orders.OrderItem) []stock.Delta {
	return append(RestoreDeltas(oldItems), CreateDeltas(newItems)...)
}

func (e *Engine) Create(ctx context.Context, key string, items []orders.OrderItem) error {
	if err := orders.ValidateItems(items); err != nil {
		return err
	}
	return e.submit(ctx, "create", key, CreateDeltas(items))
}

func (e *Engine) Edit(ctx context.Context, key string, oldItems, newItems []orders.OrderItem) error {
	if err := orders.ValidateItems(newItems); err != nil {
		return err
	}
	if err := orders.ValidateItems(oldItems); err != nil {
		return fmt.Errorf("stored items: %w", err)
	}
	return e.submit(ctx, "edit", key, EditDeltas(oldItems, newItems))
}

// Restore is the only restoration path; void and cancel both use it.
func (e *Engine) Restore(ctx context.Context, key string, items []orders.OrderItem) error {
	if err := orders.ValidateItems(items); err != nil {
		return fmt.Errorf("stored items: %w", err)
	}
	return e.submit(ctx, "restore", key, RestoreDeltas(items))
}

// Receive books incoming vendor supply.
func (e *Engine) Receive(ctx context.Context, key string, items []orders.OrderItem) error {
	if err := orders.ValidateItems(items); err != nil {
		return err
	}
	return e.submit(ctx, "receive", key, RestoreDeltas(items))
}

// Return takes previously received vendor supply back out.
func (e *Engine) Return(ctx context.Context, key string, items []orders.OrderItem) error {
	if err := orders.ValidateItems(items); err != nil {
		return err
	}
	return e.submit(ctx, "return", key, CreateDeltas(items))
}

// Revert undoes an applied batch and frees its key, so the transition that
// produced it can be retried under the same key.
func (e *Engine) Revert(ctx context.Context, key string) error {
	ctx, span := e.tracer.Start(ctx, "reconcile.revert")
	defer span.End()
	span.SetAttributes(attribute.String("stock.batch_key", key))

	if err := e.ledger.Revert(ctx, key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, stock.Outcome(err))
		e.log.Error("stock batch revert failed",
			zap.String("batch_key", key), zap.String("outcome", stock.Outcome(err)), zap.Error(err))
		return fmt.Errorf("reconcile revert: %w", err)
	}
	e.log.Info("stock batch reverted", zap.String("batch_key", key))
	return nil
}

func (e *Engine) submit(ctx context.Context, op, key string, deltas []stock.Delta) error {
	ctx, span := e.tracer.Start(ctx, "reconcile."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("stock.batch_key", key),
		attribute.Int("stock.deltas", len(deltas)),
	)

	err := e.ledger.ApplyBatch(ctx, stock.Batch{Key: key, Deltas: deltas})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, stock.Outcome(err))
		e.log.Warn("stock batch rejected",
			zap.String("op", op), zap.String("batch_key", key),
			zap.String("outcome", stock.Outcome(err)), zap.Error(err))
		if errors.Is(err, stock.ErrDuplicateBatch) {
			return fmt.Errorf("%w: %w", orders.ErrDuplicateTransition, err)
		}
		return fmt.Errorf("reconcile %s: %w", op, err)
	}
	e.log.Info("stock batch applied",
		zap.String("op", op), zap.String("batch_key", key), zap.Int("deltas", len(deltas)))
	return nil
}
