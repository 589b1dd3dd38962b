// Package batch runs CSV-driven create, update and revert batches against the catalog.
// Update batches snapshot every product before mutating it so they can be reverted later.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/abgdnv/shopassist/internal/catalog"
	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/abgdnv/shopassist/internal/ratelimit"
	"github.com/abgdnv/shopassist/internal/snapshot"
	"github.com/abgdnv/shopassist/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
	ModeRevert Mode = "revert"
)

const noSKUMessage = "No SKU provided"

// Item is a row the batch created or updated.
type Item struct {
	SKU   string `json:"sku"`
	Title string `json:"title"`
}

// Result aggregates the outcome of every row. Status is success when at least one row succeeded.
type Result struct {
	Status           catalog.Status `json:"status"`
	CreatedOrUpdated []Item         `json:"created_or_updated"`
	Errors           []string       `json:"errors"`
	BatchID          string         `json:"batch_id,omitempty"`
	Reverted         int64          `json:"reverted,omitempty"`
}

// Err returns ErrPartialBatchFailure when some rows failed.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d rows", apperrors.ErrPartialBatchFailure, len(r.Errors), len(r.Errors)+len(r.CreatedOrUpdated))
}

func (r *Result) finish() *Result {
	r.Status = catalog.StatusError
	if len(r.CreatedOrUpdated) > 0 {
		r.Status = catalog.StatusSuccess
	}
	return r
}

func (r *Result) fail(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Processor executes batches one at a time, rows in file order.
type Processor struct {
	catalog   catalog.Catalog
	snapshots snapshot.Store
	executor  *ratelimit.Executor
	pacer     *ratelimit.Pacer
	logger    *slog.Logger
	rows      metric.Int64Counter

	mu sync.Mutex
}

func NewProcessor(c catalog.Catalog, snapshots snapshot.Store, executor *ratelimit.Executor, pacer *ratelimit.Pacer, logger *slog.Logger) *Processor {
	rows, err := otel.Meter("batch").Int64Counter("batch_rows_processed",
		metric.WithDescription("Batch rows processed by mode and outcome"))
	if err != nil {
		logger.Warn("failed to create batch rows counter", "error", err)
	}
	return &Processor{
		catalog:   c,
		snapshots: snapshots,
		executor:  executor,
		pacer:     pacer,
		logger:    logger.With("component", "batch"),
		rows:      rows,
	}
}

// CreateFile parses the file and creates one product per row.
func (p *Processor) CreateFile(ctx context.Context, name string, content []byte) (*Result, error) {
	rows, err := ParseFile(name, content)
	if err != nil {
		return nil, err
	}
	return p.Create(ctx, rows)
}

// ApplyFile parses the file and runs it as update batch batchID.
func (p *Processor) ApplyFile(ctx context.Context, batchID, name string, content []byte) (*Result, error) {
	rows, err := ParseFile(name, content)
	if err != nil {
		return nil, err
	}
	return p.Update(ctx, batchID, rows)
}

func (p *Processor) Create(ctx context.Context, rows []Row) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := &Result{CreatedOrUpdated: []Item{}, Errors: []string{}}
	p.logger.InfoContext(ctx, "create batch started", "rows", len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res.finish(), err
		}
		if row.SKU == "" {
			p.rowFailed(ctx, ModeCreate, res, noSKUMessage)
			continue
		}
		if err := p.pacer.Pause(ctx); err != nil {
			return res.finish(), err
		}
		created, err := ratelimit.Do(ctx, p.executor, func(ctx context.Context) (*catalog.Result, error) {
			return p.catalog.Create(ctx, row.SKU, row.Fields())
		})
		if err != nil {
			p.rowFailed(ctx, ModeCreate, res, fmt.Sprintf("Failed to create SKU '%s': %v", row.SKU, err))
		} else if !created.OK() {
			p.rowFailed(ctx, ModeCreate, res, fmt.Sprintf("SKU '%s': %s", row.SKU, created.Message))
		} else {
			p.rowSucceeded(ctx, ModeCreate, res, row.SKU, titleOf(created, row))
		}
		if err := p.pacer.Pause(ctx); err != nil {
			return res.finish(), err
		}
	}
	p.logger.InfoContext(ctx, "create batch finished", "succeeded", len(res.CreatedOrUpdated), "failed", len(res.Errors))
	return res.finish(), nil
}

// Update snapshots each product into batchID and then applies the row. A row whose snapshot
// cannot be taken is not mutated. A SKU that already has a pending snapshot in the batch keeps
// it, so a redelivered batch still reverts to the state before its first run.
func (p *Processor) Update(ctx context.Context, batchID string, rows []Row) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx = logger.WithAttrs(ctx, slog.String("batch_id", batchID))
	res := &Result{CreatedOrUpdated: []Item{}, Errors: []string{}, BatchID: batchID}
	pending, err := p.snapshots.Pending(ctx, batchID)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(pending))
	for _, r := range pending {
		taken[r.SKU] = true
	}
	p.logger.InfoContext(ctx, "update batch started", "rows", len(rows), "already_snapshotted", len(taken))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res.finish(), err
		}
		if row.SKU == "" {
			p.rowFailed(ctx, ModeUpdate, res, noSKUMessage)
			continue
		}
		if !taken[row.SKU] {
			if err := p.snapshot(ctx, batchID, row.SKU); err != nil {
				p.rowFailed(ctx, ModeUpdate, res, fmt.Sprintf("Failed to snapshot SKU '%s', row skipped: %v", row.SKU, err))
				continue
			}
			taken[row.SKU] = true
		}
		if err := p.pacer.Pause(ctx); err != nil {
			return res.finish(), err
		}
		updated, err := ratelimit.Do(ctx, p.executor, func(ctx context.Context) (*catalog.Result, error) {
			return p.catalog.Update(ctx, row.SKU, row.Fields())
		})
		if err != nil {
			p.rowFailed(ctx, ModeUpdate, res, fmt.Sprintf("Failed to update SKU '%s': %v", row.SKU, err))
		} else if !updated.OK() {
			p.rowFailed(ctx, ModeUpdate, res, fmt.Sprintf("SKU '%s': %s", row.SKU, updated.Message))
		} else {
			p.rowSucceeded(ctx, ModeUpdate, res, row.SKU, titleOf(updated, row))
		}
		if err := p.pacer.Pause(ctx); err != nil {
			return res.finish(), err
		}
	}
	p.logger.InfoContext(ctx, "update batch finished", "succeeded", len(res.CreatedOrUpdated), "failed", len(res.Errors))
	return res.finish(), nil
}

func (p *Processor) snapshot(ctx context.Context, batchID, sku string) error {
	info, err := ratelimit.Do(ctx, p.executor, func(ctx context.Context) (*catalog.ProductRecord, error) {
		return p.catalog.GetFullInfo(ctx, sku)
	})
	if err != nil {
		return err
	}
	_, err = p.snapshots.Record(ctx, batchID, sku, *info)
	return err
}

// Revert restores every pending snapshot of the batch, then marks the whole batch reverted
// whatever the per-row outcome.
func (p *Processor) Revert(ctx context.Context, batchID string) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx = logger.WithAttrs(ctx, slog.String("batch_id", batchID))
	res := &Result{CreatedOrUpdated: []Item{}, Errors: []string{}, BatchID: batchID}
	pending, err := p.snapshots.Pending(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		res.fail(fmt.Sprintf("No pending snapshots for batch %s", batchID))
		return res.finish(), nil
	}
	p.logger.InfoContext(ctx, "revert started", "rows", len(pending))
	for i, rec := range pending {
		if err := ctx.Err(); err != nil {
			return res.finish(), err
		}
		if i > 0 {
			if err := p.pacer.Pause(ctx); err != nil {
				return res.finish(), err
			}
		}
		reverted, err := ratelimit.Do(ctx, p.executor, func(ctx context.Context) (*catalog.Result, error) {
			return p.catalog.Update(ctx, rec.SKU, rec.Fields())
		})
		switch {
		case err != nil:
			p.rowFailed(ctx, ModeRevert, res, fmt.Sprintf("Failed to revert SKU '%s': %v", rec.SKU, err))
		case !reverted.OK():
			p.rowFailed(ctx, ModeRevert, res, fmt.Sprintf("SKU '%s': %s", rec.SKU, reverted.Message))
		default:
			title := ""
			if rec.Title != nil {
				title = *rec.Title
			}
			p.rowSucceeded(ctx, ModeRevert, res, rec.SKU, title)
		}
	}
	n, err := p.snapshots.MarkReverted(ctx, batchID)
	if err != nil {
		return res.finish(), err
	}
	res.Reverted = n
	p.logger.InfoContext(ctx, "revert finished", "reverted", n, "failed", len(res.Errors))
	return res.finish(), nil
}

func (p *Processor) rowFailed(ctx context.Context, mode Mode, res *Result, msg string) {
	p.logger.WarnContext(ctx, "batch row failed", "mode", mode, "error", msg)
	res.fail(msg)
	p.count(ctx, mode, "error")
}

func (p *Processor) rowSucceeded(ctx context.Context, mode Mode, res *Result, sku, title string) {
	res.CreatedOrUpdated = append(res.CreatedOrUpdated, Item{SKU: sku, Title: title})
	p.count(ctx, mode, "success")
}

func (p *Processor) count(ctx context.Context, mode Mode, outcome string) {
	if p.rows == nil {
		return
	}
	p.rows.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("outcome", outcome),
	))
}

func titleOf(res *catalog.Result, row Row) string {
	if res.Product != nil {
		return res.Product.Title
	}
	return row.Values["title"]
}
