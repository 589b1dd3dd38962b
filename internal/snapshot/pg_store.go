package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/abgdnv/shopassist/internal/catalog"
	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/abgdnv/shopassist/internal/snapshot/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	db *pgxpool.Pool
	q  *db.Queries
}

var _ Store = (*PgStore)(nil)

// NewPgStore creates a Store backed by the product_snapshots table.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{
		db: dbp,
		q:  db.New(dbp),
	}
}

func (p *PgStore) Record(ctx context.Context, batchID, sku string, product catalog.ProductRecord) (*Record, error) {
	r := capture(batchID, sku, product)
	row, err := p.q.CreateSnapshot(ctx, db.CreateSnapshotParams{
		BatchID:        r.BatchID,
		Sku:            r.SKU,
		Title:          r.Title,
		ProductType:    r.ProductType,
		Vendor:         r.Vendor,
		Tags:           r.Tags,
		BodyHtml:       r.BodyHTML,
		Price:          r.Price,
		CompareAtPrice: r.CompareAtPrice,
		Cost:           r.Cost,
		Available:      toInt32(r.Available),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRecordSnapshot, err)
	}
	created := fromRow(row)
	return &created, nil
}

func (p *PgStore) Pending(ctx context.Context, batchID string) ([]Record, error) {
	rows, err := p.q.FindPendingSnapshots(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrFindSnapshots, err)
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, fromRow(row))
	}
	return records, nil
}

func (p *PgStore) MarkReverted(ctx context.Context, batchID string) (int64, error) {
	var n int64
	txErr := p.withTransaction(ctx, func(qtx *db.Queries) error {
		var err error
		n, err = qtx.MarkBatchReverted(ctx, batchID)
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrMarkReverted, err)
		}
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	return n, nil
}

func (p *PgStore) Batches(ctx context.Context, limit int32) ([]BatchSummary, error) {
	rows, err := p.q.ListBatches(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrListBatches, err)
	}
	out := make([]BatchSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, BatchSummary{BatchID: row.BatchID, Rows: row.Rows, Pending: row.Pending, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

func (p *PgStore) withTransaction(ctx context.Context, fn func(qtx *db.Queries) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return apperrors.ErrTransactionBegin
	}
	qtx := p.q.WithTx(tx)

	err = fn(qtx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return apperrors.ErrTransactionRollback
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.ErrTransactionCommit
	}

	return nil
}

func fromRow(row db.ProductSnapshot) Record {
	var available *int
	if row.Available != nil {
		v := int(*row.Available)
		available = &v
	}
	return Record{
		ID:             row.ID,
		BatchID:        row.BatchID,
		SKU:            row.Sku,
		Title:          row.Title,
		ProductType:    row.ProductType,
		Vendor:         row.Vendor,
		Tags:           row.Tags,
		BodyHTML:       row.BodyHtml,
		Price:          row.Price,
		CompareAtPrice: row.CompareAtPrice,
		Cost:           row.Cost,
		Available:      available,
		Reverted:       row.Reverted,
		CreatedAt:      row.CreatedAt,
	}
}

func toInt32(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}
