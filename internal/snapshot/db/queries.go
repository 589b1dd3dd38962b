// Package db holds the typed queries against the product_snapshots table.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const createSnapshot = `
INSERT INTO product_snapshots (batch_id, sku, title, product_type, vendor, tags, body_html,
                               price, compare_at_price, cost, available)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, batch_id, sku, title, product_type, vendor, tags, body_html, price, compare_at_price, cost,
          available, reverted, created_at`

type CreateSnapshotParams struct {
	BatchID        string
	Sku            string
	Title          *string
	ProductType    *string
	Vendor         *string
	Tags           *string
	BodyHtml       *string
	Price          *string
	CompareAtPrice *string
	Cost           *string
	Available      *int32
}

func (q *Queries) CreateSnapshot(ctx context.Context, arg CreateSnapshotParams) (ProductSnapshot, error) {
	row := q.db.QueryRow(ctx, createSnapshot,
		arg.BatchID,
		arg.Sku,
		arg.Title,
		arg.ProductType,
		arg.Vendor,
		arg.Tags,
		arg.BodyHtml,
		arg.Price,
		arg.CompareAtPrice,
		arg.Cost,
		arg.Available,
	)
	return scanSnapshot(row)
}

const findPendingSnapshots = `
SELECT id, batch_id, sku, title, product_type, vendor, tags, body_html, price, compare_at_price, cost,
       available, reverted, created_at
FROM product_snapshots
WHERE batch_id = $1
  AND reverted = FALSE
ORDER BY id`

func (q *Queries) FindPendingSnapshots(ctx context.Context, batchID string) ([]ProductSnapshot, error) {
	rows, err := q.db.Query(ctx, findPendingSnapshots, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ProductSnapshot{}
	for rows.Next() {
		i, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markBatchReverted = `
UPDATE product_snapshots
SET reverted = TRUE
WHERE batch_id = $1
  AND reverted = FALSE`

func (q *Queries) MarkBatchReverted(ctx context.Context, batchID string) (int64, error) {
	result, err := q.db.Exec(ctx, markBatchReverted, batchID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listBatches = `
SELECT batch_id,
       COUNT(*)                                AS rows,
       COUNT(*) FILTER (WHERE reverted = FALSE) AS pending,
       MIN(created_at)                         AS created_at
FROM product_snapshots
GROUP BY batch_id
ORDER BY MIN(created_at) DESC
LIMIT $1`

func (q *Queries) ListBatches(ctx context.Context, limit int32) ([]BatchSummary, error) {
	rows, err := q.db.Query(ctx, listBatches, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []BatchSummary{}
	for rows.Next() {
		var i BatchSummary
		if err := rows.Scan(&i.BatchID, &i.Rows, &i.Pending, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanSnapshot(row pgx.Row) (ProductSnapshot, error) {
	var i ProductSnapshot
	err := row.Scan(
		&i.ID,
		&i.BatchID,
		&i.Sku,
		&i.Title,
		&i.ProductType,
		&i.Vendor,
		&i.Tags,
		&i.BodyHtml,
		&i.Price,
		&i.CompareAtPrice,
		&i.Cost,
		&i.Available,
		&i.Reverted,
		&i.CreatedAt,
	)
	return i, err
}
