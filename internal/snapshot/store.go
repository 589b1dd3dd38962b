// Package snapshot persists the before-image of every product a batch touches, so the batch can be reverted.
package snapshot

import (
	"context"
	"time"

	"github.com/abgdnv/shopassist/internal/catalog"
)

// Record is one captured product state. Only the revert flow flips Reverted, and only to true.
type Record struct {
	ID             int64     `json:"id"`
	BatchID        string    `json:"batch_id"`
	SKU            string    `json:"sku"`
	Title          *string   `json:"title"`
	ProductType    *string   `json:"product_type"`
	Vendor         *string   `json:"vendor"`
	Tags           *string   `json:"tags"`
	BodyHTML       *string   `json:"body_html"`
	Price          *string   `json:"price"`
	CompareAtPrice *string   `json:"compare_at_price"`
	Cost           *string   `json:"cost"`
	Available      *int      `json:"available"`
	Reverted       bool      `json:"reverted"`
	CreatedAt      time.Time `json:"created_at"`
}

// Fields returns the non-null captured fields as an update that restores them.
func (r Record) Fields() catalog.ProductUpdate {
	return catalog.ProductUpdate{
		Title:          r.Title,
		ProductType:    r.ProductType,
		Vendor:         r.Vendor,
		Tags:           r.Tags,
		BodyHTML:       r.BodyHTML,
		Price:          r.Price,
		CompareAtPrice: r.CompareAtPrice,
		Cost:           r.Cost,
		Available:      r.Available,
	}
}

// BatchSummary describes one batch for the operator.
type BatchSummary struct {
	BatchID   string    `json:"batch_id"`
	Rows      int64     `json:"rows"`
	Pending   int64     `json:"pending"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the append-only snapshot collection.
type Store interface {
	// Record appends a snapshot of product for (batchID, sku). It never deduplicates.
	Record(ctx context.Context, batchID, sku string, product catalog.ProductRecord) (*Record, error)

	// Pending returns the batch's snapshots that have not been reverted, in insertion order.
	// Returns an empty slice for an unknown batch.
	Pending(ctx context.Context, batchID string) ([]Record, error)

	// MarkReverted flags every pending snapshot of the batch and returns how many were flagged.
	MarkReverted(ctx context.Context, batchID string) (int64, error)

	// Batches lists the most recent batches, newest first.
	Batches(ctx context.Context, limit int32) ([]BatchSummary, error)
}

// capture copies the revertible fields of a product record. Text fields are kept even when empty,
// so a revert clears values a batch added.
func capture(batchID, sku string, p catalog.ProductRecord) Record {
	str := func(s string) *string { return &s }
	return Record{
		BatchID:        batchID,
		SKU:            sku,
		Title:          str(p.Title),
		ProductType:    str(p.ProductType),
		Vendor:         str(p.Vendor),
		Tags:           str(p.Tags),
		BodyHTML:       str(p.BodyHTML),
		Price:          str(p.Price),
		CompareAtPrice: p.CompareAtPrice,
		Cost:           p.Cost,
		Available:      p.Available,
	}
}
