// Package catalog is the client for the remote store catalog (Shopify Admin REST API).
// Multi-step remote protocols (inventory preconditions, tag commits) are hidden behind single calls.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/abgdnv/shopassist/internal/errors"
)

// Catalog is the set of operations the batch processor and the assistant run against the store.
//
// Domain failures (unknown SKU, rejected fields) are reported as a Result with StatusError.
// Only remote unavailability and throttling are returned as errors.
type Catalog interface {
	// GetFullInfo returns the product, variant and inventory state of a SKU.
	// Returns ErrNotFound if no variant carries the SKU.
	GetFullInfo(ctx context.Context, sku string) (*ProductRecord, error)

	// Update applies the non-nil fields. It stops at the first failing stage.
	Update(ctx context.Context, sku string, fields ProductUpdate) (*Result, error)

	// Create adds a product with a single variant and enables inventory tracking.
	Create(ctx context.Context, sku string, fields ProductFields) (*Result, error)

	// PutOnSale sets price to salePrice and compare_at_price to regularPrice, then tags the product.
	PutOnSale(ctx context.Context, sku, salePrice, regularPrice string, tagsToAdd []string) (*Result, error)

	// TakeOffSale moves compare_at_price back into price and removes the sale tags.
	TakeOffSale(ctx context.Context, sku string, tagsToRemove []string) (*Result, error)

	// Disable marks the product unavailable and stops overselling.
	Disable(ctx context.Context, sku string) (*Result, error)
}

// InventorySettings are the variant and inventory item flags that gate availability changes.
type InventorySettings struct {
	InventoryManagement string `json:"inventory_management,omitempty"`
	Tracked             bool   `json:"tracked"`
	InventoryPolicy     string `json:"inventory_policy,omitempty"`
}

// ProductRecord is the flattened view of a product, its variant and inventory.
type ProductRecord struct {
	SKU            string  `json:"sku"`
	Title          string  `json:"title"`
	ProductType    string  `json:"product_type"`
	Vendor         string  `json:"vendor"`
	Tags           string  `json:"tags"`
	BodyHTML       string  `json:"body_html"`
	Price          string  `json:"price"`
	CompareAtPrice *string `json:"compare_at_price"`
	Cost           *string `json:"cost"`
	Available      *int    `json:"available"`

	InventorySettings

	ProductID       int64 `json:"product_id,omitempty"`
	VariantID       int64 `json:"variant_id,omitempty"`
	InventoryItemID int64 `json:"inventory_item_id,omitempty"`
	LocationID      int64 `json:"location_id,omitempty"`
}

// ProductFields are the writable fields of a product. Nil fields are not sent.
type ProductFields struct {
	Title          *string `json:"title,omitempty" validate:"omitempty,max=255"`
	ProductType    *string `json:"product_type,omitempty"`
	Vendor         *string `json:"vendor,omitempty"`
	Tags           *string `json:"tags,omitempty"`
	BodyHTML       *string `json:"body_html,omitempty"`
	Price          *string `json:"price,omitempty" validate:"omitempty,numeric"`
	CompareAtPrice *string `json:"compare_at_price,omitempty" validate:"omitempty,numeric"`
	Cost           *string `json:"cost,omitempty" validate:"omitempty,numeric"`
	Available      *int    `json:"available,omitempty"`
}

// ProductUpdate lists the fields to change on an existing product.
type ProductUpdate = ProductFields

// IsEmpty reports whether no field is set.
func (f ProductFields) IsEmpty() bool {
	return f.Title == nil && f.ProductType == nil && f.Vendor == nil && f.Tags == nil && f.BodyHTML == nil &&
		f.Price == nil && f.CompareAtPrice == nil && f.Cost == nil && f.Available == nil
}

func (f ProductFields) hasProductFields() bool {
	return f.Title != nil || f.ProductType != nil || f.Vendor != nil || f.Tags != nil || f.BodyHTML != nil
}

func (f ProductFields) hasVariantFields() bool {
	return f.Price != nil || f.CompareAtPrice != nil
}

// FieldsFromRecord converts the non-empty fields of a record into an update.
func FieldsFromRecord(r ProductRecord) ProductFields {
	var f ProductFields
	str := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	f.Title = str(r.Title)
	f.ProductType = str(r.ProductType)
	f.Vendor = str(r.Vendor)
	f.Tags = str(r.Tags)
	f.BodyHTML = str(r.BodyHTML)
	f.Price = str(r.Price)
	f.CompareAtPrice = r.CompareAtPrice
	f.Cost = r.Cost
	f.Available = r.Available
	return f
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Stage names the remote commit an operation was performing when it failed.
type Stage string

const (
	StageLookup              Stage = "lookup"
	StageValidation          Stage = "validation"
	StageCreate              Stage = "create"
	StageProduct             Stage = "product"
	StageCost                Stage = "cost"
	StageInventoryManagement Stage = "inventory_management"
	StageTracking            Stage = "tracking"
	StageAvailability        Stage = "availability"
	StageTags                Stage = "tags"
)

// Result is the outcome of a mutating catalog operation.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Stage   Stage          `json:"stage,omitempty"`
	Product *ProductRecord `json:"product,omitempty"`
	Errors  []string       `json:"errors,omitempty"`

	// Cause is the domain error behind a failed result.
	Cause error `json:"-"`
}

func (r *Result) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

func success(message string, product *ProductRecord) *Result {
	return &Result{Status: StatusSuccess, Message: message, Product: product}
}

func failure(stage Stage, message string, cause error) *Result {
	res := &Result{Status: StatusError, Message: message, Stage: stage, Cause: cause}
	var verr *apperrors.RemoteValidationError
	switch {
	case errors.As(cause, &verr):
		res.Errors = verr.Messages
		res.Message = fmt.Sprintf("%s Errors: %s", message, strings.Join(verr.Messages, "; "))
	case cause != nil && !errors.Is(cause, apperrors.ErrNotFound):
		res.Errors = []string{cause.Error()}
	}
	return res
}

// transient reports whether err must propagate instead of becoming a failed Result.
func transient(err error) bool {
	if _, ok := apperrors.IsRateLimited(err); ok {
		return true
	}
	return errors.Is(err, apperrors.ErrRemoteUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func notFoundMessage(sku string) string {
	return fmt.Sprintf("Could not find product with SKU '%s'", sku)
}
