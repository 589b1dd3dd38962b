// Package catalogtest provides an in-memory catalog.Catalog for tests of its consumers.
package catalogtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/abgdnv/shopassist/internal/catalog"
	apperrors "github.com/abgdnv/shopassist/internal/errors"
)

// Catalog keeps products by SKU and records every call as "<Op> <sku>".
type Catalog struct {
	mu       sync.Mutex
	products map[string]*catalog.ProductRecord
	calls    []string
	updates  map[string][]catalog.ProductUpdate

	// Errors makes the next calls of an operation on a SKU fail, keyed by "<Op> <sku>".
	// Each entry is consumed once.
	Errors map[string][]error
}

var _ catalog.Catalog = (*Catalog)(nil)

func New(products ...catalog.ProductRecord) *Catalog {
	c := &Catalog{
		products: map[string]*catalog.ProductRecord{},
		updates:  map[string][]catalog.ProductUpdate{},
		Errors:   map[string][]error{},
	}
	for _, p := range products {
		p := p
		c.products[p.SKU] = &p
	}
	return c
}

// FailNext queues err for the next call of op on sku.
func (c *Catalog) FailNext(op, sku string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := op + " " + sku
	c.Errors[key] = append(c.Errors[key], err)
}

func (c *Catalog) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *Catalog) Updates(sku string) []catalog.ProductUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]catalog.ProductUpdate(nil), c.updates[sku]...)
}

// Product returns a copy of the stored record.
func (c *Catalog) Product(sku string) (catalog.ProductRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[sku]
	if !ok {
		return catalog.ProductRecord{}, false
	}
	return *p, true
}

func (c *Catalog) begin(op, sku string) error {
	key := op + " " + sku
	c.calls = append(c.calls, key)
	if errs := c.Errors[key]; len(errs) > 0 {
		c.Errors[key] = errs[1:]
		return errs[0]
	}
	return nil
}

func notFound(sku string) *catalog.Result {
	return &catalog.Result{
		Status:  catalog.StatusError,
		Stage:   catalog.StageLookup,
		Message: fmt.Sprintf("Could not find product with SKU '%s'", sku),
		Cause:   apperrors.ErrNotFound,
	}
}

func snapshotOf(p *catalog.ProductRecord) *catalog.ProductRecord {
	cp := *p
	return &cp
}

func (c *Catalog) GetFullInfo(_ context.Context, sku string) (*catalog.ProductRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("GetFullInfo", sku); err != nil {
		return nil, err
	}
	p, ok := c.products[sku]
	if !ok {
		return nil, fmt.Errorf("sku %q: %w", sku, apperrors.ErrNotFound)
	}
	return snapshotOf(p), nil
}

func (c *Catalog) Update(_ context.Context, sku string, f catalog.ProductUpdate) (*catalog.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("Update", sku); err != nil {
		return nil, err
	}
	p, ok := c.products[sku]
	if !ok {
		return notFound(sku), nil
	}
	c.updates[sku] = append(c.updates[sku], f)
	apply(p, f)
	return &catalog.Result{Status: catalog.StatusSuccess, Message: "The product was successfully updated.", Product: snapshotOf(p)}, nil
}

func (c *Catalog) Create(_ context.Context, sku string, f catalog.ProductFields) (*catalog.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("Create", sku); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sku) == "" {
		return &catalog.Result{Status: catalog.StatusError, Stage: catalog.StageValidation, Message: "SKU is required"}, nil
	}
	if _, ok := c.products[sku]; ok {
		msg := fmt.Sprintf("Product with SKU '%s' already exists.", sku)
		return &catalog.Result{Status: catalog.StatusError, Stage: catalog.StageValidation, Message: msg}, nil
	}
	p := &catalog.ProductRecord{SKU: sku, Title: "New Product", Price: "0.00"}
	p.InventoryManagement = "shopify"
	p.Tracked = true
	apply(p, f)
	c.products[sku] = p
	return &catalog.Result{Status: catalog.StatusSuccess, Message: "The product was successfully created.", Product: snapshotOf(p)}, nil
}

func (c *Catalog) PutOnSale(_ context.Context, sku, salePrice, regularPrice string, tagsToAdd []string) (*catalog.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("PutOnSale", sku); err != nil {
		return nil, err
	}
	p, ok := c.products[sku]
	if !ok {
		return notFound(sku), nil
	}
	if regularPrice == "" {
		regularPrice = p.Price
	}
	p.Price = salePrice
	p.CompareAtPrice = &regularPrice
	for _, t := range append([]string{"on-sale"}, tagsToAdd...) {
		if !strings.Contains(p.Tags, t) {
			p.Tags = strings.Trim(p.Tags+", "+t, ", ")
		}
	}
	return &catalog.Result{Status: catalog.StatusSuccess, Message: "on sale", Product: snapshotOf(p)}, nil
}

func (c *Catalog) TakeOffSale(_ context.Context, sku string, tagsToRemove []string) (*catalog.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("TakeOffSale", sku); err != nil {
		return nil, err
	}
	p, ok := c.products[sku]
	if !ok {
		return notFound(sku), nil
	}
	if p.CompareAtPrice != nil {
		p.Price = *p.CompareAtPrice
		p.CompareAtPrice = nil
	}
	var kept []string
	for _, t := range strings.Split(p.Tags, ",") {
		t = strings.TrimSpace(t)
		if t == "" || t == "on-sale" || contains(tagsToRemove, t) {
			continue
		}
		kept = append(kept, t)
	}
	p.Tags = strings.Join(kept, ", ")
	return &catalog.Result{Status: catalog.StatusSuccess, Message: "off sale", Product: snapshotOf(p)}, nil
}

func (c *Catalog) Disable(_ context.Context, sku string) (*catalog.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("Disable", sku); err != nil {
		return nil, err
	}
	p, ok := c.products[sku]
	if !ok {
		return notFound(sku), nil
	}
	if !strings.HasPrefix(p.Title, "Unavailable – ") {
		p.Title = "Unavailable – " + p.Title
	}
	p.Tags = ""
	p.ProductType = "Unavailable"
	p.InventoryPolicy = "deny"
	return &catalog.Result{Status: catalog.StatusSuccess, Message: "disabled", Product: snapshotOf(p)}, nil
}

func apply(p *catalog.ProductRecord, f catalog.ProductFields) {
	if f.Title != nil {
		p.Title = *f.Title
	}
	if f.ProductType != nil {
		p.ProductType = *f.ProductType
	}
	if f.Vendor != nil {
		p.Vendor = *f.Vendor
	}
	if f.Tags != nil {
		p.Tags = *f.Tags
	}
	if f.BodyHTML != nil {
		p.BodyHTML = *f.BodyHTML
	}
	if f.Price != nil {
		p.Price = *f.Price
	}
	if f.CompareAtPrice != nil {
		v := *f.CompareAtPrice
		p.CompareAtPrice = &v
	}
	if f.Cost != nil {
		v := *f.Cost
		p.Cost = &v
	}
	if f.Available != nil {
		v := *f.Available
		p.Available = &v
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
