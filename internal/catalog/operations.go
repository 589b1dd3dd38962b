package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/shopspring/decimal"
)

const (
	unavailablePrefix      = "Unavailable – "
	unavailableProductType = "Unavailable"
	unavailableNotice      = "<p><strong>This product is no longer available.</strong></p>"
	saleTag                = "on-sale"
)

var _ Catalog = (*ShopifyClient)(nil)

// FindBySKU resolves a SKU through the configured Locator.
func (c *ShopifyClient) FindBySKU(ctx context.Context, sku string) (*Product, *Variant, error) {
	return c.locator.Locate(ctx, sku)
}

func (c *ShopifyClient) GetFullInfo(ctx context.Context, sku string) (*ProductRecord, error) {
	product, variant, err := c.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	return c.fullInfo(ctx, product, variant)
}

func (c *ShopifyClient) fullInfo(ctx context.Context, product *Product, variant *Variant) (*ProductRecord, error) {
	record := &ProductRecord{
		SKU:             variant.SKU,
		Title:           product.Title,
		ProductType:     product.ProductType,
		Vendor:          product.Vendor,
		Tags:            product.Tags,
		BodyHTML:        product.BodyHTML,
		Price:           variant.Price,
		CompareAtPrice:  variant.CompareAtPrice,
		ProductID:       product.ID,
		VariantID:       variant.ID,
		InventoryItemID: variant.InventoryItemID,
		InventorySettings: InventorySettings{
			InventoryManagement: variant.InventoryManagement,
			InventoryPolicy:     variant.InventoryPolicy,
		},
	}
	item, err := c.getInventoryItem(ctx, variant.InventoryItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory item of %s: %w", variant.SKU, err)
	}
	record.Cost = item.Cost
	record.Tracked = item.Tracked

	levels, err := c.getInventoryLevels(ctx, variant.InventoryItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory levels of %s: %w", variant.SKU, err)
	}
	if len(levels) > 0 {
		record.Available = levels[0].Available
		record.LocationID = levels[0].LocationID
	}
	return record, nil
}

// lookup resolves the SKU and turns a miss into a failed result.
func (c *ShopifyClient) lookup(ctx context.Context, sku string) (*Product, *Variant, *Result, error) {
	product, variant, err := c.FindBySKU(ctx, sku)
	if err == nil {
		return product, variant, nil, nil
	}
	if transient(err) {
		return nil, nil, nil, err
	}
	return nil, nil, failure(StageLookup, notFoundMessage(sku), err), nil
}

// fail converts a stage error into a failed result unless the error must propagate.
func fail(stage Stage, message string, err error) (*Result, error) {
	if transient(err) {
		return nil, err
	}
	return failure(stage, message, err), nil
}

// refreshed re-reads the record after a successful mutation.
func (c *ShopifyClient) refreshed(ctx context.Context, sku, message string) (*Result, error) {
	record, err := c.GetFullInfo(ctx, sku)
	if err != nil {
		if transient(err) {
			return nil, err
		}
		return success(message, nil), nil
	}
	return success(message, record), nil
}

func (c *ShopifyClient) Update(ctx context.Context, sku string, fields ProductUpdate) (*Result, error) {
	product, variant, res, err := c.lookup(ctx, sku)
	if res != nil || err != nil {
		return res, err
	}

	if fields.hasProductFields() || fields.hasVariantFields() {
		payload := productPayload(fields)
		if fields.hasVariantFields() {
			v := map[string]any{"id": variant.ID}
			if fields.Price != nil {
				v["price"] = *fields.Price
			}
			if fields.CompareAtPrice != nil {
				v["compare_at_price"] = nullable(*fields.CompareAtPrice)
			}
			payload["variants"] = []map[string]any{v}
		}
		if _, err := c.updateProduct(ctx, product.ID, payload); err != nil {
			return fail(StageProduct, "Failed to update product.", err)
		}
	}

	if fields.Cost == nil && fields.Available == nil {
		return c.refreshed(ctx, sku, "The product was successfully updated.")
	}

	item, err := c.getInventoryItem(ctx, variant.InventoryItemID)
	if err != nil {
		return fail(StageCost, "Failed to read inventory item.", err)
	}
	if fields.Cost != nil {
		if _, err := c.updateInventoryItem(ctx, item.ID, map[string]any{"cost": nullable(*fields.Cost)}); err != nil {
			return fail(StageCost, "Failed to update inventory item cost.", err)
		}
	}

	if fields.Available != nil {
		if res, err := c.ensureManaged(ctx, variant); res != nil || err != nil {
			return res, err
		}
		if res, err := c.ensureTracked(ctx, item, StageTracking, "Failed to enable tracking on inventory item."); res != nil || err != nil {
			return res, err
		}
		if res, err := c.setAvailable(ctx, item.ID, *fields.Available); res != nil || err != nil {
			return res, err
		}
	}
	return c.refreshed(ctx, sku, "The product was successfully updated.")
}

// ensureManaged flips the variant to Shopify inventory management and verifies the flip.
func (c *ShopifyClient) ensureManaged(ctx context.Context, variant *Variant) (*Result, error) {
	if variant.InventoryManagement == inventoryManagementValue {
		return nil, nil
	}
	updated, err := c.updateVariant(ctx, variant.ID, map[string]any{"inventory_management": inventoryManagementValue})
	if err != nil {
		return fail(StageInventoryManagement, "Failed to enable Shopify inventory management.", err)
	}
	if updated.InventoryManagement != inventoryManagementValue {
		return failure(StageInventoryManagement, "Failed to enable Shopify inventory management.",
			errors.New("inventory management was not enabled")), nil
	}
	return nil, nil
}

// ensureTracked turns on tracking for the inventory item and verifies it.
func (c *ShopifyClient) ensureTracked(ctx context.Context, item *inventoryItem, stage Stage, message string) (*Result, error) {
	if item.Tracked {
		return nil, nil
	}
	updated, err := c.updateInventoryItem(ctx, item.ID, map[string]any{"tracked": true})
	if err != nil {
		return fail(stage, message, err)
	}
	if !updated.Tracked {
		return failure(stage, message, errors.New("inventory tracking was not enabled")), nil
	}
	item.Tracked = true
	return nil, nil
}

func (c *ShopifyClient) setAvailable(ctx context.Context, itemID int64, available int) (*Result, error) {
	levels, err := c.getInventoryLevels(ctx, itemID)
	if err != nil {
		return fail(StageAvailability, "Failed to read inventory levels.", err)
	}
	if len(levels) == 0 {
		return failure(StageAvailability, "No inventory location is stocking this product.", nil), nil
	}
	if err := c.setInventoryLevel(ctx, itemID, levels[0].LocationID, available); err != nil {
		return fail(StageAvailability, "Failed to set available quantity.", err)
	}
	return nil, nil
}

func (c *ShopifyClient) Create(ctx context.Context, sku string, fields ProductFields) (*Result, error) {
	if strings.TrimSpace(sku) == "" {
		return failure(StageValidation, "SKU is required", nil), nil
	}
	switch _, _, err := c.FindBySKU(ctx, sku); {
	case err == nil:
		return failure(StageValidation, fmt.Sprintf("Product with SKU '%s' already exists.", sku), nil), nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return fail(StageLookup, "Failed to check whether the SKU is already in use.", err)
	}

	payload := productPayload(fields)
	if fields.Title == nil {
		payload["title"] = "New Product"
	}
	price := "0.00"
	if fields.Price != nil {
		price = *fields.Price
	}
	variant := map[string]any{
		"sku":                  sku,
		"price":                price,
		"inventory_management": inventoryManagementValue,
	}
	if fields.CompareAtPrice != nil && *fields.CompareAtPrice != "" {
		variant["compare_at_price"] = *fields.CompareAtPrice
	}
	payload["variants"] = []map[string]any{variant}
	created, err := c.createProduct(ctx, payload)
	if err != nil {
		return fail(StageCreate, "Failed to create product.", err)
	}
	return c.completeCreate(ctx, sku, created, fields), nil
}

// completeCreate runs the stages after the product POST. The product exists by
// now, so every error ends in a failed Result: retrying the whole Create would
// post a second product.
func (c *ShopifyClient) completeCreate(ctx context.Context, sku string, created *Product, fields ProductFields) *Result {
	v := variantBySKU(created, sku)
	if v == nil {
		_, found, err := c.FindBySKU(ctx, sku)
		if err != nil {
			return failure(StageLookup, "Product was created but could not be retrieved by SKU.", err)
		}
		v = found
	}
	item, err := c.getInventoryItem(ctx, v.InventoryItemID)
	if err != nil {
		return failure(StageTracking, "Product created, but failed to read its inventory item.", err)
	}
	const trackingMessage = "Product created, but failed to update inventory tracking."
	if res, err := c.ensureTracked(ctx, item, StageTracking, trackingMessage); err != nil {
		return failure(StageTracking, trackingMessage, err)
	} else if res != nil {
		return res
	}
	if fields.Cost != nil {
		if _, err := c.updateInventoryItem(ctx, item.ID, map[string]any{"cost": nullable(*fields.Cost)}); err != nil {
			return failure(StageCost, "Product created, but failed to update cost.", err)
		}
	}
	if fields.Available != nil {
		if res, err := c.setAvailable(ctx, item.ID, *fields.Available); err != nil {
			return failure(StageAvailability, "Product created, but failed to set available quantity.", err)
		} else if res != nil {
			return res
		}
	}
	res, err := c.refreshed(ctx, sku, "The product was successfully created.")
	if err != nil {
		return success("The product was successfully created.", nil)
	}
	return res
}

func (c *ShopifyClient) PutOnSale(ctx context.Context, sku, salePrice, regularPrice string, tagsToAdd []string) (*Result, error) {
	product, variant, res, err := c.lookup(ctx, sku)
	if res != nil || err != nil {
		return res, err
	}
	if regularPrice == "" {
		// an already discounted variant keeps its pre-sale price
		regularPrice = variant.Price
		if variant.CompareAtPrice != nil && *variant.CompareAtPrice != "" {
			regularPrice = *variant.CompareAtPrice
		}
	}
	sale, err := decimal.NewFromString(salePrice)
	if err != nil {
		return failure(StageValidation, fmt.Sprintf("Invalid sale price '%s'.", salePrice), err), nil
	}
	regular, err := decimal.NewFromString(regularPrice)
	if err != nil {
		return failure(StageValidation, fmt.Sprintf("Invalid regular price '%s'.", regularPrice), err), nil
	}
	if !sale.LessThan(regular) {
		return failure(StageValidation, fmt.Sprintf("Sale price %s must be lower than regular price %s.", salePrice, regularPrice), nil), nil
	}

	fields := map[string]any{"price": sale.StringFixed(2), "compare_at_price": regular.StringFixed(2)}
	if _, err := c.updateVariant(ctx, variant.ID, fields); err != nil {
		return fail(StageProduct, "Failed to update sale price.", err)
	}

	tags, changed := addTags(product.Tags, append([]string{saleTag}, tagsToAdd...))
	if changed {
		if _, err := c.updateProduct(ctx, product.ID, map[string]any{"tags": tags}); err != nil {
			return fail(StageTags, "Price updated, but failed to update tags.", err)
		}
	}
	return c.refreshed(ctx, sku, fmt.Sprintf("Product %s is now on sale for %s (regular price %s).", sku, sale.StringFixed(2), regular.StringFixed(2)))
}

func (c *ShopifyClient) TakeOffSale(ctx context.Context, sku string, tagsToRemove []string) (*Result, error) {
	product, variant, res, err := c.lookup(ctx, sku)
	if res != nil || err != nil {
		return res, err
	}
	if variant.CompareAtPrice != nil && *variant.CompareAtPrice != "" {
		fields := map[string]any{"price": *variant.CompareAtPrice, "compare_at_price": nil}
		if _, err := c.updateVariant(ctx, variant.ID, fields); err != nil {
			return fail(StageProduct, "Failed to restore regular price.", err)
		}
	}

	tags, changed := removeTags(product.Tags, append([]string{saleTag}, tagsToRemove...))
	if changed {
		if _, err := c.updateProduct(ctx, product.ID, map[string]any{"tags": tags}); err != nil {
			return fail(StageTags, "Price restored, but failed to update tags.", err)
		}
	}
	return c.refreshed(ctx, sku, fmt.Sprintf("Product %s is no longer on sale.", sku))
}

func (c *ShopifyClient) Disable(ctx context.Context, sku string) (*Result, error) {
	product, variant, res, err := c.lookup(ctx, sku)
	if res != nil || err != nil {
		return res, err
	}
	title := product.Title
	if !strings.HasPrefix(title, unavailablePrefix) {
		title = unavailablePrefix + title
	}
	body := product.BodyHTML
	if !strings.HasPrefix(body, unavailableNotice) {
		body = unavailableNotice + body
	}
	payload := map[string]any{
		"title":        title,
		"tags":         "",
		"body_html":    body,
		"product_type": unavailableProductType,
		"variants":     []map[string]any{{"id": variant.ID, "inventory_policy": "deny"}},
	}
	if _, err := c.updateProduct(ctx, product.ID, payload); err != nil {
		return fail(StageProduct, "Failed to disable product.", err)
	}
	return c.refreshed(ctx, sku, fmt.Sprintf("Product %s has been disabled.", sku))
}

func productPayload(f ProductFields) map[string]any {
	payload := map[string]any{}
	if f.Title != nil {
		payload["title"] = *f.Title
	}
	if f.ProductType != nil {
		payload["product_type"] = *f.ProductType
	}
	if f.Vendor != nil {
		payload["vendor"] = *f.Vendor
	}
	if f.Tags != nil {
		payload["tags"] = *f.Tags
	}
	if f.BodyHTML != nil {
		payload["body_html"] = *f.BodyHTML
	}
	return payload
}

// nullable sends an empty string as JSON null, which clears the remote value.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func splitTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// addTags appends the missing tags, keeping the existing order and dropping duplicates.
func addTags(current string, add []string) (string, bool) {
	existing := splitTags(current)
	var merged []string
	for _, t := range existing {
		if !containsTag(merged, t) {
			merged = append(merged, t)
		}
	}
	changed := len(merged) != len(existing)
	for _, t := range add {
		t = strings.TrimSpace(t)
		if t != "" && !containsTag(merged, t) {
			merged = append(merged, t)
			changed = true
		}
	}
	return strings.Join(merged, ", "), changed
}

// removeTags drops the given tags; changed is false when none of them was present.
func removeTags(current string, remove []string) (string, bool) {
	existing := splitTags(current)
	kept := make([]string, 0, len(existing))
	for _, t := range existing {
		if !containsTag(remove, t) {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, ", "), len(kept) != len(existing)
}
