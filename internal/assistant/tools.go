package assistant

import (
	"time"

	"github.com/abgdnv/shopassist/internal/catalog"
	"github.com/abgdnv/shopassist/internal/pricing"
	openrouter "github.com/revrost/go-openrouter"
)

// ToolKind is the closed set of operations the model may request.
type ToolKind int

const (
	ToolUnknown ToolKind = iota
	ToolSendEmail
	ToolGetProductInfo
	ToolUpdateProduct
	ToolCreateProduct
	ToolPutOnSale
	ToolTakeOffSale
	ToolDisableProduct
	ToolCreateProductsFromCSV
	ToolUpdateProductsFromCSV
	ToolRevertBatch
	ToolQuotePrice
)

var toolNames = map[ToolKind]string{
	ToolSendEmail:             "send_email",
	ToolGetProductInfo:        "get_product_info_by_sku",
	ToolUpdateProduct:         "update_product_by_sku",
	ToolCreateProduct:         "create_product_with_sku",
	ToolPutOnSale:             "put_product_on_sale",
	ToolTakeOffSale:           "take_product_off_sale",
	ToolDisableProduct:        "disable_product",
	ToolCreateProductsFromCSV: "create_products_from_csv",
	ToolUpdateProductsFromCSV: "update_products_from_csv",
	ToolRevertBatch:           "revert_batch",
	ToolQuotePrice:            "quote_price",
}

// resultLabels head each folded tool result in the answer.
var resultLabels = map[ToolKind]string{
	ToolSendEmail:             "Email Response",
	ToolGetProductInfo:        "Product Info",
	ToolUpdateProduct:         "Update Product Response",
	ToolCreateProduct:         "Create Product Response",
	ToolPutOnSale:             "Put On Sale Response",
	ToolTakeOffSale:           "Take Off Sale Response",
	ToolDisableProduct:        "Disable Product Response",
	ToolCreateProductsFromCSV: "Create Products Response",
	ToolUpdateProductsFromCSV: "Update Products Response",
	ToolRevertBatch:           "Revert Batch Response",
	ToolQuotePrice:            "Price Quote",
}

func (k ToolKind) String() string {
	if name, ok := toolNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseToolKind maps a model supplied name to its kind. Unknown names yield ToolUnknown.
func ParseToolKind(name string) ToolKind {
	for kind, n := range toolNames {
		if n == name {
			return kind
		}
	}
	return ToolUnknown
}

type sendEmailArgs struct {
	Recipient string `json:"recipient" validate:"required"`
	Subject   string `json:"subject" validate:"required"`
	Body      string `json:"body"`
}

type skuArgs struct {
	SKU string `json:"sku" validate:"required"`
}

type productArgs struct {
	SKU string `json:"sku" validate:"required"`
	catalog.ProductFields
}

type putOnSaleArgs struct {
	SKU          string   `json:"sku" validate:"required"`
	SalePrice    string   `json:"sale_price" validate:"required,numeric"`
	RegularPrice string   `json:"regular_price" validate:"omitempty,numeric"`
	Tags         []string `json:"tags"`
}

type takeOffSaleArgs struct {
	SKU  string   `json:"sku" validate:"required"`
	Tags []string `json:"tags"`
}

type updateFromCSVArgs struct {
	ApplyAt  *time.Time `json:"apply_at"`
	RevertAt *time.Time `json:"revert_at"`
}

type revertBatchArgs struct {
	BatchID  string     `json:"batch_id" validate:"required"`
	RevertAt *time.Time `json:"revert_at"`
}

type quotePriceArgs struct {
	Retail string `json:"retail" validate:"required,numeric"`
	Code   string `json:"code"`
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func dateTime(description string) map[string]any {
	return map[string]any{"type": "string", "format": "date-time", "description": description}
}

func function(kind ToolKind, description string, properties map[string]any, required ...string) openrouter.Tool {
	if required == nil {
		required = []string{}
	}
	return openrouter.Tool{
		Type: openrouter.ToolTypeFunction,
		Function: &openrouter.FunctionDefinition{
			Name:        kind.String(),
			Description: description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

func productProperties(verb string) map[string]any {
	return map[string]any{
		"sku":              str("The SKU of the product " + verb),
		"title":            str("The title of the product"),
		"product_type":     str("The product type"),
		"vendor":           str("The vendor name"),
		"tags":             str("Comma-separated tags"),
		"body_html":        str("Product description in HTML"),
		"price":            str("The variant price"),
		"compare_at_price": str("The compare at price"),
		"cost":             str("The cost of goods"),
		"available":        map[string]any{"type": "integer", "description": "The available quantity"},
	}
}

// ToolSchemas describes every ToolKind to the model.
func ToolSchemas() []openrouter.Tool {
	tags := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	return []openrouter.Tool{
		function(ToolSendEmail, "Send an email to a recipient. An uploaded file is attached automatically.", map[string]any{
			"recipient": str("Recipient address, or a comma-separated list of addresses"),
			"subject":   str("The subject line"),
			"body":      str("The plain text body"),
		}, "recipient", "subject", "body"),
		function(ToolGetProductInfo, "Retrieve product information by SKU", map[string]any{
			"sku": str("The SKU of the product variant"),
		}, "sku"),
		function(ToolUpdateProduct, "Update product fields by SKU. Only provided fields will be updated.",
			productProperties("to update"), "sku"),
		function(ToolCreateProduct, "Create a new product with a given SKU. Other fields are optional.",
			productProperties("to create"), "sku"),
		function(ToolPutOnSale, "Put a product on sale: set the sale price, keep the regular price as compare at price and tag it on-sale.", map[string]any{
			"sku":           str("The SKU of the product"),
			"sale_price":    str("The discounted price"),
			"regular_price": str("The regular price. Defaults to the current price"),
			"tags":          tags,
		}, "sku", "sale_price"),
		function(ToolTakeOffSale, "Take a product off sale: restore the compare at price as price and remove the on-sale tag.", map[string]any{
			"sku":  str("The SKU of the product"),
			"tags": tags,
		}, "sku"),
		function(ToolDisableProduct, "Mark a product as no longer available and stop selling it.", map[string]any{
			"sku": str("The SKU of the product"),
		}, "sku"),
		function(ToolCreateProductsFromCSV, "Create one product per row of the uploaded CSV or XLSX file.", map[string]any{}),
		function(ToolUpdateProductsFromCSV, "Update products from the uploaded CSV or XLSX file. Prior values are saved so the batch can be reverted. Can be scheduled.", map[string]any{
			"apply_at":  dateTime("When to apply the updates, RFC3339. Omit to apply now."),
			"revert_at": dateTime("When to revert the updates, RFC3339. Omit to keep them."),
		}),
		function(ToolRevertBatch, "Restore the products changed by a previous batch update.", map[string]any{
			"batch_id":  str("The batch id returned when the updates were scheduled"),
			"revert_at": dateTime("When to revert, RFC3339. Omit to revert now."),
		}, "batch_id"),
		function(ToolQuotePrice, "Compute supplier cost, margin and a suggested retail price for a price and discount code.", map[string]any{
			"retail": str("The retail price"),
			"code":   map[string]any{"type": "string", "description": "The supplier discount code", "enum": pricing.Codes()},
		}, "retail"),
	}
}
