package batch

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/abgdnv/shopassist/internal/catalog"
	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/xuri/excelize/v2"
)

const skuColumn = "sku"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// recognizedColumns are the optional columns mapped onto product fields. Others are ignored.
var recognizedColumns = map[string]bool{
	"title":            true,
	"product_type":     true,
	"vendor":           true,
	"tags":             true,
	"body_html":        true,
	"price":            true,
	"compare_at_price": true,
	"cost":             true,
	"available":        true,
}

// Row is one data line of a batch file. Values holds the non-blank recognized cells.
type Row struct {
	Line   int
	SKU    string
	Values map[string]string
}

// Fields maps the row onto an update. A non-numeric available value is dropped without an error.
func (r Row) Fields() catalog.ProductFields {
	var f catalog.ProductFields
	set := func(key string) *string {
		if v, ok := r.Values[key]; ok {
			return &v
		}
		return nil
	}
	f.Title = set("title")
	f.ProductType = set("product_type")
	f.Vendor = set("vendor")
	f.Tags = set("tags")
	f.BodyHTML = set("body_html")
	f.Price = set("price")
	f.CompareAtPrice = set("compare_at_price")
	f.Cost = set("cost")
	if v, ok := r.Values["available"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			f.Available = &n
		}
	}
	return f
}

// ParseFile reads rows from a CSV or, for .xlsx names, an Excel workbook.
func ParseFile(name string, content []byte) ([]Row, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return ParseXLSX(content)
	}
	return ParseCSV(content)
}

// ParseCSV reads a UTF-8 CSV with an optional byte-order mark. The header must contain an exact "sku" column.
func ParseCSV(content []byte) ([]Row, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, &apperrors.SchemaError{Reason: fmt.Sprintf("malformed CSV: %v", err)}
	}
	return fromRecords(records)
}

// ParseXLSX reads the first sheet of a workbook with the same header contract as ParseCSV.
func ParseXLSX(content []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, &apperrors.SchemaError{Reason: fmt.Sprintf("unreadable workbook: %v", err)}
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &apperrors.SchemaError{Reason: "workbook has no sheets"}
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &apperrors.SchemaError{Reason: fmt.Sprintf("unreadable sheet %q: %v", sheets[0], err)}
	}
	return fromRecords(records)
}

func fromRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, &apperrors.SchemaError{Reason: "file is empty, a header row with a 'sku' column is required"}
	}
	// column names match exactly, a padded " sku" is not the sku column
	header := records[0]
	skuIdx := -1
	for i, name := range header {
		if name == skuColumn {
			skuIdx = i
		}
	}
	if skuIdx < 0 {
		return nil, &apperrors.SchemaError{Reason: "header must contain a 'sku' column"}
	}

	rows := make([]Row, 0, len(records)-1)
	for n, record := range records[1:] {
		if blank(record) {
			continue
		}
		row := Row{Line: n + 2, Values: map[string]string{}}
		for i, cell := range record {
			if i >= len(header) {
				break
			}
			if i == skuIdx {
				row.SKU = strings.TrimSpace(cell)
				continue
			}
			if !recognizedColumns[header[i]] {
				continue
			}
			if header[i] != "body_html" {
				cell = strings.TrimSpace(cell)
			}
			if cell != "" {
				row.Values[header[i]] = cell
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
