package batch

import (
	"testing"

	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	testCases := []struct {
		name     string
		content  string
		expected []Row
	}{
		{
			name:    "recognized columns only",
			content: "sku,title,color,price\nA1, Shirt ,red,19.99\n",
			expected: []Row{
				{Line: 2, SKU: "A1", Values: map[string]string{"title": "Shirt", "price": "19.99"}},
			},
		},
		{
			name:    "byte order mark before header",
			content: "\xEF\xBB\xBFsku,price\nA1,5.00\n",
			expected: []Row{
				{Line: 2, SKU: "A1", Values: map[string]string{"price": "5.00"}},
			},
		},
		{
			name:    "blank cells mean no change",
			content: "sku,title,price\nA1,,7.50\n",
			expected: []Row{
				{Line: 2, SKU: "A1", Values: map[string]string{"price": "7.50"}},
			},
		},
		{
			name:    "blank rows skipped and missing sku kept",
			content: "sku,price\n,,\n,9.99\nB2,1.00\n",
			expected: []Row{
				{Line: 3, SKU: "", Values: map[string]string{"price": "9.99"}},
				{Line: 4, SKU: "B2", Values: map[string]string{"price": "1.00"}},
			},
		},
		{
			name:    "body html keeps whitespace",
			content: "sku,body_html\nA1,\"  <p>x</p> \"\n",
			expected: []Row{
				{Line: 2, SKU: "A1", Values: map[string]string{"body_html": "  <p>x</p> "}},
			},
		},
		{
			name:    "padded column names are not recognized",
			content: "sku, price,title \nA1,1.00,Shirt\n",
			expected: []Row{
				{Line: 2, SKU: "A1", Values: map[string]string{}},
			},
		},
		{
			name:     "header only",
			content:  "sku,price\n",
			expected: []Row{},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			rows, err := ParseCSV([]byte(tc.content))

			// then
			require.NoError(t, err)
			assert.Equal(t, tc.expected, rows)
		})
	}
}

func TestParseCSV_SchemaErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "empty file", content: ""},
		{name: "no sku column", content: "title,price\nShirt,1.00\n"},
		{name: "sku column is case sensitive", content: "SKU,price\nA1,1.00\n"},
		{name: "padded sku column", content: " sku,price\nA1,1.00\n"},
		{name: "unterminated quote", content: "sku,title\nA1,\"broken\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			rows, err := ParseCSV([]byte(tc.content))

			// then
			assert.Nil(t, rows)
			require.ErrorIs(t, err, apperrors.ErrSchema)
			var schemaErr *apperrors.SchemaError
			assert.ErrorAs(t, err, &schemaErr)
		})
	}
}

func TestRow_Fields(t *testing.T) {
	t.Run("numeric available", func(t *testing.T) {
		// given
		row := Row{SKU: "A1", Values: map[string]string{"available": "12", "cost": "3.10"}}

		// when
		f := row.Fields()

		// then
		require.NotNil(t, f.Available)
		assert.Equal(t, 12, *f.Available)
		require.NotNil(t, f.Cost)
		assert.Equal(t, "3.10", *f.Cost)
		assert.Nil(t, f.Title)
	})

	t.Run("non numeric available is dropped", func(t *testing.T) {
		// given
		row := Row{SKU: "B2", Values: map[string]string{"available": "lots"}}

		// when
		f := row.Fields()

		// then
		assert.Nil(t, f.Available)
		assert.True(t, f.IsEmpty())
	})
}

func TestParseFile_XLSX(t *testing.T) {
	// given
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]any{"sku", "title", "available"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]any{"A1", "Shirt", "4"}))
	require.NoError(t, book.SetSheetRow(sheet, "A3", &[]any{"C3", "", "1"}))
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	// when
	rows, err := ParseFile("stock.XLSX", buf.Bytes())

	// then
	require.NoError(t, err)
	assert.Equal(t, []Row{
		{Line: 2, SKU: "A1", Values: map[string]string{"title": "Shirt", "available": "4"}},
		{Line: 3, SKU: "C3", Values: map[string]string{"available": "1"}},
	}, rows)
}

func TestParseFile_BrokenWorkbook(t *testing.T) {
	// when
	_, err := ParseFile("stock.xlsx", []byte("not a zip"))

	// then
	assert.ErrorIs(t, err, apperrors.ErrSchema)
}
