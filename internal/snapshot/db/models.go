package db

import (
	"time"
)

type ProductSnapshot struct {
	ID             int64
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
	Reverted       bool
	CreatedAt      time.Time
}

type BatchSummary struct {
	BatchID   string
	Rows      int64
	Pending   int64
	CreatedAt time.Time
}
