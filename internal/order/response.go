package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Response types for both ingestion and queries. JSON field order is part
// of the API contract consumed by downstream legacy clients; keep the
// struct field order as-is.

// Customer is one customer in a response, with its orders.
type Customer struct {
	UserID int64   `json:"user_id"`
	Name   string  `json:"name"`
	Orders []Order `json:"orders"`
}

// Order is one order in a response. Total and the product values are
// fixed-point strings with exactly two fractional digits.
type Order struct {
	OrderID  int64     `json:"order_id"`
	Total    string    `json:"total"`
	Date     string    `json:"date"`
	Products []Product `json:"products"`
}

// Product is one product line in a response order.
type Product struct {
	ProductID int64  `json:"product_id"`
	Value     string `json:"value"`
}

const responseDateLayout = "2006-01-02"

// money formats a monetary amount as a 2dp string, rounding half up.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatDate(t time.Time) string {
	return t.Format(responseDateLayout)
}
