// Package order holds the business logic for order file ingestion: the
// in-memory aggregation of decoded lines, the transactional merge into the
// store, and the query-side reassembly of the response hierarchy.
package order

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"legacyorders/internal/legacy"
)

// CustomerAggregate accumulates one customer's orders for a single file.
// Name is the first-seen name for the id: later lines for the same customer
// may carry a different name, which is discarded, not validated.
type CustomerAggregate struct {
	ID     int64
	Name   string
	Orders []*OrderAggregate // first-appearance order, observable in the response

	byOrder map[int64]*OrderAggregate
}

// OrderAggregate accumulates one order's line items. Date comes from the
// line that established the order; Total sums every line's value, duplicate
// (order, product) pairs included.
type OrderAggregate struct {
	ID    int64
	Date  time.Time
	Total decimal.Decimal
	Items []LineItem // one entry per input line, duplicates included
}

// LineItem is one input line's product reference within an order.
type LineItem struct {
	ProductID int64
	Value     decimal.Decimal
}

// Aggregate decodes every line of r and builds the per-customer hierarchy
// in first-appearance order. Blank lines are skipped before decoding. Any
// decode failure aborts the whole run: no partial aggregate is returned.
func Aggregate(r io.Reader) ([]*CustomerAggregate, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []*CustomerAggregate
	byCustomer := make(map[int64]*CustomerAggregate)

	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, err := legacy.Decode([]byte(line))
		if err != nil {
			return nil, err
		}

		// Explicit create-vs-update branches: the customer's name and the
		// order's date are set on first creation only.
		ca, ok := byCustomer[rec.CustomerID]
		if !ok {
			ca = &CustomerAggregate{
				ID:      rec.CustomerID,
				Name:    rec.CustomerName,
				byOrder: make(map[int64]*OrderAggregate),
			}
			byCustomer[rec.CustomerID] = ca
			out = append(out, ca)
		}

		oa, ok := ca.byOrder[rec.OrderID]
		if !ok {
			oa = &OrderAggregate{
				ID:    rec.OrderID,
				Date:  rec.Date,
				Total: decimal.Zero,
			}
			ca.byOrder[rec.OrderID] = oa
			ca.Orders = append(ca.Orders, oa)
		}

		oa.Items = append(oa.Items, LineItem{ProductID: rec.ProductID, Value: rec.Value})
		oa.Total = oa.Total.Add(rec.Value)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read order file: %w", err)
	}
	return out, nil
}
