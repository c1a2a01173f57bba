package order

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"legacyorders/internal/store"
)

// Service ties aggregation, merging and querying to a Store.
type Service struct {
	store   store.Store
	limiter *IngestLimiter
}

// NewService creates a Service. maxConcurrent and maxWait configure the
// ingest limiter; zero values pick the defaults.
func NewService(st store.Store, maxConcurrent int, maxWait time.Duration) *Service {
	return &Service{
		store:   st,
		limiter: NewIngestLimiter(maxConcurrent, maxWait),
	}
}

// AcquireIngest reserves an ingest slot; see IngestLimiter.
func (s *Service) AcquireIngest(ctx context.Context) error {
	return s.limiter.Acquire(ctx)
}

// ReleaseIngest frees a slot reserved by AcquireIngest.
func (s *Service) ReleaseIngest() {
	s.limiter.Release()
}

// WaitForIngests blocks until in-flight ingests drain, for shutdown.
func (s *Service) WaitForIngests(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ProcessFile ingests one legacy order file: aggregate every line, then
// merge the hierarchy into the store in one atomic transaction. The
// returned hierarchy mirrors the input file: customers in first-appearance
// order, orders in first-appearance order within each customer, and one
// product line per input line (duplicates included), even though the
// persisted item table keeps at most one row per (order, product) pair.
//
// Any decode failure or store failure leaves the store untouched.
func (s *Service) ProcessFile(ctx context.Context, r io.Reader) ([]Customer, error) {
	aggregates, err := Aggregate(r)
	if err != nil {
		return nil, err
	}

	var result []Customer
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		result = result[:0]
		for _, ca := range aggregates {
			c, err := s.mergeCustomer(ctx, tx, ca)
			if err != nil {
				return err
			}
			result = append(result, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result == nil {
		result = []Customer{}
	}
	return result, nil
}

// mergeCustomer upserts one customer aggregate and returns its response
// entry. The name overwrites whatever is stored: the last processed file
// wins across uploads, the first line wins within one file.
func (s *Service) mergeCustomer(ctx context.Context, tx store.Tx, ca *CustomerAggregate) (Customer, error) {
	if err := tx.UpsertCustomer(ctx, store.Customer{ID: ca.ID, Name: ca.Name}); err != nil {
		return Customer{}, err
	}

	resp := Customer{UserID: ca.ID, Name: ca.Name, Orders: []Order{}}
	for _, oa := range ca.Orders {
		o, err := s.mergeOrder(ctx, tx, ca.ID, oa)
		if err != nil {
			return Customer{}, err
		}
		resp.Orders = append(resp.Orders, o)
	}
	return resp, nil
}

// mergeOrder upserts one order and its line items. A repeated
// (order, product) pair overwrites the stored item row, so the row
// converges to the last line's value while the order total has already
// summed every occurrence. That mismatch is documented legacy behavior and
// is preserved deliberately.
func (s *Service) mergeOrder(ctx context.Context, tx store.Tx, customerID int64, oa *OrderAggregate) (Order, error) {
	err := tx.UpsertOrder(ctx, store.Order{
		ID:         oa.ID,
		CustomerID: customerID,
		Date:       oa.Date,
		Total:      oa.Total,
	})
	if err != nil {
		return Order{}, err
	}

	resp := Order{
		OrderID:  oa.ID,
		Total:    money(oa.Total),
		Date:     formatDate(oa.Date),
		Products: []Product{},
	}
	for _, it := range oa.Items {
		if err := tx.EnsureProduct(ctx, store.Product{ID: it.ProductID}); err != nil {
			return Order{}, err
		}
		err := tx.UpsertOrderItem(ctx, store.OrderItem{
			OrderID:   oa.ID,
			ProductID: it.ProductID,
			Value:     it.Value,
		})
		if err != nil {
			return Order{}, err
		}
		resp.Products = append(resp.Products, Product{ProductID: it.ProductID, Value: money(it.Value)})
	}
	return resp, nil
}

// QueryParams filters the read side. OrderID wins over the date range; the
// range applies only when both bounds are present; with neither, every
// order is returned.
type QueryParams struct {
	OrderID   *int64
	StartDate *time.Time
	EndDate   *time.Time
}

// Query fetches orders per params and reassembles the response hierarchy,
// grouping orders by owning customer in the order the store returned them.
// An order whose owning customer row is missing is skipped: a data
// integrity gap, not a query failure.
func (s *Service) Query(ctx context.Context, p QueryParams) ([]Customer, error) {
	var (
		views []store.OrderView
		err   error
	)
	switch {
	case p.OrderID != nil:
		var v store.OrderView
		v, err = s.store.OrderByID(ctx, *p.OrderID)
		if errors.Is(err, store.ErrNotFound) {
			err = nil
		} else if err == nil {
			views = []store.OrderView{v}
		}
	case p.StartDate != nil && p.EndDate != nil:
		views, err = s.store.OrdersByDateRange(ctx, *p.StartDate, *p.EndDate)
	default:
		views, err = s.store.AllOrders(ctx)
	}
	if err != nil {
		return nil, err
	}

	result := []Customer{}
	index := make(map[int64]int)
	skipped := 0
	for _, v := range views {
		if v.Customer == nil {
			skipped++
			continue
		}
		i, ok := index[v.Customer.ID]
		if !ok {
			result = append(result, Customer{
				UserID: v.Customer.ID,
				Name:   v.Customer.Name,
				Orders: []Order{},
			})
			i = len(result) - 1
			index[v.Customer.ID] = i
		}

		o := Order{
			OrderID:  v.Order.ID,
			Total:    money(v.Order.Total),
			Date:     formatDate(v.Order.Date),
			Products: []Product{},
		}
		for _, it := range v.Items {
			o.Products = append(o.Products, Product{ProductID: it.ProductID, Value: money(it.Value)})
		}
		result[i].Orders = append(result[i].Orders, o)
	}
	if skipped > 0 {
		slog.Warn("skipped orders without owning customer", "count", skipped)
	}
	return result, nil
}
