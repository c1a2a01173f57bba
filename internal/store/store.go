// Package store persists the order hierarchy. It exposes a small
// transactional find/upsert surface over four record kinds (customer,
// order, product, order item) plus the read queries the API needs.
//
// Two implementations exist: Postgres (production) and an in-memory store
// with the same all-or-nothing transaction semantics (tests, local dev).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by the Get operations when no row matches.
var ErrNotFound = errors.New("store: not found")

// Customer is a persisted customer row. The name is overwritten on every
// merge that touches the customer.
type Customer struct {
	ID   int64
	Name string
}

// Order is a persisted order row, owned by a customer. Date and total are
// overwritten on every merge.
type Order struct {
	ID         int64
	CustomerID int64
	Date       time.Time
	Total      decimal.Decimal
}

// Product is a persisted product row. It has no mutable attributes: created
// on first reference, never updated, never deleted by this service.
type Product struct {
	ID int64
}

// OrderItem is a persisted line item, keyed by the composite
// (OrderID, ProductID). At most one row exists per pair; repeated pairs in
// one file converge to the last occurrence's value.
type OrderItem struct {
	OrderID   int64
	ProductID int64
	Value     decimal.Decimal
}

// OrderView is an order fetched for queries, with its owner and items
// eagerly loaded. Customer is nil when the owning row is missing, which the
// query side treats as a data-integrity gap and skips.
type OrderView struct {
	Order    Order
	Customer *Customer
	Items    []OrderItem
}

// Tx is the write surface available inside a transaction. Every mutation in
// a transaction becomes visible atomically on commit or not at all.
type Tx interface {
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	UpsertCustomer(ctx context.Context, c Customer) error

	GetOrder(ctx context.Context, id int64) (Order, error)
	UpsertOrder(ctx context.Context, o Order) error

	GetProduct(ctx context.Context, id int64) (Product, error)
	// EnsureProduct creates the product if absent and is a no-op otherwise.
	EnsureProduct(ctx context.Context, p Product) error

	GetOrderItem(ctx context.Context, orderID, productID int64) (OrderItem, error)
	UpsertOrderItem(ctx context.Context, it OrderItem) error
}

// Store is the persistence collaborator for the order service.
type Store interface {
	// WithTx runs fn inside one atomic transaction. If fn returns an error
	// or the commit fails, nothing fn wrote is observable afterward.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// OrderByID fetches one order with owner and items. ErrNotFound when
	// the order does not exist.
	OrderByID(ctx context.Context, id int64) (OrderView, error)

	// OrdersByDateRange fetches orders whose date falls in [start, end],
	// both bounds inclusive.
	OrdersByDateRange(ctx context.Context, start, end time.Time) ([]OrderView, error)

	// AllOrders fetches every order. Unbounded: there is no pagination, so
	// callers own the blast radius of a full-table read.
	AllOrders(ctx context.Context) ([]OrderView, error)

	// DeleteOrder removes an order and cascades to its items. Products and
	// customers are never deleted.
	DeleteOrder(ctx context.Context, id int64) error

	Ping(ctx context.Context) error
	Close()
}
