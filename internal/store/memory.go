package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory Store with the same all-or-nothing transaction
// semantics as Postgres: WithTx works on a staged copy of the state and
// swaps it in only when fn succeeds. Used by tests and local development.
//
// Read queries mirror the Postgres result ordering: AllOrders by order id,
// OrdersByDateRange by (date, order id), items by product id.
type Memory struct {
	mu sync.RWMutex
	st memState
}

type memState struct {
	customers map[int64]Customer
	orders    map[int64]Order
	products  map[int64]Product
	items     map[int64][]OrderItem // per order
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{st: newMemState()}
}

func newMemState() memState {
	return memState{
		customers: make(map[int64]Customer),
		orders:    make(map[int64]Order),
		products:  make(map[int64]Product),
		items:     make(map[int64][]OrderItem),
	}
}

func (s memState) clone() memState {
	c := newMemState()
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.items {
		items := make([]OrderItem, len(v))
		copy(items, v)
		c.items[k] = items
	}
	return c
}

func (m *Memory) WithTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stage := m.st.clone()
	if err := fn(&memTx{st: &stage}); err != nil {
		return err
	}
	m.st = stage
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() {}

// memTx mutates the staged state; the commit in WithTx makes it visible.
type memTx struct {
	st *memState
}

func (t *memTx) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (t *memTx) UpsertCustomer(ctx context.Context, c Customer) error {
	t.st.customers[c.ID] = c
	return nil
}

func (t *memTx) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (t *memTx) UpsertOrder(ctx context.Context, o Order) error {
	t.st.orders[o.ID] = o
	return nil
}

func (t *memTx) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) EnsureProduct(ctx context.Context, p Product) error {
	if _, ok := t.st.products[p.ID]; !ok {
		t.st.products[p.ID] = p
	}
	return nil
}

func (t *memTx) GetOrderItem(ctx context.Context, orderID, productID int64) (OrderItem, error) {
	for _, it := range t.st.items[orderID] {
		if it.ProductID == productID {
			return it, nil
		}
	}
	return OrderItem{}, ErrNotFound
}

func (t *memTx) UpsertOrderItem(ctx context.Context, it OrderItem) error {
	items := t.st.items[it.OrderID]
	for i := range items {
		if items[i].ProductID == it.ProductID {
			items[i] = it
			return nil
		}
	}
	t.st.items[it.OrderID] = append(items, it)
	return nil
}

func (m *Memory) OrderByID(ctx context.Context, id int64) (OrderView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.st.orders[id]
	if !ok {
		return OrderView{}, ErrNotFound
	}
	return m.view(o), nil
}

func (m *Memory) OrdersByDateRange(ctx context.Context, start, end time.Time) ([]OrderView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orders []Order
	for _, o := range m.st.orders {
		if o.Date.Before(start) || o.Date.After(end) {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].Date.Equal(orders[j].Date) {
			return orders[i].Date.Before(orders[j].Date)
		}
		return orders[i].ID < orders[j].ID
	})
	return m.views(orders), nil
}

func (m *Memory) AllOrders(ctx context.Context) ([]OrderView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := make([]Order, 0, len(m.st.orders))
	for _, o := range m.st.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return m.views(orders), nil
}

func (m *Memory) DeleteOrder(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.st.orders[id]; !ok {
		return ErrNotFound
	}
	delete(m.st.orders, id)
	delete(m.st.items, id) // cascade, products stay
	return nil
}

func (m *Memory) views(orders []Order) []OrderView {
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, m.view(o))
	}
	return out
}

// view assembles one OrderView with items sorted by product id, matching
// the Postgres query ordering. Caller holds at least the read lock.
func (m *Memory) view(o Order) OrderView {
	v := OrderView{Order: o, Items: []OrderItem{}}
	if c, ok := m.st.customers[o.CustomerID]; ok {
		cc := c
		v.Customer = &cc
	}
	v.Items = append(v.Items, m.st.items[o.ID]...)
	sort.Slice(v.Items, func(i, j int) bool { return v.Items[i].ProductID < v.Items[j].ProductID })
	return v
}

var (
	_ Store = (*Memory)(nil)
	_ Tx    = (*memTx)(nil)
)
