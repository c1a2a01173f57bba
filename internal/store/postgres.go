package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. The caller owns pool configuration;
// Close releases it.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// WithTx runs fn inside one database transaction. Rollback on a committed
// transaction is a no-op, so the deferred call is safe on every path.
func (s *Postgres) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() {
	s.pool.Close()
}

// pgTx implements Tx over a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := t.tx.QueryRow(ctx,
		`SELECT customer_id, name FROM customers WHERE customer_id = $1`, id,
	).Scan(&c.ID, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("get customer %d: %w", id, err)
	}
	return c, nil
}

func (t *pgTx) UpsertCustomer(ctx context.Context, c Customer) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO customers (customer_id, name) VALUES ($1, $2)
		 ON CONFLICT (customer_id) DO UPDATE SET name = EXCLUDED.name`,
		c.ID, c.Name)
	if err != nil {
		return fmt.Errorf("upsert customer %d: %w", c.ID, err)
	}
	return nil
}

func (t *pgTx) GetOrder(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := t.tx.QueryRow(ctx,
		`SELECT order_id, customer_id, order_date, total FROM orders WHERE order_id = $1`, id,
	).Scan(&o.ID, &o.CustomerID, &o.Date, &o.Total)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %d: %w", id, err)
	}
	return o, nil
}

func (t *pgTx) UpsertOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO orders (order_id, customer_id, order_date, total)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (order_id) DO UPDATE
		 SET customer_id = EXCLUDED.customer_id,
		     order_date  = EXCLUDED.order_date,
		     total       = EXCLUDED.total`,
		o.ID, o.CustomerID, o.Date, o.Total)
	if err != nil {
		return fmt.Errorf("upsert order %d: %w", o.ID, err)
	}
	return nil
}

func (t *pgTx) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := t.tx.QueryRow(ctx,
		`SELECT product_id FROM products WHERE product_id = $1`, id,
	).Scan(&p.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func (t *pgTx) EnsureProduct(ctx context.Context, p Product) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO products (product_id) VALUES ($1)
		 ON CONFLICT (product_id) DO NOTHING`,
		p.ID)
	if err != nil {
		return fmt.Errorf("ensure product %d: %w", p.ID, err)
	}
	return nil
}

func (t *pgTx) GetOrderItem(ctx context.Context, orderID, productID int64) (OrderItem, error) {
	var it OrderItem
	err := t.tx.QueryRow(ctx,
		`SELECT order_id, product_id, item_value FROM order_items
		 WHERE order_id = $1 AND product_id = $2`, orderID, productID,
	).Scan(&it.OrderID, &it.ProductID, &it.Value)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderItem{}, ErrNotFound
	}
	if err != nil {
		return OrderItem{}, fmt.Errorf("get order item (%d,%d): %w", orderID, productID, err)
	}
	return it, nil
}

func (t *pgTx) UpsertOrderItem(ctx context.Context, it OrderItem) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO order_items (order_id, product_id, item_value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (order_id, product_id) DO UPDATE
		 SET item_value = EXCLUDED.item_value`,
		it.OrderID, it.ProductID, it.Value)
	if err != nil {
		return fmt.Errorf("upsert order item (%d,%d): %w", it.OrderID, it.ProductID, err)
	}
	return nil
}

const orderViewSelect = `
	SELECT o.order_id, o.customer_id, o.order_date, o.total, c.customer_id, c.name
	FROM orders o
	LEFT JOIN customers c ON c.customer_id = o.customer_id`

func (s *Postgres) OrderByID(ctx context.Context, id int64) (OrderView, error) {
	rows, err := s.pool.Query(ctx, orderViewSelect+` WHERE o.order_id = $1`, id)
	if err != nil {
		return OrderView{}, fmt.Errorf("query order %d: %w", id, err)
	}
	views, err := s.collectViews(ctx, rows)
	if err != nil {
		return OrderView{}, err
	}
	if len(views) == 0 {
		return OrderView{}, ErrNotFound
	}
	return views[0], nil
}

func (s *Postgres) OrdersByDateRange(ctx context.Context, start, end time.Time) ([]OrderView, error) {
	rows, err := s.pool.Query(ctx,
		orderViewSelect+` WHERE o.order_date BETWEEN $1 AND $2 ORDER BY o.order_date, o.order_id`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("query orders by date range: %w", err)
	}
	return s.collectViews(ctx, rows)
}

func (s *Postgres) AllOrders(ctx context.Context) ([]OrderView, error) {
	rows, err := s.pool.Query(ctx, orderViewSelect+` ORDER BY o.order_id`)
	if err != nil {
		return nil, fmt.Errorf("query all orders: %w", err)
	}
	return s.collectViews(ctx, rows)
}

func (s *Postgres) DeleteOrder(ctx context.Context, id int64) error {
	// order_items carries ON DELETE CASCADE, so the items go with the order.
	tag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE order_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// collectViews scans order rows and loads their items in one follow-up
// query, bucketed by order id.
func (s *Postgres) collectViews(ctx context.Context, rows pgx.Rows) ([]OrderView, error) {
	defer rows.Close()

	var views []OrderView
	var ids []int64
	for rows.Next() {
		var v OrderView
		var custID *int64
		var custName *string
		if err := rows.Scan(&v.Order.ID, &v.Order.CustomerID, &v.Order.Date, &v.Order.Total,
			&custID, &custName); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if custID != nil && custName != nil {
			v.Customer = &Customer{ID: *custID, Name: *custName}
		}
		v.Items = []OrderItem{}
		views = append(views, v)
		ids = append(ids, v.Order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(views) == 0 {
		return views, nil
	}

	itemRows, err := s.pool.Query(ctx,
		`SELECT order_id, product_id, item_value FROM order_items
		 WHERE order_id = ANY($1) ORDER BY order_id, product_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer itemRows.Close()

	byOrder := make(map[int64]*OrderView, len(views))
	for i := range views {
		byOrder[views[i].Order.ID] = &views[i]
	}
	for itemRows.Next() {
		var it OrderItem
		if err := itemRows.Scan(&it.OrderID, &it.ProductID, &it.Value); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if v, ok := byOrder[it.OrderID]; ok {
			v.Items = append(v.Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return views, nil
}

// compile-time interface checks
var (
	_ Store = (*Postgres)(nil)
	_ Tx    = (*pgTx)(nil)
)
