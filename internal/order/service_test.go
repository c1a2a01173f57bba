package order

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"legacyorders/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return NewService(mem, 0, 0), mem
}

func TestProcessFile_EndToEndScenario(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.ProcessFile(context.Background(), file(
		line("2", "Medeiros", "12345", "111", "256.24", "20201201"),
		line("1", "Zarelli", "123", "111", "512.24", "20211201"),
		line("1", "Zarelli", "123", "122", "512.24", "20211201"),
		line("2", "Medeiros", "12345", "122", "256.24", "20201201"),
	))
	if err != nil {
		t.Fatalf("ProcessFile error = %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("customers = %d, want 2", len(result))
	}

	// Customer 2 appeared first in the file.
	if result[0].UserID != 2 || result[1].UserID != 1 {
		t.Fatalf("customer order = [%d %d], want [2 1]", result[0].UserID, result[1].UserID)
	}

	medeiros := result[0]
	if len(medeiros.Orders) != 1 {
		t.Fatalf("customer 2 orders = %d, want 1", len(medeiros.Orders))
	}
	if o := medeiros.Orders[0]; o.OrderID != 12345 || o.Total != "512.48" || len(o.Products) != 2 {
		t.Errorf("customer 2 order = %+v, want order 12345 total 512.48 with 2 products", o)
	}
	if d := medeiros.Orders[0].Date; d != "2020-12-01" {
		t.Errorf("date = %q, want 2020-12-01", d)
	}

	zarelli := result[1]
	if o := zarelli.Orders[0]; o.OrderID != 123 || o.Total != "1024.48" || len(o.Products) != 2 {
		t.Errorf("customer 1 order = %+v, want order 123 total 1024.48 with 2 products", o)
	}
}

func TestProcessFile_EmptyFieldValueAndZeroIDs(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.ProcessFile(context.Background(), file(
		line("0", "", "0", "0", "", "20211201"),
	))
	if err != nil {
		t.Fatalf("ProcessFile error = %v", err)
	}
	if len(result) != 1 || result[0].UserID != 0 || result[0].Name != "" {
		t.Fatalf("result = %+v, want one customer 0 with empty name", result)
	}
	if o := result[0].Orders[0]; o.Total != "0.00" || o.Products[0].Value != "0.00" {
		t.Errorf("order = %+v, want zero total and value formatted 0.00", o)
	}
}

func TestProcessFile_Idempotent(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	upload := func() []Customer {
		t.Helper()
		result, err := svc.ProcessFile(ctx, file(
			line("1", "Zarelli", "123", "111", "512.24", "20211201"),
			line("1", "Zarelli", "123", "122", "512.24", "20211201"),
		))
		if err != nil {
			t.Fatalf("ProcessFile error = %v", err)
		}
		return result
	}

	first := upload()
	stateAfterFirst, err := mem.AllOrders(ctx)
	if err != nil {
		t.Fatalf("AllOrders error = %v", err)
	}

	second := upload()
	stateAfterSecond, err := mem.AllOrders(ctx)
	if err != nil {
		t.Fatalf("AllOrders error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("responses differ between identical uploads:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if !reflect.DeepEqual(stateAfterFirst, stateAfterSecond) {
		t.Errorf("persisted state changed on identical re-upload:\nfirst:  %+v\nsecond: %+v",
			stateAfterFirst, stateAfterSecond)
	}
}

// A repeated (order, product) pair keeps only the last line's value in the
// stored item row, while the order total sums every occurrence. The two
// facts disagree on purpose: documented legacy behavior, do not "fix".
func TestMerge_DuplicatePairKeepsLastValueButSumsTotal(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	result, err := svc.ProcessFile(ctx, file(
		line("1", "Zarelli", "123", "111", "100.00", "20211201"),
		line("1", "Zarelli", "123", "111", "200.00", "20211201"),
	))
	if err != nil {
		t.Fatalf("ProcessFile error = %v", err)
	}

	// The response mirrors the input: both lines appear.
	resp := result[0].Orders[0]
	if len(resp.Products) != 2 {
		t.Fatalf("response products = %d, want 2", len(resp.Products))
	}
	if resp.Products[0].Value != "100.00" || resp.Products[1].Value != "200.00" {
		t.Errorf("response values = [%s %s], want [100.00 200.00]",
			resp.Products[0].Value, resp.Products[1].Value)
	}
	if resp.Total != "300.00" {
		t.Errorf("response total = %s, want 300.00", resp.Total)
	}

	// The store kept one row per pair, with the last value.
	v, err := mem.OrderByID(ctx, 123)
	if err != nil {
		t.Fatalf("OrderByID error = %v", err)
	}
	if len(v.Items) != 1 {
		t.Fatalf("stored items = %d, want 1", len(v.Items))
	}
	if !v.Items[0].Value.Equal(decimal.RequireFromString("200.00")) {
		t.Errorf("stored value = %s, want last-line 200.00", v.Items[0].Value)
	}
	if !v.Order.Total.Equal(decimal.RequireFromString("300.00")) {
		t.Errorf("stored total = %s, want summed 300.00", v.Order.Total)
	}
}

func TestProcessFile_LastFileWinsForName(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ProcessFile(ctx, file(line("1", "Old Name", "123", "111", "100.00", "20211201"))); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if _, err := svc.ProcessFile(ctx, file(line("1", "New Name", "124", "111", "100.00", "20211202"))); err != nil {
		t.Fatalf("second upload: %v", err)
	}

	v, err := mem.OrderByID(ctx, 123)
	if err != nil {
		t.Fatalf("OrderByID error = %v", err)
	}
	if v.Customer == nil || v.Customer.Name != "New Name" {
		t.Errorf("customer = %+v, want name from last processed file", v.Customer)
	}
}

func TestProcessFile_DecodeFailureWritesNothing(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessFile(ctx, file(
		line("1", "Zarelli", "123", "111", "512.24", "20211201"),
		"garbage",
	))
	if err == nil {
		t.Fatal("expected decode error")
	}

	views, err := mem.AllOrders(ctx)
	if err != nil {
		t.Fatalf("AllOrders error = %v", err)
	}
	if len(views) != 0 {
		t.Errorf("store has %d orders after failed ingest, want 0", len(views))
	}
}

// failingStore wraps a Store and fails the nth order-item upsert, to prove
// that a mid-merge store failure leaves nothing behind.
type failingStore struct {
	store.Store
	failAt int
}

type failingTx struct {
	store.Tx
	calls  *int
	failAt int
}

func (f *failingStore) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	calls := 0
	return f.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(&failingTx{Tx: tx, calls: &calls, failAt: f.failAt})
	})
}

func (f *failingTx) UpsertOrderItem(ctx context.Context, it store.OrderItem) error {
	*f.calls++
	if *f.calls == f.failAt {
		return errors.New("simulated store failure")
	}
	return f.Tx.UpsertOrderItem(ctx, it)
}

func TestProcessFile_StoreFailureRollsBack(t *testing.T) {
	mem := store.NewMemory()
	svc := NewService(&failingStore{Store: mem, failAt: 2}, 0, 0)
	ctx := context.Background()

	_, err := svc.ProcessFile(ctx, file(
		line("1", "Zarelli", "123", "111", "512.24", "20211201"),
		line("1", "Zarelli", "123", "122", "512.24", "20211201"),
	))
	if err == nil {
		t.Fatal("expected store failure")
	}

	views, err := mem.AllOrders(ctx)
	if err != nil {
		t.Fatalf("AllOrders error = %v", err)
	}
	if len(views) != 0 {
		t.Errorf("store has %d orders after aborted transaction, want 0", len(views))
	}
}

func TestQuery_ByOrderID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ProcessFile(ctx, file(
		line("1", "Zarelli", "123", "111", "512.24", "20211201"),
		line("2", "Medeiros", "12345", "122", "256.24", "20201201"),
	)); err != nil {
		t.Fatalf("ProcessFile error = %v", err)
	}

	id := int64(123)
	result, err := svc.Query(ctx, QueryParams{OrderID: &id})
	if err != nil {
		t.Fatalf("Query error = %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("customers = %d, want 1", len(result))
	}
	if result[0].UserID != 1 || len(result[0].Orders) != 1 || result[0].Orders[0].OrderID != 123 {
		t.Errorf("result = %+v, want customer 1 with only order 123", result)
	}
}

func TestQuery_ByOrderID_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	id := int64(999)
	result, err := svc.Query(context.Background(), QueryParams{OrderID: &id})
	if err != nil {
		t.Fatalf("Query error = %v", err)
	}
	if len(result) != 0 {
		t.Errorf("customers = %d, want 0", len(result))
	}
}

func TestQuery_ByDateRange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ProcessFile(ctx, file(
		line("1", "Zarelli", "123", "111", "512.24", "20211201"),
		line("2", "Medeiros", "12345", "122", "256.24", "20201201"),
	)); err != nil {
		t.Fatalf("ProcessFile error = %v", err)
	}

	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)
	result, err := svc.Query(ctx, QueryParams{StartDate: &start, EndDate: &end})
	if err != nil {
		t.Fatalf("Query error = %v", err)
	}
	if len(result) != 1 || result[0].UserID != 1 {
		t.Fatalf("result = %+v, want only customer 1 (order in range)", result)
	}
}

func TestQuery_Unfiltered(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ProcessFile(ctx, file(
		line("1", "Zarelli", "123", "111", "512.24", "20211201"),
		line("2", "Medeiros", "12345", "122", "256.24", "20201201"),
	)); err != nil {
		t.Fatalf("ProcessFile error = %v", err)
	}

	result, err := svc.Query(ctx, QueryParams{})
	if err != nil {
		t.Fatalf("Query error = %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("customers = %d, want 2", len(result))
	}
}

func TestQuery_OnlyOneDateBoundIsIgnored(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ProcessFile(ctx, file(
		line("1", "Zarelli", "123", "111", "512.24", "20211201"),
	)); err != nil {
		t.Fatalf("ProcessFile error = %v", err)
	}

	// A lone bound does not filter; the query falls back to fetch-all.
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	result, err := svc.Query(ctx, QueryParams{StartDate: &start})
	if err != nil {
		t.Fatalf("Query error = %v", err)
	}
	if len(result) != 1 {
		t.Errorf("customers = %d, want 1 (unfiltered)", len(result))
	}
}

func TestQuery_SkipsOrderWithMissingOwner(t *testing.T) {
	mem := store.NewMemory()
	svc := NewService(mem, 0, 0)
	ctx := context.Background()

	err := mem.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.UpsertCustomer(ctx, store.Customer{ID: 1, Name: "Zarelli"}); err != nil {
			return err
		}
		if err := tx.UpsertOrder(ctx, store.Order{
			ID: 123, CustomerID: 1,
			Date: time.Date(2021, 12, 1, 0, 0, 0, 0, time.UTC), Total: decimal.New(100, -2),
		}); err != nil {
			return err
		}
		// Orphaned order: owner row 99 does not exist.
		return tx.UpsertOrder(ctx, store.Order{
			ID: 124, CustomerID: 99,
			Date: time.Date(2021, 12, 2, 0, 0, 0, 0, time.UTC), Total: decimal.New(100, -2),
		})
	})
	if err != nil {
		t.Fatalf("seed error = %v", err)
	}

	result, err := svc.Query(ctx, QueryParams{})
	if err != nil {
		t.Fatalf("Query error = %v", err)
	}
	if len(result) != 1 || result[0].UserID != 1 {
		t.Errorf("result = %+v, want only customer 1 (orphan skipped)", result)
	}
}

func TestQuery_OrderWithNoItems(t *testing.T) {
	mem := store.NewMemory()
	svc := NewService(mem, 0, 0)
	ctx := context.Background()

	err := mem.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.UpsertCustomer(ctx, store.Customer{ID: 1, Name: "Zarelli"}); err != nil {
			return err
		}
		return tx.UpsertOrder(ctx, store.Order{
			ID: 123, CustomerID: 1,
			Date: time.Date(2021, 12, 1, 0, 0, 0, 0, time.UTC), Total: decimal.Zero,
		})
	})
	if err != nil {
		t.Fatalf("seed error = %v", err)
	}

	result, err := svc.Query(ctx, QueryParams{})
	if err != nil {
		t.Fatalf("Query error = %v", err)
	}
	products := result[0].Orders[0].Products
	if products == nil || len(products) != 0 {
		t.Errorf("products = %#v, want empty non-nil slice", products)
	}
}

func TestIngestLimiter_Blocks(t *testing.T) {
	l := NewIngestLimiter(1, 50*time.Millisecond)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire error = %v", err)
	}
	if err := l.Acquire(ctx); !errors.Is(err, ErrTooManyIngests) {
		t.Errorf("second Acquire = %v, want ErrTooManyIngests", err)
	}

	l.Release()
	if err := l.Acquire(ctx); err != nil {
		t.Errorf("Acquire after Release error = %v", err)
	}
	l.Release()

	if n := l.ActiveCount(); n != 0 {
		t.Errorf("ActiveCount = %d, want 0", n)
	}
}
