package order

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"legacyorders/internal/legacy"
)

// line assembles one valid 95-character legacy line.
func line(customerID, name, orderID, productID, value, date string) string {
	padLeft := func(s string, width int) string {
		return strings.Repeat("0", width-len(s)) + s
	}
	padRight := func(s string, width int) string {
		return s + strings.Repeat(" ", width-len(s))
	}
	return padLeft(customerID, 10) + padRight(name, 45) + padLeft(orderID, 10) +
		padLeft(productID, 10) + padLeft(value, 12) + date
}

func file(lines ...string) *strings.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func TestAggregate_TwoProductsOneOrder(t *testing.T) {
	aggs, err := Aggregate(file(
		line("1", "Zarelli", "123", "111", "512.24", "20211201"),
		line("1", "Zarelli", "123", "122", "512.24", "20211201"),
	))
	if err != nil {
		t.Fatalf("Aggregate error = %v", err)
	}

	if len(aggs) != 1 {
		t.Fatalf("customers = %d, want 1", len(aggs))
	}
	ca := aggs[0]
	if len(ca.Orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(ca.Orders))
	}
	oa := ca.Orders[0]
	if len(oa.Items) != 2 {
		t.Errorf("items = %d, want 2", len(oa.Items))
	}
	if !oa.Total.Equal(decimal.RequireFromString("1024.48")) {
		t.Errorf("total = %s, want 1024.48", oa.Total)
	}
}

func TestAggregate_FirstAppearanceOrdering(t *testing.T) {
	aggs, err := Aggregate(file(
		line("2", "Medeiros", "12345", "111", "256.24", "20201201"),
		line("1", "Zarelli", "123", "111", "512.24", "20211201"),
		line("2", "Medeiros", "12346", "122", "256.24", "20201201"),
	))
	if err != nil {
		t.Fatalf("Aggregate error = %v", err)
	}

	if len(aggs) != 2 {
		t.Fatalf("customers = %d, want 2", len(aggs))
	}
	if aggs[0].ID != 2 || aggs[1].ID != 1 {
		t.Errorf("customer order = [%d %d], want [2 1]", aggs[0].ID, aggs[1].ID)
	}
	if aggs[0].Orders[0].ID != 12345 || aggs[0].Orders[1].ID != 12346 {
		t.Errorf("order ids = [%d %d], want [12345 12346]",
			aggs[0].Orders[0].ID, aggs[0].Orders[1].ID)
	}
}

func TestAggregate_FirstSeenNameAndDateWin(t *testing.T) {
	aggs, err := Aggregate(file(
		line("1", "First Name", "123", "111", "100.00", "20211201"),
		line("1", "Second Name", "123", "122", "100.00", "20220115"),
	))
	if err != nil {
		t.Fatalf("Aggregate error = %v", err)
	}

	ca := aggs[0]
	if ca.Name != "First Name" {
		t.Errorf("Name = %q, want first-seen %q", ca.Name, "First Name")
	}
	oa := ca.Orders[0]
	if got := oa.Date.Format("20060102"); got != "20211201" {
		t.Errorf("Date = %s, want first-seen 20211201", got)
	}
	if len(oa.Items) != 2 {
		t.Errorf("items = %d, want 2 (later line still appended)", len(oa.Items))
	}
}

func TestAggregate_BlankLinesSkipped(t *testing.T) {
	aggs, err := Aggregate(strings.NewReader(
		"\n   \n" +
			line("1", "Zarelli", "123", "111", "512.24", "20211201") + "\n" +
			"\t\n",
	))
	if err != nil {
		t.Fatalf("Aggregate error = %v", err)
	}
	if len(aggs) != 1 || len(aggs[0].Orders[0].Items) != 1 {
		t.Errorf("aggregate shape unexpected: %+v", aggs)
	}
}

func TestAggregate_DecodeFailureAborts(t *testing.T) {
	_, err := Aggregate(file(
		line("1", "Zarelli", "123", "111", "512.24", "20211201"),
		"too short",
	))
	var de *legacy.DecodeErr
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *legacy.DecodeErr", err)
	}
	if de.Kind != legacy.ErrTooShort {
		t.Errorf("kind = %v, want ErrTooShort", de.Kind)
	}
}

func TestAggregate_DuplicatePairSumsTotal(t *testing.T) {
	aggs, err := Aggregate(file(
		line("1", "Zarelli", "123", "111", "100.00", "20211201"),
		line("1", "Zarelli", "123", "111", "200.00", "20211201"),
	))
	if err != nil {
		t.Fatalf("Aggregate error = %v", err)
	}

	oa := aggs[0].Orders[0]
	// Both occurrences are kept as line items and both count toward the
	// total; dedup happens only at the persisted item row.
	if len(oa.Items) != 2 {
		t.Errorf("items = %d, want 2", len(oa.Items))
	}
	if !oa.Total.Equal(decimal.RequireFromString("300.00")) {
		t.Errorf("total = %s, want 300.00", oa.Total)
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	aggs, err := Aggregate(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Aggregate error = %v", err)
	}
	if len(aggs) != 0 {
		t.Errorf("customers = %d, want 0", len(aggs))
	}
}
