// Package legacy decodes the fixed-width order file format produced by the
// upstream legacy system. Each record is one newline-terminated line of at
// least 95 characters, carrying six fields at fixed byte offsets:
//
//	[0,10)   customer id   (zero-padded integer)
//	[10,55)  customer name (space-padded text)
//	[55,65)  order id      (zero-padded integer)
//	[65,75)  product id    (zero-padded integer)
//	[75,87)  value         (decimal, or zero-padded integer cents)
//	[87,95)  date          (yyyyMMdd)
//
// Decoding is a pure function from a line to a Record or a DecodeErr; it
// keeps no state and never panics across the package boundary.
package legacy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MinLineLength is the shortest line that can hold all six fields.
const MinLineLength = 95

// Field byte ranges within a line. Ranges that extend past a line's actual
// length are truncated to the available bytes rather than erroring.
const (
	customerIDStart   = 0
	customerIDEnd     = 10
	customerNameStart = 10
	customerNameEnd   = 55
	orderIDStart      = 55
	orderIDEnd        = 65
	productIDStart    = 65
	productIDEnd      = 75
	valueStart        = 75
	valueEnd          = 87
	dateStart         = 87
	dateEnd           = 95
)

const dateLayout = "20060102"

// Record is one decoded line of the legacy file. It has no identity beyond
// its fields and is consumed immediately by aggregation.
type Record struct {
	CustomerID   int64
	CustomerName string
	OrderID      int64
	ProductID    int64
	Value        decimal.Decimal
	Date         time.Time
}

// Decode parses one raw line into a Record. A nil slice fails with
// ErrNullLine; a line shorter than MinLineLength fails with ErrTooShort.
// Any panic inside the field parsers is recovered into ErrUnexpected so a
// malformed line can never take down the caller.
func Decode(line []byte) (rec Record, err error) {
	if line == nil {
		return Record{}, &DecodeErr{Kind: ErrNullLine}
	}
	s := string(line)
	if len(s) < MinLineLength {
		return Record{}, &DecodeErr{Kind: ErrTooShort, Raw: s}
	}

	defer func() {
		if r := recover(); r != nil {
			rec = Record{}
			err = &DecodeErr{Kind: ErrUnexpected, cause: panicErr(r)}
		}
	}()

	customerID, err := parseID(slice(s, customerIDStart, customerIDEnd), "customerId")
	if err != nil {
		return Record{}, err
	}
	name := strings.TrimSpace(slice(s, customerNameStart, customerNameEnd))
	orderID, err := parseID(slice(s, orderIDStart, orderIDEnd), "orderId")
	if err != nil {
		return Record{}, err
	}
	productID, err := parseID(slice(s, productIDStart, productIDEnd), "productId")
	if err != nil {
		return Record{}, err
	}
	value, err := parseValue(slice(s, valueStart, valueEnd))
	if err != nil {
		return Record{}, err
	}
	date, err := parseDate(slice(s, dateStart, dateEnd))
	if err != nil {
		return Record{}, err
	}

	return Record{
		CustomerID:   customerID,
		CustomerName: name,
		OrderID:      orderID,
		ProductID:    productID,
		Value:        value,
		Date:         date,
	}, nil
}

// slice returns s[start:end], truncating to the available bytes.
func slice(s string, start, end int) string {
	if len(s) <= start {
		return ""
	}
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}

// parseID parses a zero-padded integer field. Empty or all-zero input yields
// 0; anything non-numeric after stripping the padding fails.
func parseID(raw, field string) (int64, error) {
	cleaned := strings.TrimLeft(strings.TrimSpace(raw), "0")
	if cleaned == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, &DecodeErr{Kind: ErrInvalidField, Field: field, Raw: raw}
	}
	return n, nil
}

// parseValue parses the monetary field. Text carrying a decimal point
// ("000000512.24") parses directly; a plain digit string is zero-padded
// integer cents ("000000051224" is 512.24, not 51224). Empty input yields
// exactly zero; only digit strings succeed via the cents path.
func parseValue(raw string) (decimal.Decimal, error) {
	t := strings.TrimSpace(raw)
	if t == "" {
		return decimal.Zero, nil
	}
	if strings.Contains(t, ".") {
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Decimal{}, &DecodeErr{Kind: ErrInvalidField, Field: "value", Raw: raw}
		}
		return d, nil
	}
	cleaned := strings.TrimLeft(t, "0")
	if cleaned == "" {
		return decimal.Zero, nil
	}
	cents, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return decimal.Decimal{}, &DecodeErr{Kind: ErrInvalidField, Field: "value", Raw: raw}
	}
	return decimal.New(cents, -2), nil
}

// parseDate parses the strict yyyyMMdd date field. time.Parse rejects
// non-calendar dates such as 20211301, matching the strictness required.
func parseDate(raw string) (time.Time, error) {
	t := strings.TrimSpace(raw)
	if t == "" {
		return time.Time{}, &DecodeErr{Kind: ErrMissingField, Field: "date"}
	}
	d, err := time.Parse(dateLayout, t)
	if err != nil {
		return time.Time{}, &DecodeErr{Kind: ErrInvalidDate, Raw: raw}
	}
	return d, nil
}

func panicErr(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
