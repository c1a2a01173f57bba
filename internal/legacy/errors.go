package legacy

import "fmt"

// ErrKind classifies a decode failure. All kinds map to a client error at
// the HTTP layer; only ErrUnexpected indicates a bug in the decoder itself.
type ErrKind int

const (
	ErrNullLine ErrKind = iota
	ErrTooShort
	ErrInvalidField
	ErrMissingField
	ErrInvalidDate
	ErrUnexpected
)

// String returns the kind's stable name, used in error messages and codes.
func (k ErrKind) String() string {
	switch k {
	case ErrNullLine:
		return "null_line"
	case ErrTooShort:
		return "too_short"
	case ErrInvalidField:
		return "invalid_field"
	case ErrMissingField:
		return "missing_field"
	case ErrInvalidDate:
		return "invalid_date"
	default:
		return "unexpected"
	}
}

// DecodeErr is returned for any line that cannot be decoded. Field names the
// offending field for ErrInvalidField and ErrMissingField; Raw carries the
// raw field text when available.
type DecodeErr struct {
	Kind  ErrKind
	Field string
	Raw   string
	cause error
}

func (e *DecodeErr) Error() string {
	switch e.Kind {
	case ErrNullLine:
		return "decode: nil line"
	case ErrTooShort:
		return fmt.Sprintf("decode: line shorter than %d characters", MinLineLength)
	case ErrInvalidField:
		return fmt.Sprintf("decode: invalid value for field %s: %q", e.Field, e.Raw)
	case ErrMissingField:
		return fmt.Sprintf("decode: missing field %s", e.Field)
	case ErrInvalidDate:
		return fmt.Sprintf("decode: invalid date %q", e.Raw)
	default:
		if e.cause != nil {
			return fmt.Sprintf("decode: unexpected failure: %v", e.cause)
		}
		return "decode: unexpected failure"
	}
}

// Unwrap exposes the underlying cause for ErrUnexpected.
func (e *DecodeErr) Unwrap() error {
	return e.cause
}
