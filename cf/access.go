package cf

import (
	"fmt"
	"math"
	"time"
)

// TypeMismatchError is returned by the As* accessors when the value is not of
// the requested variant.
type TypeMismatchError struct {
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cf: value is %s, not %s", e.Got, e.Want)
}

// NumericOverflowError is returned by the numeric accessors when the stored
// value cannot be represented in the requested type.
type NumericOverflowError struct {
	Value string
	Want  string
}

func (e *NumericOverflowError) Error() string {
	return fmt.Sprintf("cf: %s does not fit in %s", e.Value, e.Want)
}

func mismatch(want string, v Value) error {
	return &TypeMismatchError{Want: want, Got: v.TypeName()}
}

func AsString(v Value) (string, error) {
	if s, ok := v.(String); ok {
		return string(s), nil
	}
	return "", mismatch("string", v)
}

// AsInt64 performs a checked conversion from either numeric variant.
// Reals convert only when they hold an exact integer.
func AsInt64(v Value) (int64, error) {
	switch n := v.(type) {
	case *Number:
		if !n.Signed && n.Value > math.MaxInt64 {
			return 0, &NumericOverflowError{Value: fmt.Sprintf("%d", n.Value), Want: "int64"}
		}
		return int64(n.Value), nil
	case *Real:
		i := int64(n.Value)
		if float64(i) != n.Value {
			return 0, &NumericOverflowError{Value: fmt.Sprintf("%g", n.Value), Want: "int64"}
		}
		return i, nil
	}
	return 0, mismatch("number", v)
}

func AsFloat64(v Value) (float64, error) {
	switch n := v.(type) {
	case *Number:
		if n.Signed {
			return float64(int64(n.Value)), nil
		}
		return float64(n.Value), nil
	case *Real:
		return n.Value, nil
	}
	return 0, mismatch("number", v)
}

func AsBool(v Value) (bool, error) {
	if b, ok := v.(Boolean); ok {
		return bool(b), nil
	}
	return false, mismatch("boolean", v)
}

func AsDate(v Value) (time.Time, error) {
	if d, ok := v.(Date); ok {
		return time.Time(d), nil
	}
	return time.Time{}, mismatch("date", v)
}

func AsBytes(v Value) ([]byte, error) {
	if d, ok := v.(Data); ok {
		return []byte(d), nil
	}
	return nil, mismatch("data", v)
}

func AsArray(v Value) (Array, error) {
	if a, ok := v.(Array); ok {
		return a, nil
	}
	return nil, mismatch("array", v)
}

func AsDict(v Value) (*Dictionary, error) {
	if d, ok := v.(*Dictionary); ok {
		return d, nil
	}
	return nil, mismatch("dictionary", v)
}
