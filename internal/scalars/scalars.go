// Package scalars coerces decoded input values into the canonical Go
// representation of each schema scalar type.
//
//	Int      -> int64 within the 32-bit range
//	BigInt   -> int64
//	Float    -> float64
//	String   -> string
//	Boolean  -> bool
//	DateTime -> time.Time in UTC
package scalars

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"queryshape/internal/schema"
)

var (
	ErrInvalidType = errors.New("invalid type")
	ErrNotInteger  = errors.New("not an integer")
	ErrOutOfRange  = errors.New("out of range")
	ErrInvalidDate = errors.New("invalid date")
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts value to the canonical representation of t.
// Nil is never accepted; nullability is decided by the caller.
func Coerce(t schema.ScalarType, value any) (any, error) {
	switch t {
	case schema.Int:
		n, err := coerceInteger(value)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %d does not fit in a 32-bit integer", ErrOutOfRange, n)
		}
		return n, nil
	case schema.BigInt:
		if s, ok := value.(string); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a base-10 integer", ErrInvalidType, s)
			}
			return n, nil
		}
		return coerceInteger(value)
	case schema.Float:
		return coerceFloat(value)
	case schema.String:
		s, ok := value.(string)
		if !ok {
			return nil, typeError("string", value)
		}
		return s, nil
	case schema.Boolean:
		b, ok := value.(bool)
		if !ok {
			return nil, typeError("boolean", value)
		}
		return b, nil
	case schema.DateTime:
		return coerceDateTime(value)
	default:
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownScalarType, t)
	}
}

// Describe names the Go kind of a decoded value for error messages.
func Describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "number"
	case time.Time:
		return "date"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func typeError(expected string, value any) error {
	return fmt.Errorf("%w: expected %s, received %s", ErrInvalidType, expected, Describe(value))
}

func coerceInteger(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return uintToInt64(uint64(v))
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return uintToInt64(v)
	case float32:
		return floatToInt64(float64(v))
	case float64:
		return floatToInt64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrOutOfRange, v.String())
		}
		return floatToInt64(f)
	default:
		return 0, typeError("integer", value)
	}
}

func uintToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, v)
	}
	return int64(v), nil
}

func floatToInt64(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNotInteger, f)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v", ErrNotInteger, f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v", ErrOutOfRange, f)
	}
	return int64(f), nil
}

func coerceFloat(value any) (float64, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrOutOfRange, v.String())
		}
		f = parsed
	default:
		n, err := coerceInteger(value)
		if err != nil {
			return 0, typeError("number", value)
		}
		f = float64(n)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not finite", ErrOutOfRange, f)
	}
	return f, nil
}

func coerceDateTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, v)
	default:
		millis, err := coerceInteger(value)
		if err != nil {
			if errors.Is(err, ErrInvalidType) {
				return time.Time{}, typeError("date", value)
			}
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, value)
		}
		return time.UnixMilli(millis).UTC(), nil
	}
}
