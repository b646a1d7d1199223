package frame

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order by ParseTimestamp. The Carbon
// Intensity API emits minute precision without seconds ("2018-01-20T12:00Z").
var timestampLayouts = []string{
	"2006-01-02T15:04Z07:00",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses s with the accepted layouts and returns it in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("frame: unparseable timestamp %q", s)
}

// InferKind returns the kind of a Go value. ok is false for nil.
func InferKind(v any) (Kind, bool) {
	switch v.(type) {
	case nil:
		return KindString, false
	case float64, float32, json.Number:
		return KindFloat, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInt, true
	case bool:
		return KindBool, true
	case time.Time:
		return KindTimestamp, true
	default:
		return KindString, true
	}
}

// unify returns the kind that can hold values of both a and b.
func unify(a, b Kind) Kind {
	if a == b {
		return a
	}
	if (a == KindInt && b == KindFloat) || (a == KindFloat && b == KindInt) {
		return KindFloat
	}
	return KindString
}

// Conform converts v to the canonical Go type of kind: string, float64,
// int64, bool or time.Time. Values that do not convert become nil.
func Conform(kind Kind, v any) any {
	if v == nil {
		return nil
	}
	switch kind {
	case KindFloat:
		if f, ok := ToFloat(v); ok {
			return f
		}
	case KindInt:
		if i, ok := ToInt(v); ok {
			return i
		}
	case KindBool:
		switch x := v.(type) {
		case bool:
			return x
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
				return b
			}
		}
	case KindTimestamp:
		if t, ok := ToTime(v); ok {
			return t
		}
	default:
		return ToString(v)
	}
	return nil
}

// ToFloat converts numbers and numeric strings. NaN and empty strings are nulls.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToInt converts integral values. Floats with a fractional part are rejected.
func ToInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return i, err == nil
	}
	f, ok := ToFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// ToTime converts time.Time values and parseable strings to UTC.
func ToTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case string:
		t, err := ParseTimestamp(x)
		return t, err == nil
	}
	return time.Time{}, false
}

// ToString renders any non-nil value as a string.
func ToString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Compare orders two cells of the same kind. Nulls sort after every value.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	switch x := a.(type) {
	case float64:
		if y, ok := ToFloat(b); ok {
			return cmpOrdered(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y)
		}
		if y, ok := ToFloat(b); ok {
			return cmpOrdered(float64(x), y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(ToString(a), ToString(b))
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
