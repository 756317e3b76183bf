package addrspace

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// checkValue verifies that v is a legal value for a variable of dataType.
// A nil value is always accepted.
func (s *Space) checkValue(dataType NodeID, v any) error {
	if v == nil || dataType.IsNull() || dataType == BaseDataType {
		return nil
	}

	if dt, ok := s.customTypes.Lookup(dataType); ok && dt.IsEnum() {
		e, ok := v.(int32)
		if !ok {
			return fmt.Errorf("%w: %s expects an enum value, got %T", ErrTypeMismatch, dt.Name, v)
		}
		if e < 0 || int(e) >= len(dt.Members) {
			return fmt.Errorf("%w: %s has no member %d", ErrOutOfRange, dt.Name, e)
		}
		return nil
	}

	ok := false
	switch dataType {
	case BooleanType:
		_, ok = v.(bool)
	case UInt16Type:
		_, ok = v.(uint16)
	case Int32Type:
		_, ok = v.(int32)
	case UInt32Type:
		_, ok = v.(uint32)
	case StringType:
		switch v.(type) {
		case string, []string:
			ok = true
		}
	case DateTimeType:
		_, ok = v.(time.Time)
	case ByteStringType:
		_, ok = v.([]byte)
	case NodeIDType:
		_, ok = v.(NodeID)
	case LocalizedTextType:
		switch v.(type) {
		case LocalizedText, []LocalizedText:
			ok = true
		}
	default:
		if s.isSubtypeOf(dataType, EnumerationType) {
			_, ok = v.(int32)
		} else {
			ok = true
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s does not accept %T", ErrTypeMismatch, dataType, v)
	}
	return nil
}

// Coerce converts a loosely typed value (as decoded from JSON or a script)
// into the Go type expected by dataType. Values that already have the right
// type are returned unchanged.
func (s *Space) Coerce(dataType NodeID, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	if dt, ok := s.customTypes.Lookup(dataType); ok && dt.IsEnum() {
		if name, isString := v.(string); isString {
			for i, m := range dt.Members {
				if m == name {
					return int32(i), nil
				}
			}
			return nil, fmt.Errorf("%w: %s has no member %q", ErrOutOfRange, dt.Name, name)
		}
		return toInt32(v)
	}

	switch dataType {
	case BooleanType:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			p, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a boolean", ErrTypeMismatch, b)
			}
			return p, nil
		}
	case Int32Type:
		return toInt32(v)
	case UInt32Type:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < 0 || n > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %d does not fit UInt32", ErrOutOfRange, n)
		}
		return uint32(n), nil
	case UInt16Type:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < 0 || n > math.MaxUint16 {
			return nil, fmt.Errorf("%w: %d does not fit UInt16", ErrOutOfRange, n)
		}
		return uint16(n), nil
	case StringType:
		if str, ok := v.(string); ok {
			return str, nil
		}
	case LocalizedTextType:
		return toLocalizedText(v)
	default:
		if s.isSubtypeOf(dataType, EnumerationType) {
			return toInt32(v)
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: cannot convert %T to %s", ErrTypeMismatch, v, dataType)
}

// toLocalizedText accepts a plain string (en-US), a LocalizedText or a
// decoded JSON object with "text" and an optional "locale". Locales are
// canonicalised.
func toLocalizedText(v any) (any, error) {
	var lt LocalizedText
	switch t := v.(type) {
	case string:
		return Text(t), nil
	case LocalizedText:
		lt = t
	case map[string]any:
		text, ok := t["text"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: localized text needs a string \"text\"", ErrTypeMismatch)
		}
		locale, _ := t["locale"].(string) //nolint:errcheck // absent locale is allowed
		lt = LocalizedText{Locale: locale, Text: text}
	default:
		return nil, fmt.Errorf("%w: cannot convert %T to LocalizedText", ErrTypeMismatch, v)
	}

	locale, err := CanonicalLocale(lt.Locale)
	if err != nil {
		return nil, err
	}
	lt.Locale = locale
	return lt, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrTypeMismatch, n)
		}
		return int64(n), nil
	case string:
		p, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrTypeMismatch, n)
		}
		return p, nil
	}
	return 0, fmt.Errorf("%w: %T is not an integer", ErrTypeMismatch, v)
}

func toInt32(v any) (any, error) {
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d does not fit Int32", ErrOutOfRange, n)
	}
	return int32(n), nil
}
