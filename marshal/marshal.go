package marshal

import (
	"fmt"
	"math"
	"net/netip"
	"strings"
	"time"

	searchbridge "github.com/emberai/search-bridge"
	"github.com/emberai/search-bridge/errors"
)

// ToField converts a dynamic host value into a typed engine value. The
// expected type is always explicit; the runtime shape of the host value is
// never used to pick a target type. field names the conversion site for
// error reporting.
func ToField(field string, host any, vt searchbridge.ValueType) (searchbridge.Value, error) {
	switch vt.Kind {
	case searchbridge.FieldTypeText:
		s, ok := host.(string)
		if !ok {
			return searchbridge.Value{}, mismatch(field, host, vt)
		}
		return searchbridge.Text(s), nil

	case searchbridge.FieldTypeUnsigned:
		return toUnsigned(field, host, vt)

	case searchbridge.FieldTypeInteger:
		return toInteger(field, host, vt)

	case searchbridge.FieldTypeFloat:
		switch v := host.(type) {
		case float64:
			return searchbridge.Float(v), nil
		case float32:
			return searchbridge.Float(float64(v)), nil
		case int:
			return searchbridge.Float(float64(v)), nil
		case int64:
			return searchbridge.Float(float64(v)), nil
		case uint64:
			return searchbridge.Float(float64(v)), nil
		}
		return searchbridge.Value{}, mismatch(field, host, vt)

	case searchbridge.FieldTypeBoolean:
		b, ok := host.(bool)
		if !ok {
			return searchbridge.Value{}, mismatch(field, host, vt)
		}
		return searchbridge.Bool(b), nil

	case searchbridge.FieldTypeDate:
		switch v := host.(type) {
		case time.Time:
			return searchbridge.Date(v), nil
		case string:
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return searchbridge.Value{}, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
					Path(field).
					HostType("string").
					FieldType("date").
					Detail("not an RFC 3339 timestamp: %q", v).
					Cause(err).
					Build()
			}
			return searchbridge.Date(t), nil
		}
		return searchbridge.Value{}, mismatch(field, host, vt)

	case searchbridge.FieldTypeBytes:
		b, ok := host.([]byte)
		if !ok {
			return searchbridge.Value{}, mismatch(field, host, vt)
		}
		out := make([]byte, len(b))
		copy(out, b)
		return searchbridge.Bytes(out), nil

	case searchbridge.FieldTypeFacet:
		return toFacet(field, host)

	case searchbridge.FieldTypeJSON:
		m, ok := host.(map[string]any)
		if !ok {
			return searchbridge.Value{}, mismatch(field, host, vt)
		}
		return searchbridge.JSON(m), nil

	case searchbridge.FieldTypeIP:
		switch v := host.(type) {
		case netip.Addr:
			return searchbridge.IP(v), nil
		case string:
			addr, err := netip.ParseAddr(v)
			if err != nil {
				return searchbridge.Value{}, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
					Path(field).
					HostType("string").
					FieldType("ip").
					Detail("not an IP address: %q", v).
					Cause(err).
					Build()
			}
			return searchbridge.IP(addr), nil
		}
		return searchbridge.Value{}, mismatch(field, host, vt)
	}

	return searchbridge.Value{}, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
		Path(field).
		Detail("unsupported field type %v", vt.Kind).
		Build()
}

// ToHost converts a typed engine value back into the host's dynamic
// representation.
func ToHost(v searchbridge.Value) any {
	switch v.Type() {
	case searchbridge.FieldTypeText:
		return v.Str()
	case searchbridge.FieldTypeUnsigned:
		return v.Uint64()
	case searchbridge.FieldTypeInteger:
		return v.Int64()
	case searchbridge.FieldTypeFloat:
		return v.Float64()
	case searchbridge.FieldTypeBoolean:
		return v.Bool()
	case searchbridge.FieldTypeDate:
		return v.Time()
	case searchbridge.FieldTypeBytes:
		return v.Bytes()
	case searchbridge.FieldTypeFacet:
		return v.Str()
	case searchbridge.FieldTypeJSON:
		return v.JSON()
	case searchbridge.FieldTypeIP:
		return v.Str()
	}
	return nil
}

// Values converts an ordered sequence of host values sharing one field
// name. Order is preserved end-to-end; some field types are
// position-sensitive.
func Values(field string, hosts []any, vt searchbridge.ValueType) ([]searchbridge.Value, error) {
	out := make([]searchbridge.Value, 0, len(hosts))
	for _, h := range hosts {
		v, err := ToField(field, h, vt)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func toUnsigned(field string, host any, vt searchbridge.ValueType) (searchbridge.Value, error) {
	var u uint64
	switch v := host.(type) {
	case uint64:
		u = v
	case uint:
		u = uint64(v)
	case uint32:
		u = uint64(v)
	case uint16:
		u = uint64(v)
	case uint8:
		u = uint64(v)
	case int:
		if v < 0 {
			return searchbridge.Value{}, errors.RangeOverflow([]string{field}, v, vt.String())
		}
		u = uint64(v)
	case int64:
		if v < 0 {
			return searchbridge.Value{}, errors.RangeOverflow([]string{field}, v, vt.String())
		}
		u = uint64(v)
	case int32:
		if v < 0 {
			return searchbridge.Value{}, errors.RangeOverflow([]string{field}, v, vt.String())
		}
		u = uint64(v)
	default:
		return searchbridge.Value{}, mismatch(field, host, vt)
	}

	if max := maxUint(vt.Bits); u > max {
		return searchbridge.Value{}, errors.RangeOverflow([]string{field}, u, vt.String())
	}
	return searchbridge.Uint(u), nil
}

func toInteger(field string, host any, vt searchbridge.ValueType) (searchbridge.Value, error) {
	var i int64
	switch v := host.(type) {
	case int64:
		i = v
	case int:
		i = int64(v)
	case int32:
		i = int64(v)
	case int16:
		i = int64(v)
	case int8:
		i = int64(v)
	case uint64:
		if v > math.MaxInt64 {
			return searchbridge.Value{}, errors.RangeOverflow([]string{field}, v, vt.String())
		}
		i = int64(v)
	case uint:
		if uint64(v) > math.MaxInt64 {
			return searchbridge.Value{}, errors.RangeOverflow([]string{field}, v, vt.String())
		}
		i = int64(v)
	default:
		return searchbridge.Value{}, mismatch(field, host, vt)
	}

	lo, hi := intRange(vt.Bits)
	if i < lo || i > hi {
		return searchbridge.Value{}, errors.RangeOverflow([]string{field}, i, vt.String())
	}
	return searchbridge.Int(i), nil
}

func toFacet(field string, host any) (searchbridge.Value, error) {
	switch v := host.(type) {
	case string:
		if !strings.HasPrefix(v, "/") || v == "/" {
			return searchbridge.Value{}, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
				Path(field).
				HostType("string").
				FieldType("facet").
				Detail("facet path must start with '/' and name at least one segment: %q", v).
				Build()
		}
		for _, seg := range strings.Split(strings.TrimPrefix(v, "/"), "/") {
			if seg == "" {
				return searchbridge.Value{}, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
					Path(field).
					FieldType("facet").
					Detail("facet path has an empty segment: %q", v).
					Build()
			}
		}
		return searchbridge.Facet(v), nil
	case []string:
		if len(v) == 0 {
			return searchbridge.Value{}, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
				Path(field).
				FieldType("facet").
				Detail("facet path needs at least one segment").
				Build()
		}
		return searchbridge.Facet("/" + strings.Join(v, "/")), nil
	}
	return searchbridge.Value{}, mismatch(field, host, searchbridge.ValueType{Kind: searchbridge.FieldTypeFacet})
}

func maxUint(bits uint8) uint64 {
	switch bits {
	case 8:
		return math.MaxUint8
	case 16:
		return math.MaxUint16
	case 32:
		return math.MaxUint32
	default:
		return math.MaxUint64
	}
}

func intRange(bits uint8) (int64, int64) {
	switch bits {
	case 8:
		return math.MinInt8, math.MaxInt8
	case 16:
		return math.MinInt16, math.MaxInt16
	case 32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func mismatch(field string, host any, vt searchbridge.ValueType) *errors.Error {
	return errors.TypeMismatch(errors.PhaseMarshal, []string{field}, fmt.Sprintf("%T", host), vt.String())
}
