package searchbridge

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// FieldType identifies the engine-side type of a field value.
type FieldType uint8

const (
	FieldTypeText FieldType = iota + 1
	FieldTypeUnsigned
	FieldTypeInteger
	FieldTypeFloat
	FieldTypeBoolean
	FieldTypeDate
	FieldTypeFacet
	FieldTypeBytes
	FieldTypeJSON
	FieldTypeIP
)

var fieldTypeNames = map[FieldType]string{
	FieldTypeText:     "text",
	FieldTypeUnsigned: "unsigned",
	FieldTypeInteger:  "integer",
	FieldTypeFloat:    "float",
	FieldTypeBoolean:  "boolean",
	FieldTypeDate:     "date",
	FieldTypeFacet:    "facet",
	FieldTypeBytes:    "bytes",
	FieldTypeJSON:     "json",
	FieldTypeIP:       "ip",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("fieldtype(%d)", uint8(t))
}

// ParseFieldType resolves a type name used in serialized schemas.
func ParseFieldType(name string) (FieldType, error) {
	for t, n := range fieldTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", name)
}

// MarshalJSON writes the type as its stable name.
func (t FieldType) MarshalJSON() ([]byte, error) {
	name, ok := fieldTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown field type %d", uint8(t))
	}
	return json.Marshal(name)
}

// UnmarshalJSON reads the type from its stable name.
func (t *FieldType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseFieldType(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Orderable reports whether values of this type have a total order the
// engine can range-scan. Range queries are rejected on non-orderable fields.
func (t FieldType) Orderable() bool {
	switch t {
	case FieldTypeText, FieldTypeUnsigned, FieldTypeInteger, FieldTypeFloat, FieldTypeDate:
		return true
	}
	return false
}

// FastCapable reports whether the type supports columnar fast access.
func (t FieldType) FastCapable() bool {
	switch t {
	case FieldTypeUnsigned, FieldTypeInteger, FieldTypeFloat, FieldTypeDate, FieldTypeBoolean:
		return true
	}
	return false
}

// ValueType is the expected type at a conversion site: the field type plus,
// for integer kinds, the declared bit width. Bits zero means 64.
type ValueType struct {
	Kind FieldType
	Bits uint8
}

func (vt ValueType) String() string {
	if vt.Bits != 0 && vt.Bits != 64 {
		switch vt.Kind {
		case FieldTypeUnsigned:
			return fmt.Sprintf("u%d", vt.Bits)
		case FieldTypeInteger:
			return fmt.Sprintf("i%d", vt.Bits)
		}
	}
	return vt.Kind.String()
}

// Value is a single typed field value as the engine sees it. The zero Value
// is invalid.
type Value struct {
	typ   FieldType
	str   string
	u     uint64
	i     int64
	f     float64
	b     bool
	t     time.Time
	raw   []byte
	obj   map[string]any
}

// Type returns the field type this value carries.
func (v Value) Type() FieldType { return v.typ }

// Valid reports whether the value carries a type at all.
func (v Value) Valid() bool { return v.typ != 0 }

func (v Value) Str() string          { return v.str }
func (v Value) Uint64() uint64       { return v.u }
func (v Value) Int64() int64         { return v.i }
func (v Value) Float64() float64     { return v.f }
func (v Value) Bool() bool           { return v.b }
func (v Value) Time() time.Time      { return v.t }
func (v Value) Bytes() []byte        { return v.raw }
func (v Value) JSON() map[string]any { return v.obj }

// FacetSegments splits a facet path into its components.
func (v Value) FacetSegments() []string {
	if v.typ != FieldTypeFacet || v.str == "" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(v.str, "/"), "/")
}

func Text(s string) Value   { return Value{typ: FieldTypeText, str: s} }
func Uint(u uint64) Value   { return Value{typ: FieldTypeUnsigned, u: u} }
func Int(i int64) Value     { return Value{typ: FieldTypeInteger, i: i} }
func Float(f float64) Value { return Value{typ: FieldTypeFloat, f: f} }
func Bool(b bool) Value     { return Value{typ: FieldTypeBoolean, b: b} }

// Date carries a point in time, always normalized to UTC.
func Date(t time.Time) Value { return Value{typ: FieldTypeDate, t: t.UTC()} }

func Bytes(b []byte) Value { return Value{typ: FieldTypeBytes, raw: b} }

// Facet carries a slash-delimited hierarchical path such as "/lang/en".
func Facet(path string) Value { return Value{typ: FieldTypeFacet, str: path} }

func JSON(obj map[string]any) Value { return Value{typ: FieldTypeJSON, obj: obj} }

// IP carries an address in canonical textual form.
func IP(addr netip.Addr) Value { return Value{typ: FieldTypeIP, str: addr.String()} }
