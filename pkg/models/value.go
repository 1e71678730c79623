package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueKind identifies which variant a Value holds.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindMap
	KindList
)

// Value is a tagged union over the field values the engine moves around:
// scalars, nested maps and nested lists. Using an explicit union instead of
// raw interface{} maps keeps merge precedence and checksum canonicalization
// deterministic.
type Value struct {
	Kind ValueKind
	Bool bool
	Num  float64
	Str  string
	Map  map[string]Value
	List []Value
}

func Null() Value { return Value{Kind: KindNull} }

func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

func MapValue(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

func ListValue(l []Value) Value { return Value{Kind: KindList, List: l} }

// FromInterface converts an arbitrary decoded value (database/sql scan
// results, JSON payloads, bson documents) into a Value. Byte slices become
// strings and timestamps are normalized to RFC3339, matching how the legacy
// store serializes them.
func FromInterface(v interface{}) Value {
	if v == nil {
		return Null()
	}
	switch t := v.(type) {
	case bool:
		return BoolValue(t)
	case int:
		return NumberValue(float64(t))
	case int32:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case float32:
		return NumberValue(float64(t))
	case float64:
		return NumberValue(t)
	case string:
		return StringValue(t)
	case []byte:
		return StringValue(string(t))
	case time.Time:
		return StringValue(t.UTC().Format(time.RFC3339))
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, mv := range t {
			m[k] = FromInterface(mv)
		}
		return MapValue(m)
	case []interface{}:
		l := make([]Value, 0, len(t))
		for _, lv := range t {
			l = append(l, FromInterface(lv))
		}
		return ListValue(l)
	case Value:
		return t
	default:
		// Unknown driver types degrade to their string form.
		return StringValue(fmt.Sprintf("%v", t))
	}
}

// FieldsFromInterface converts a flat row map into a Value field map.
func FieldsFromInterface(row map[string]interface{}) map[string]Value {
	fields := make(map[string]Value, len(row))
	for k, v := range row {
		fields[k] = FromInterface(v)
	}
	return fields
}

// ToInterface converts a Value back into plain Go types, suitable for
// JSON/bson encoding.
func (v Value) ToInterface() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindMap:
		m := make(map[string]interface{}, len(v.Map))
		for k, mv := range v.Map {
			m[k] = mv.ToInterface()
		}
		return m
	case KindList:
		l := make([]interface{}, 0, len(v.List))
		for _, lv := range v.List {
			l = append(l, lv.ToInterface())
		}
		return l
	}
	return nil
}

// Equal reports deep equality of two Values.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		return v.Num == o.Num
	case KindString:
		return v.Str == o.Str
	case KindMap:
		if len(v.Map) != len(o.Map) {
			return false
		}
		for k, mv := range v.Map {
			ov, ok := o.Map[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Canonical renders the Value into a deterministic textual form used for
// content checksums. Map keys are emitted in sorted order so that two
// structurally equal values always produce the same bytes.
func (v Value) Canonical(sb *strings.Builder) {
	switch v.Kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.Bool))
	case KindNumber:
		sb.WriteString(strconv.FormatFloat(v.Num, 'g', -1, 64))
	case KindString:
		sb.WriteString(strconv.Quote(v.Str))
	case KindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte(':')
			v.Map[k].Canonical(sb)
		}
		sb.WriteByte('}')
	case KindList:
		sb.WriteByte('[')
		for i, lv := range v.List {
			if i > 0 {
				sb.WriteByte(',')
			}
			lv.Canonical(sb)
		}
		sb.WriteByte(']')
	}
}

// CanonicalString is a convenience wrapper around Canonical.
func (v Value) CanonicalString() string {
	var sb strings.Builder
	v.Canonical(&sb)
	return sb.String()
}

// MergeFields combines flat source columns with keys lifted out of a nested
// JSON payload. Flat columns win over payload keys of the same name, so a
// column that was promoted out of the payload at some point in the legacy
// schema's history never gets clobbered by a stale payload copy.
func MergeFields(flat, payload map[string]Value) map[string]Value {
	merged := make(map[string]Value, len(flat)+len(payload))
	for k, v := range payload {
		merged[k] = v
	}
	for k, v := range flat {
		merged[k] = v
	}
	return merged
}
