package ctype

import (
	"fmt"
	"reflect"
	"sort"
)

// Value is a runtime CValue. Like Type, exactly one set of fields is
// meaningful per Kind.
type Value struct {
	kind Kind

	str  string
	i    int64
	f    float64
	b    bool

	list     []*Value
	listElem *Type // element type, carried even for an empty list

	entries []MapEntry
	mapKey  *Type
	mapVal  *Type

	fields map[string]*Value

	tag     string  // Union
	payload *Value  // Union payload
	utype   *Type   // full Union type, needed to reconstruct Type() for the payload's siblings

	some     bool  // Optional: true => inhabited by Some(inner)
	optInner *Type // Optional inner type, carried even for None
}

// MapEntry is one key/value pair of a Map value. Order is preserved so
// that two constructions of "the same" map in different insertion orders
// are still comparable by canonical encoding after sorting (see
// internal/dag's structural hash), while runtime iteration stays cheap.
type MapEntry struct {
	Key   *Value
	Value *Value
}

func NewString(s string) *Value  { return &Value{kind: KindString, str: s} }
func NewInt(i int64) *Value      { return &Value{kind: KindInt, i: i} }
func NewFloat(f float64) *Value  { return &Value{kind: KindFloat, f: f} }
func NewBoolean(b bool) *Value   { return &Value{kind: KindBoolean, b: b} }

func NewList(elemType *Type, items []*Value) *Value {
	return &Value{kind: KindList, list: items, listElem: elemType}
}

func NewMap(keyType, valType *Type, entries []MapEntry) *Value {
	return &Value{kind: KindMap, mapKey: keyType, mapVal: valType, entries: entries}
}

func NewProduct(fields map[string]*Value) *Value {
	return &Value{kind: KindProduct, fields: fields}
}

// NewUnion constructs a tagged union value. fullType must list every
// variant (including tag's own type) so Type() can be reconstructed
// without re-deriving it from the payload alone.
func NewUnion(fullType *Type, tag string, payload *Value) *Value {
	return &Value{kind: KindUnion, utype: fullType, tag: tag, payload: payload}
}

func NewSome(inner *Value) *Value {
	return &Value{kind: KindOptional, some: true, payload: inner, optInner: inner.Type()}
}

func NewNone(innerType *Type) *Value {
	return &Value{kind: KindOptional, some: false, optInner: innerType}
}

func (v *Value) Kind() Kind { return v.kind }
func (v *Value) Str() string { return v.str }
func (v *Value) Int() int64  { return v.i }
func (v *Value) Float() float64 { return v.f }
func (v *Value) Bool() bool  { return v.b }
func (v *Value) List() []*Value { return v.list }
func (v *Value) Entries() []MapEntry { return v.entries }
func (v *Value) Field(name string) (*Value, bool) { fv, ok := v.fields[name]; return fv, ok }
func (v *Value) Fields() map[string]*Value { return v.fields }
func (v *Value) Tag() string { return v.tag }
func (v *Value) Payload() *Value { return v.payload }
func (v *Value) IsSome() bool { return v.kind == KindOptional && v.some }

// Type derives the CType of a CValue. Type and value are always parallel:
// this function never fails.
func (v *Value) Type() *Type {
	switch v.kind {
	case KindString:
		return String
	case KindInt:
		return Int
	case KindFloat:
		return Float
	case KindBoolean:
		return Boolean
	case KindList:
		return List(v.listElem)
	case KindMap:
		return Map(v.mapKey, v.mapVal)
	case KindProduct:
		fields := make(map[string]*Type, len(v.fields))
		for name, fv := range v.fields {
			fields[name] = fv.Type()
		}
		return Product(fields)
	case KindUnion:
		return v.utype
	case KindOptional:
		return Optional(v.optInner)
	default:
		panic(fmt.Sprintf("ctype: value with unknown kind %d", v.kind))
	}
}

// Equal is deep structural equality over values, used by the module
// options executor's input-sensitive cache keying (section 4.7: "cache
// hits must only occur when the canonicalized input CValues compare
// equal").
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindBoolean:
		return v.b == other.b
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.entries) != len(other.entries) {
			return false
		}
		a := sortedEntries(v.entries)
		b := sortedEntries(other.entries)
		for i := range a {
			if !a[i].Key.Equal(b[i].Key) || !a[i].Value.Equal(b[i].Value) {
				return false
			}
		}
		return true
	case KindProduct:
		if len(v.fields) != len(other.fields) {
			return false
		}
		for name, fv := range v.fields {
			ofv, ok := other.fields[name]
			if !ok || !fv.Equal(ofv) {
				return false
			}
		}
		return true
	case KindUnion:
		return v.tag == other.tag && v.payload.Equal(other.payload)
	case KindOptional:
		if v.some != other.some {
			return false
		}
		if !v.some {
			return true
		}
		return v.payload.Equal(other.payload)
	default:
		return false
	}
}

func sortedEntries(entries []MapEntry) []MapEntry {
	out := make([]MapEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return canonicalKey(out[i].Key) < canonicalKey(out[j].Key) })
	return out
}

func canonicalKey(v *Value) string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return fmt.Sprintf("%020d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBoolean:
		return fmt.Sprintf("%v", v.b)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Zero produces the zero value of a CType, per the table in section 4.7
// of the specification (used by the on_error=skip/log module-options
// policy).
func Zero(t *Type) *Value {
	switch t.Kind {
	case KindString:
		return NewString("")
	case KindInt:
		return NewInt(0)
	case KindFloat:
		return NewFloat(0)
	case KindBoolean:
		return NewBoolean(false)
	case KindList:
		return NewList(t.Elem, nil)
	case KindMap:
		return NewMap(t.Key, t.Value, nil)
	case KindOptional:
		return NewNone(t.Elem)
	case KindProduct:
		fields := make(map[string]*Value, len(t.Fields))
		for name, ft := range t.Fields {
			fields[name] = Zero(ft)
		}
		return NewProduct(fields)
	case KindUnion:
		// Implementation-defined: the first variant in lexicographic tag
		// order, per section 4.7's "implementation-defined first-variant
		// zero".
		tags := make([]string, 0, len(t.Variants))
		for tag := range t.Variants {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		if len(tags) == 0 {
			panic("ctype: zero value of empty union")
		}
		first := tags[0]
		return NewUnion(t, first, Zero(t.Variants[first]))
	default:
		panic(fmt.Sprintf("ctype: zero of unknown kind %d", t.Kind))
	}
}

// TypeMismatch is returned by Extract when a host value's shape does not
// match the CValue being extracted.
type TypeMismatch struct {
	Expected string
	Found    string
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, found %s", e.Expected, e.Found)
}

// Inject maps a host Go value into a CValue. It is total over the subset
// of Go values that have a natural CType (primitives, slices, maps with
// string or primitive keys, structs with exported fields, and
// *ctype.Value itself); anything else is a
// TypeMismatch, never a panic.
func Inject(hv any) (*Value, error) {
	switch x := hv.(type) {
	case *Value:
		return x, nil
	case string:
		return NewString(x), nil
	case int:
		return NewInt(int64(x)), nil
	case int64:
		return NewInt(x), nil
	case float64:
		return NewFloat(x), nil
	case bool:
		return NewBoolean(x), nil
	case nil:
		return nil, &TypeMismatch{Expected: "CValue", Found: "nil"}
	}

	rv := reflect.ValueOf(hv)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]*Value, rv.Len())
		var elemType *Type
		for i := 0; i < rv.Len(); i++ {
			iv, err := Inject(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			items[i] = iv
			elemType = iv.Type()
		}
		if elemType == nil {
			return nil, &TypeMismatch{Expected: "non-empty list or explicit element type", Found: "empty slice"}
		}
		return NewList(elemType, items), nil
	case reflect.Map:
		entries := make([]MapEntry, 0, rv.Len())
		var keyType, valType *Type
		iter := rv.MapRange()
		for iter.Next() {
			kv, err := Inject(iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			vv, err := Inject(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			keyType, valType = kv.Type(), vv.Type()
			entries = append(entries, MapEntry{Key: kv, Value: vv})
		}
		if keyType == nil {
			return nil, &TypeMismatch{Expected: "non-empty map or explicit key/value type", Found: "empty map"}
		}
		return NewMap(keyType, valType, entries), nil
	case reflect.Struct:
		fields := make(map[string]*Value)
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			sf := rt.Field(i)
			if sf.PkgPath != "" {
				continue // unexported
			}
			fv, err := Inject(rv.Field(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", sf.Name, err)
			}
			fields[sf.Name] = fv
		}
		return NewProduct(fields), nil
	default:
		return nil, &TypeMismatch{Expected: "injectable host value", Found: rv.Kind().String()}
	}
}

// Extract maps a CValue back into a plain Go value (string, int64,
// float64, bool, []any, map[string]any for Product, map[any]any for Map,
// a {"tag", "value"} map[string]any for Union, the payload or nil for
// Optional). It is fallible rather than panicking.
func Extract(v *Value) (any, error) {
	if v == nil {
		return nil, &TypeMismatch{Expected: "CValue", Found: "nil"}
	}
	switch v.kind {
	case KindString:
		return v.str, nil
	case KindInt:
		return v.i, nil
	case KindFloat:
		return v.f, nil
	case KindBoolean:
		return v.b, nil
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			hv, err := Extract(item)
			if err != nil {
				return nil, err
			}
			out[i] = hv
		}
		return out, nil
	case KindMap:
		out := make(map[any]any, len(v.entries))
		for _, e := range v.entries {
			kv, err := Extract(e.Key)
			if err != nil {
				return nil, err
			}
			vv, err := Extract(e.Value)
			if err != nil {
				return nil, err
			}
			out[kv] = vv
		}
		return out, nil
	case KindProduct:
		out := make(map[string]any, len(v.fields))
		for name, fv := range v.fields {
			hv, err := Extract(fv)
			if err != nil {
				return nil, err
			}
			out[name] = hv
		}
		return out, nil
	case KindUnion:
		payload, err := Extract(v.payload)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tag": v.tag, "value": payload}, nil
	case KindOptional:
		if !v.some {
			return nil, nil
		}
		return Extract(v.payload)
	default:
		return nil, &TypeMismatch{Expected: "extractable CValue", Found: v.kind.String()}
	}
}
