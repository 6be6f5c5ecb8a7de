// Package ctype implements the runtime type system: CType and CValue as
// described by the closed sum type in section 3.1 of the Constellation
// specification. Every CValue reports its CType via a pure function; type
// and value are always kept parallel.
package ctype

import (
	"fmt"
	"sort"
	"strings"
)

// Kind tags the variant of a Type. The set is closed: callers type-switch
// or branch on Kind exhaustively rather than extending it.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBoolean
	KindList
	KindMap
	KindProduct
	KindUnion
	KindOptional
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "String"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBoolean:
		return "Boolean"
	case KindList:
		return "List"
	case KindMap:
		return "Map"
	case KindProduct:
		return "Product"
	case KindUnion:
		return "Union"
	case KindOptional:
		return "Optional"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Type is a runtime CType. Exactly one set of fields is meaningful per
// Kind:
//
//	KindList     -> Elem
//	KindMap      -> Key, Value
//	KindProduct  -> Fields
//	KindUnion    -> Variants
//	KindOptional -> Elem
//
// Primitives use no auxiliary fields.
type Type struct {
	Kind     Kind
	Elem     *Type
	Key      *Type
	Value    *Type
	Fields   map[string]*Type
	Variants map[string]*Type
}

func Primitive(k Kind) *Type { return &Type{Kind: k} }

var (
	String  = Primitive(KindString)
	Int     = Primitive(KindInt)
	Float   = Primitive(KindFloat)
	Boolean = Primitive(KindBoolean)
)

func List(elem *Type) *Type { return &Type{Kind: KindList, Elem: elem} }

func Map(key, value *Type) *Type { return &Type{Kind: KindMap, Key: key, Value: value} }

func Product(fields map[string]*Type) *Type { return &Type{Kind: KindProduct, Fields: fields} }

func Union(variants map[string]*Type) *Type { return &Type{Kind: KindUnion, Variants: variants} }

func Optional(elem *Type) *Type { return &Type{Kind: KindOptional, Elem: elem} }

// Equal is structural equality, not identity. Record field order and
// union variant order never matter.
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindString, KindInt, KindFloat, KindBoolean:
		return true
	case KindList, KindOptional:
		return t.Elem.Equal(other.Elem)
	case KindMap:
		return t.Key.Equal(other.Key) && t.Value.Equal(other.Value)
	case KindProduct:
		if len(t.Fields) != len(other.Fields) {
			return false
		}
		for name, ft := range t.Fields {
			oft, ok := other.Fields[name]
			if !ok || !ft.Equal(oft) {
				return false
			}
		}
		return true
	case KindUnion:
		if len(t.Variants) != len(other.Variants) {
			return false
		}
		for tag, vt := range t.Variants {
			ovt, ok := other.Variants[tag]
			if !ok || !vt.Equal(ovt) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders a canonical, deterministic representation. Union members
// are printed in sorted order so two unions with the same member set
// always print identically, which is what lets the type checker
// de-duplicate diagnostics and compare union types for display.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindString, KindInt, KindFloat, KindBoolean:
		return t.Kind.String()
	case KindList:
		return fmt.Sprintf("List<%s>", t.Elem.String())
	case KindMap:
		return fmt.Sprintf("Map<%s,%s>", t.Key.String(), t.Value.String())
	case KindOptional:
		return fmt.Sprintf("Optional<%s>", t.Elem.String())
	case KindProduct:
		names := make([]string, 0, len(t.Fields))
		for name := range t.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s:%s", name, t.Fields[name].String())
		}
		return "{" + strings.Join(parts, ",") + "}"
	case KindUnion:
		parts := make([]string, 0, len(t.Variants))
		for tag, vt := range t.Variants {
			parts = append(parts, fmt.Sprintf("%s(%s)", tag, vt.String()))
		}
		sort.Strings(parts)
		return strings.Join(parts, "|")
	default:
		return "?"
	}
}
