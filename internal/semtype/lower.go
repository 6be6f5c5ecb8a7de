package semtype

import (
	"fmt"

	"constellation/internal/ctype"
)

// LoweringError reports a SemanticType that has no runtime counterpart.
// Per section 3.2: SFunction, an unresolved RowVar, or an unresolved
// SOpenRecord all fail to lower; section 4.1 requires this be a Result,
// never a panic.
type LoweringError struct {
	Type   *Type
	Reason string
}

func (e *LoweringError) Error() string {
	return fmt.Sprintf("cannot lower %s to a runtime type: %s", e.Type, e.Reason)
}

var tagCounter int

// ToCType lowers a SemanticType to a runtime CType, per the table in
// section 4.1. Unions are given synthesized tags (SynthesizeTag: a
// kind-based name plus the member index, e.g. Int0, Str1, Variant2)
// since SUnion carries an unordered member set but CUnion requires
// named variants.
func ToCType(t *Type) (*ctype.Type, error) {
	switch t.Kind {
	case KindNothing:
		return nil, &LoweringError{Type: t, Reason: "Nothing has no runtime representation"}
	case KindString:
		return ctype.String, nil
	case KindInt:
		return ctype.Int, nil
	case KindFloat:
		return ctype.Float, nil
	case KindBoolean:
		return ctype.Boolean, nil
	case KindList:
		elem, err := ToCType(t.Elem)
		if err != nil {
			return nil, err
		}
		return ctype.List(elem), nil
	case KindMap:
		k, err := ToCType(t.Key)
		if err != nil {
			return nil, err
		}
		v, err := ToCType(t.Value)
		if err != nil {
			return nil, err
		}
		return ctype.Map(k, v), nil
	case KindOptional:
		elem, err := ToCType(t.Elem)
		if err != nil {
			return nil, err
		}
		return ctype.Optional(elem), nil
	case KindRecord:
		fields := make(map[string]*ctype.Type, len(t.Fields))
		for name, ft := range t.Fields {
			cft, err := ToCType(ft)
			if err != nil {
				return nil, err
			}
			fields[name] = cft
		}
		return ctype.Product(fields), nil
	case KindUnion:
		variants := make(map[string]*ctype.Type, len(t.Members))
		for i, m := range t.Members {
			cm, err := ToCType(m)
			if err != nil {
				return nil, err
			}
			variants[SynthesizeTag(i, m)] = cm
		}
		return ctype.Union(variants), nil
	case KindFunction:
		return nil, &LoweringError{Type: t, Reason: "functions exist only at compile time"}
	case KindOpenRecord:
		return nil, &LoweringError{Type: t, Reason: "open record must be resolved to a closed record before lowering"}
	default:
		return nil, &LoweringError{Type: t, Reason: "unknown semantic type kind"}
	}
}

// SynthesizeTag produces a deterministic variant tag for a union member
// at flattened index i, derived from the member's own kind so that
// re-lowering the same SemanticType always produces the same tags (IR
// determinism, section 8).
func SynthesizeTag(i int, member *Type) string {
	name := "Variant"
	switch member.Kind {
	case KindString:
		name = "Str"
	case KindInt:
		name = "Int"
	case KindFloat:
		name = "Float"
	case KindBoolean:
		name = "Bool"
	case KindList:
		name = "List"
	case KindMap:
		name = "Map"
	case KindRecord:
		name = "Record"
	case KindOptional:
		name = "Optional"
	}
	return fmt.Sprintf("%s%d", name, i)
}
