package semtype

// IsSubtype implements the structural subtyping relation of section 3.3.
// It is reflexive and transitive by construction (every case either
// terminates at structural equality or recurses on strictly smaller
// types).
func IsSubtype(s, t *Type) bool {
	if s == nil || t == nil {
		return false
	}
	if s.Kind == KindNothing {
		return true
	}
	// Union-as-subtype: A|B <: T iff A <: T and B <: T.
	if s.Kind == KindUnion {
		for _, m := range s.Members {
			if !IsSubtype(m, t) {
				return false
			}
		}
		return true
	}
	// Union-as-supertype: S <: A|B iff S <: A or S <: B.
	if t.Kind == KindUnion {
		for _, m := range t.Members {
			if IsSubtype(s, m) {
				return true
			}
		}
		return false
	}
	if s.Kind != t.Kind {
		return false
	}
	switch s.Kind {
	case KindNothing, KindString, KindInt, KindFloat, KindBoolean:
		return true
	case KindList:
		return IsSubtype(s.Elem, t.Elem)
	case KindOptional:
		return IsSubtype(s.Elem, t.Elem)
	case KindMap:
		// Keys invariant, values covariant.
		return s.Key.Equal(t.Key) && IsSubtype(s.Value, t.Value)
	case KindRecord:
		// Width + depth: every field the supertype requires must be
		// present in the subtype with a subtype-compatible type. The
		// subtype may carry additional fields.
		for name, tt := range t.Fields {
			st, ok := s.Fields[name]
			if !ok || !IsSubtype(st, tt) {
				return false
			}
		}
		return true
	case KindFunction:
		if len(s.Params) != len(t.Params) {
			return false
		}
		// Contravariant in parameters.
		for i := range s.Params {
			if !IsSubtype(t.Params[i], s.Params[i]) {
				return false
			}
		}
		// Covariant in return.
		return IsSubtype(s.Return, t.Return)
	case KindOpenRecord:
		// F ⊇ F' and field types agree; row variables are expected to
		// already be unified by the caller (see rowvar.go) before this
		// check is meaningful.
		for name, tt := range t.Fields {
			st, ok := s.Fields[name]
			if !ok || !IsSubtype(st, tt) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Join computes the least upper bound of two types, used to type a
// conditional's two branches and a branch construct's arms (section
// 4.3). When neither side is a subtype of the other, the join is the
// union of both (flattened and deduplicated by Union's constructor).
func Join(a, b *Type) *Type {
	if a.Equal(b) {
		return a
	}
	if IsSubtype(a, b) {
		return b
	}
	if IsSubtype(b, a) {
		return a
	}
	if a.Kind == KindRecord && b.Kind == KindRecord {
		if fields, ok := recordJoin(a.Fields, b.Fields); ok {
			return Record(fields)
		}
	}
	return Union(a, b)
}

// recordJoin computes the field-wise join of two records when every
// overlapping field is joinable and the result only keeps fields present
// on both sides (the width-subtyping-compatible common shape). It is
// used as a narrower alternative to immediately falling back to a union
// when both branches are records with a compatible common shape.
func recordJoin(a, b map[string]*Type) (map[string]*Type, bool) {
	out := make(map[string]*Type)
	for name, at := range a {
		bt, ok := b[name]
		if !ok {
			continue
		}
		j := Join(at, bt)
		if j.Kind == KindUnion {
			return nil, false
		}
		out[name] = j
	}
	return out, true
}

// Meet computes the greatest lower bound, used by row-variable
// unification when two open records merge their known-field sets.
func Meet(a, b *Type) *Type {
	if a.Equal(b) {
		return a
	}
	if IsSubtype(a, b) {
		return a
	}
	if IsSubtype(b, a) {
		return b
	}
	if a.Kind == KindRecord && b.Kind == KindRecord {
		out := make(map[string]*Type, len(a.Fields)+len(b.Fields))
		for name, at := range a.Fields {
			out[name] = at
		}
		for name, bt := range b.Fields {
			if existing, ok := out[name]; ok {
				out[name] = Meet(existing, bt)
			} else {
				out[name] = bt
			}
		}
		return Record(out)
	}
	return Nothing
}
