package main

import (
	"fmt"
	"strconv"
	"strings"

	"constellation/internal/ctype"
)

// parseSetFlags turns a list of "name=value" strings (the --set flag,
// repeatable) into top-level input values, typed against the DagSpec's
// declared inputs (section 3.5: a DataNodeSpec with a non-empty Name is
// a top-level input). Values are parsed according to the declared
// CType rather than sniffed, so "0" supplied against a String input
// stays the string "0".
func parseSetFlags(sets []string, declared map[string]*ctype.Type) (map[string]*ctype.Value, error) {
	out := make(map[string]*ctype.Value, len(sets))
	for _, set := range sets {
		name, raw, ok := strings.Cut(set, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q: expected name=value", set)
		}
		typ, ok := declared[name]
		if !ok {
			return nil, fmt.Errorf("--set %q: %q is not a declared input", set, name)
		}
		v, err := parseScalar(typ, raw)
		if err != nil {
			return nil, fmt.Errorf("--set %q: %w", set, err)
		}
		out[name] = v
	}
	return out, nil
}

// parseScalar handles the primitive and list-of-primitive shapes a
// shell flag can realistically carry; records, maps, unions, and
// optionals have no flat text form and must be supplied some other way
// (not yet needed by any builtin-module demo pipeline).
func parseScalar(typ *ctype.Type, raw string) (*ctype.Value, error) {
	switch typ.Kind {
	case ctype.KindString:
		return ctype.NewString(raw), nil
	case ctype.KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected Int: %w", err)
		}
		return ctype.NewInt(n), nil
	case ctype.KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected Float: %w", err)
		}
		return ctype.NewFloat(f), nil
	case ctype.KindBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected Boolean: %w", err)
		}
		return ctype.NewBoolean(b), nil
	case ctype.KindList:
		var items []*ctype.Value
		if raw != "" {
			for _, part := range strings.Split(raw, ",") {
				item, err := parseScalar(typ.Elem, strings.TrimSpace(part))
				if err != nil {
					return nil, err
				}
				items = append(items, item)
			}
		}
		return ctype.NewList(typ.Elem, items), nil
	default:
		return nil, fmt.Errorf("type %s has no flat --set form, supply it via a module input instead", typ)
	}
}
