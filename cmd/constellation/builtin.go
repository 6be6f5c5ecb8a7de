package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"constellation/internal/ctype"
	"constellation/internal/registry"
	"constellation/internal/scheduler"
	"constellation/internal/semtype"
)

// builtinModule pairs the registry.Entry a pipeline's type checker
// resolves a call against with the scheduler.ModuleImpl that actually
// computes it. Constellation modules are external by design (section
// 1 non-goal: no standard library of built-ins); this is the small,
// explicitly native set that makes `constellation run` usable from a
// shell without wiring a real external dispatch target.
type builtinModule struct {
	entry registry.Entry
	impl  scheduler.ModuleImpl
}

func builtinModules() map[string]builtinModule {
	return map[string]builtinModule{
		"uppercase": {
			entry: registry.Entry{
				Params:     []registry.Param{{Name: "text", Type: semtype.String}},
				Returns:    semtype.String,
				ModuleName: "uppercase",
			},
			impl: func(_ context.Context, inputs map[string]*ctype.Value) (*ctype.Value, error) {
				return ctype.NewString(strings.ToUpper(inputs["text"].Str())), nil
			},
		},
		"lowercase": {
			entry: registry.Entry{
				Params:     []registry.Param{{Name: "text", Type: semtype.String}},
				Returns:    semtype.String,
				ModuleName: "lowercase",
			},
			impl: func(_ context.Context, inputs map[string]*ctype.Value) (*ctype.Value, error) {
				return ctype.NewString(strings.ToLower(inputs["text"].Str())), nil
			},
		},
		"length": {
			entry: registry.Entry{
				Params:     []registry.Param{{Name: "text", Type: semtype.String}},
				Returns:    semtype.Int,
				ModuleName: "length",
			},
			impl: func(_ context.Context, inputs map[string]*ctype.Value) (*ctype.Value, error) {
				return ctype.NewInt(int64(len(inputs["text"].Str()))), nil
			},
		},
		"concat": {
			entry: registry.Entry{
				Params: []registry.Param{
					{Name: "a", Type: semtype.String},
					{Name: "b", Type: semtype.String},
				},
				Returns:    semtype.String,
				ModuleName: "concat",
			},
			impl: func(_ context.Context, inputs map[string]*ctype.Value) (*ctype.Value, error) {
				return ctype.NewString(inputs["a"].Str() + inputs["b"].Str()), nil
			},
		},
		"trim": {
			entry: registry.Entry{
				Params:     []registry.Param{{Name: "text", Type: semtype.String}},
				Returns:    semtype.String,
				ModuleName: "trim",
			},
			impl: func(_ context.Context, inputs map[string]*ctype.Value) (*ctype.Value, error) {
				return ctype.NewString(strings.TrimSpace(inputs["text"].Str())), nil
			},
		},
		"sum": {
			entry: registry.Entry{
				Params:     []registry.Param{{Name: "nums", Type: semtype.List(semtype.Int)}},
				Returns:    semtype.Int,
				ModuleName: "sum",
			},
			impl: func(_ context.Context, inputs map[string]*ctype.Value) (*ctype.Value, error) {
				var total int64
				for _, v := range inputs["nums"].List() {
					total += v.Int()
				}
				return ctype.NewInt(total), nil
			},
		},
	}
}

// newBuiltinRegistry registers every builtin module's signature; newBuiltinImpls
// maps the same names to their scheduler-facing implementations. Kept
// separate because typecheck only ever needs the former and the
// scheduler only ever needs the latter.
func newBuiltinRegistry() *registry.InMemory {
	reg := registry.NewInMemory()
	for name, m := range builtinModules() {
		reg.Register(name, m.entry)
	}
	return reg
}

func newBuiltinImpls() map[string]scheduler.ModuleImpl {
	impls := map[string]scheduler.ModuleImpl{}
	for name, m := range builtinModules() {
		impls[name] = m.impl
	}
	return impls
}

func describeBuiltins() string {
	var b strings.Builder
	mods := builtinModules()
	names := make([]string, 0, len(mods))
	for name := range mods {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := mods[name]
		params := make([]string, len(m.entry.Params))
		for i, p := range m.entry.Params {
			params[i] = fmt.Sprintf("%s: %s", p.Name, p.Type)
		}
		fmt.Fprintf(&b, "  %s(%s) -> %s\n", name, strings.Join(params, ", "), m.entry.Returns)
	}
	return b.String()
}
