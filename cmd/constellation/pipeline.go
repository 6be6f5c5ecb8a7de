package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"constellation/internal/compiler"
	"constellation/internal/config"
	"constellation/internal/ctype"
	"constellation/internal/dag"
	"constellation/internal/options"
	"constellation/internal/registry"
	"constellation/internal/store"
)

// loadSource reads a .const pipeline file from disk, or stdin when
// path is "-".
func loadSource(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// pipelineName derives a pipeline name from its source file path, for
// store aliasing and log output.
func pipelineName(path string) string {
	if path == "-" {
		return "stdin"
	}
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, ".const")
}

// loadRuntimeConfig loads the runtime config (scheduler/cache/store
// backend selection) from --config, falling back to defaults when the
// file is absent (config.Load's own behavior).
func loadRuntimeConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// openStore opens the pipeline store that cfg's Cache.Backend selects:
// a modernc.org/sqlite-backed syntactic index at cfg.Store.Path when
// Cache.Backend is "sqlite", in-memory otherwise.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Cache.Backend == "sqlite" {
		return store.NewWithSQLiteIndex(cfg.Store.Path)
	}
	return store.New(), nil
}

// nopCloser satisfies io.Closer for the in-memory cache path, so
// callers can always `defer closer.Close()` regardless of which
// backend was selected.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openCacheBackend constructs the module-call result cache
// cfg.Cache selects: a modernc.org/sqlite-backed one
// when Backend is "sqlite", the in-memory default otherwise. The
// returned io.Closer releases the underlying database handle, if any.
func openCacheBackend(cfg *config.Config) (options.CacheBackend, io.Closer, error) {
	if cfg.Cache.Backend == "sqlite" {
		cache, err := options.NewSQLiteCache(cfg.Cache.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite cache: %w", err)
		}
		return cache, cache, nil
	}
	return options.NewMemoryCache(), nopCloser{}, nil
}

// compilePipeline runs the full compiler pipeline against the
// process-wide builtin module registry, short-circuiting through cfg's
// selected store when source and registry are unchanged (section 4.8).
func compilePipeline(path string, cfg *config.Config, st *store.Store) (*compiler.Result, registry.Registry, error) {
	src, err := loadSource(path)
	if err != nil {
		return nil, nil, err
	}
	reg := newBuiltinRegistry()
	result, errsList := compiler.CompileCached(src, pipelineName(path), reg, st)
	if errsList.HasErrors() {
		return nil, reg, errsList
	}
	return result, reg, nil
}

// declaredInputs collects every top-level input a DagSpec expects,
// keyed by name: a DataNodeSpec with a non-empty Name is exactly a
// top-level input (section 3.5), never a module-produced or
// inline-computed node.
func declaredInputs(spec *dag.DagSpec) map[string]*ctype.Type {
	inputs := make(map[string]*ctype.Type)
	for _, d := range spec.Data {
		if d.Name != "" {
			inputs[d.Name] = d.CType
		}
	}
	return inputs
}

// formatValue renders a CValue for terminal output; not the encoding
// used for structural hashing (internal/dag's encodeValue) or for
// module-call cache keys (internal/scheduler's displayString), just a
// human-readable rendering.
func formatValue(v *ctype.Value) string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind() {
	case ctype.KindString:
		return v.Str()
	case ctype.KindInt:
		return fmt.Sprintf("%d", v.Int())
	case ctype.KindFloat:
		return fmt.Sprintf("%g", v.Float())
	case ctype.KindBoolean:
		return fmt.Sprintf("%t", v.Bool())
	case ctype.KindList:
		items := make([]string, len(v.List()))
		for i, item := range v.List() {
			items[i] = formatValue(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case ctype.KindMap:
		parts := make([]string, len(v.Entries()))
		for i, e := range v.Entries() {
			parts[i] = formatValue(e.Key) + ": " + formatValue(e.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ctype.KindProduct:
		names := make([]string, 0, len(v.Fields()))
		for name := range v.Fields() {
			names = append(names, name)
		}
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = name + ": " + formatValue(v.Fields()[name])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ctype.KindUnion:
		return v.Tag() + "(" + formatValue(v.Payload()) + ")"
	case ctype.KindOptional:
		if !v.IsSome() {
			return "None"
		}
		return "Some(" + formatValue(v.Payload()) + ")"
	default:
		return "?"
	}
}
