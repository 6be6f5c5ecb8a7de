// Package compiler wires the compiler pipeline end to end (section
// 4.3's phase list): parse, type-check, generate IR, optimize, compile
// to a runtime DAG, and content-address the result into a pipeline
// store. It is the single entry point `cmd/constellation` and the
// scheduler's callers use, grounded on the teacher's Engine facade
// (internal/mangle/engine.go): one struct composing every sub-phase and
// accumulating diagnostics rather than panicking on the first one.
package compiler

import (
	"constellation/internal/dag"
	"constellation/internal/errs"
	"constellation/internal/ir"
	"constellation/internal/logging"
	"constellation/internal/parser"
	"constellation/internal/registry"
	"constellation/internal/store"
	"constellation/internal/typecheck"
)

// Result is one successful compilation's artifacts.
type Result struct {
	Name           string
	Spec           *dag.DagSpec
	Image          *store.Image
	StructuralHash string

	// FromCache reports whether CompileCached short-circuited on a
	// syntactic-index hit instead of recompiling (section 4.8).
	FromCache bool
}

// Compile runs every phase over source against reg, stopping at the
// first phase that reports diagnostics (section 7: "best-effort
// recovery ... as many diagnostics as possible" applies within a
// phase, not across phases, since a later phase cannot trust a
// malformed earlier one's output).
func Compile(source, name string, reg registry.Registry) (*Result, errs.List) {
	astFile, perrs := parser.Parse(source)
	if perrs.HasErrors() {
		return nil, perrs
	}

	typed, terrs := typecheck.Analyze(astFile, reg)
	if terrs.HasErrors() {
		return nil, terrs
	}

	prog, ierrs := ir.Generate(typed, reg)
	if ierrs.HasErrors() {
		return nil, ierrs
	}
	prog = ir.Optimize(prog)

	spec, derrs := dag.Compile(prog)
	if derrs.HasErrors() {
		return nil, derrs
	}

	img := store.NewImage(name, spec)
	logging.DagCompile("compiled pipeline %q: %d data nodes, %d module nodes, structural hash %s",
		name, len(spec.Data), len(spec.Modules), img.StructuralHash)

	return &Result{Name: name, Spec: spec, Image: img, StructuralHash: img.StructuralHash}, nil
}

// CompileCached wraps Compile with the syntactic-index short-circuit
// from section 4.8: identical source text against an identically
// fingerprinted registry resolves straight to the previously-compiled
// image without re-running parse/typecheck/ir/dag.
func CompileCached(source, name string, reg *registry.InMemory, st *store.Store) (*Result, errs.List) {
	synHash := store.SyntacticHash(source)
	regHash := store.RegistryHash(reg)

	if structHash, ok := st.LookupSyntactic(synHash, regHash); ok {
		if img, ok := st.Get(structHash); ok {
			logging.DagCompile("syntactic cache hit for %q (hash %s)", name, structHash)
			st.Alias(name, structHash)
			return &Result{Name: name, Spec: img.Spec, Image: img, StructuralHash: structHash, FromCache: true}, nil
		}
	}

	result, cerrs := Compile(source, name, reg)
	if cerrs.HasErrors() {
		return nil, cerrs
	}

	hash := st.Store(result.Image)
	st.Alias(name, hash)
	st.PutSyntacticIndex(synHash, regHash, hash)
	return result, nil
}
