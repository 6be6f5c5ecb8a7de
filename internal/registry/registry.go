// Package registry defines the FunctionRegistry external collaborator
// (section 4.3): an enumeration of the modules available to the type
// checker and, later, the DAG compiler. The standard library of
// built-in modules is out of scope (section 1); this package only
// specifies and implements the lookup contract.
package registry

import (
	"fmt"

	"constellation/internal/semtype"
)

// Param is one named, typed parameter of a registered module.
type Param struct {
	Name string
	Type *semtype.Type
}

// Entry describes one callable module: its parameter list, return type,
// the concrete module name to dispatch at runtime, and an optional
// namespace it was imported under.
type Entry struct {
	Params     []Param
	Returns    *semtype.Type
	ModuleName string
	Namespace  string
	// Language names the runtime dispatch target for cross-language
	// modules (e.g. "python", "js"); empty means a native Go module.
	Language string
}

// Registry is the FunctionRegistry contract: a name -> Entry lookup,
// with namespace-qualified resolution for "use ns.fn as alias"
// declarations.
type Registry interface {
	Lookup(qualName string) (Entry, bool)
	// Resolve applies a set of import aliases (from "use" declarations)
	// on top of the base lookup; it is how the analyzer turns a bare
	// name used after `use math.add as add` into the qualified entry.
	Resolve(name string, aliases map[string]string) (Entry, bool)
}

// InMemory is the default Registry implementation, grounded on the
// teacher's predicateIndex map[string]ast.PredicateSym lookup table
// shape (internal/mangle/engine.go).
type InMemory struct {
	entries map[string]Entry
}

func NewInMemory() *InMemory { return &InMemory{entries: map[string]Entry{}} }

func (r *InMemory) Register(qualName string, e Entry) { r.entries[qualName] = e }

func (r *InMemory) Lookup(qualName string) (Entry, bool) {
	e, ok := r.entries[qualName]
	return e, ok
}

// Entries exposes every registered entry keyed by its qualified name,
// for callers that need to fingerprint the whole registry (the pipeline
// store's RegistryHash, section 4.8).
func (r *InMemory) Entries() map[string]Entry {
	return r.entries
}

func (r *InMemory) Resolve(name string, aliases map[string]string) (Entry, bool) {
	if target, ok := aliases[name]; ok {
		return r.Lookup(target)
	}
	return r.Lookup(name)
}

// AmbiguousFunctionError reports two or more imports that would shadow
// the same local name (section 4.3 item 1).
type AmbiguousFunctionError struct {
	Name       string
	Candidates []string
}

func (e *AmbiguousFunctionError) Error() string {
	return fmt.Sprintf("ambiguous function %q: candidates %v", e.Name, e.Candidates)
}
