// Package dag implements the runtime DAG spec (section 3.5), the DAG
// compiler that lowers an IRProgram into one (section 4.6), and the
// structural hash used to content-address a compiled PipelineImage
// (section 3.6, section 6.3).
package dag

import (
	"constellation/internal/ctype"
	"constellation/internal/ir"
)

// DataUUID and ModuleUUID are opaque node identifiers (google/uuid
// strings at construction time); the structural hash replaces them
// with stable emission-order indices so two compiles of the same
// program hash identically regardless of the actual UUIDs minted.
type DataUUID string
type ModuleUUID string

// InlineKind tags the shape of a DataNodeSpec's InlineTransform,
// mirroring ir.NodeKind's structural-op subset (section 3.5: "merge,
// project, field-access, conditional, literal, boolean op, guard,
// coalesce, string-interpolation, map, filter, all, any, plus
// closure-capturing variants").
type InlineKind int

const (
	InlineLiteral InlineKind = iota
	InlineMerge
	InlineProject
	InlineFieldAccess
	InlineConditional
	InlineAnd
	InlineOr
	InlineNot
	InlineGuard
	InlineCoalesce
	InlineStringInterp
	InlineCompare
	InlineArith
	InlineNegate
	InlineTagTest
	InlineUnpackTag
	InlineListLit
	InlineRecordLit
	InlineHigherOrder
)

// InlineTransform is a lightweight pure operation a data node computes
// from its TransformInputs once they are all ready (section 3.5).
type InlineTransform struct {
	Kind InlineKind

	Value *ctype.Value // Literal

	Field  string   // FieldAccess
	Fields []string // Project

	Op string // Compare, Arith, HigherOrder ("filter"|"map"|"all"|"any"|"sortBy")

	Tag string // TagTest, UnpackTag

	Parts []string // StringInterp literal segments, between the ${...} slots

	RecordOrder []string // RecordLit field declaration order

	// HigherOrder carries the compiled lambda body verbatim: the
	// scheduler evaluates it per-element against a fresh scope seeded
	// from TransformInputs["source"] elements and the captured inputs
	// (section 4.4, section 4.6).
	Lambda *ir.TypedLambda
}

// DataNodeSpec is one data node: externally supplied (top-level
// input), module-produced, or inline-computed (section 3.5).
type DataNodeSpec struct {
	UUID DataUUID
	Name string // non-empty only for top-level inputs

	// Nicknames records, for every module that consumes this data node,
	// the parameter name it is bound under.
	Nicknames map[ModuleUUID]string

	CType *ctype.Type

	// InlineTransform is nil for externally-supplied or module-produced
	// data nodes.
	InlineTransform *InlineTransform
	TransformInputs map[string]DataUUID
}

// ModuleMetadata names the runtime module a ModuleNodeSpec dispatches
// to.
type ModuleMetadata struct {
	Name      string
	Namespace string
	Language  string
}

// BranchSpec is the synthetic-module payload for a lowered Branch node
// (section 3.5): ordered condition/expression data, evaluated in
// sequence with first-true short-circuit, falling through to
// Otherwise.
type BranchSpec struct {
	CondData      []DataUUID
	ExprData      []DataUUID
	OtherwiseData DataUUID
}

// ModuleNodeSpec is a module node: either a user module call or a
// synthetic module for a construct (currently only Branch) that
// cannot be expressed as a single pure inline transform.
type ModuleNodeSpec struct {
	UUID     ModuleUUID
	Metadata ModuleMetadata
	Consumes map[string]*ctype.Type
	Produces map[string]*ctype.Type

	Synthetic bool
	Branch    *BranchSpec // set only when Synthetic and this is a Branch
}

// DataModuleEdge is one (data, module) pair; used for both inEdges
// (data feeds module) and outEdges (module produces data).
type DataModuleEdge struct {
	Data   DataUUID
	Module ModuleUUID
}

// DagSpec is the full runtime DAG (section 3.5): produced by the DAG
// compiler, consumed by the scheduler.
type DagSpec struct {
	Data    map[DataUUID]*DataNodeSpec
	Modules map[ModuleUUID]*ModuleNodeSpec

	InEdges  []DataModuleEdge
	OutEdges []DataModuleEdge

	DeclaredOutputs []string
	OutputBindings  map[string]DataUUID

	ModuleOptions map[ModuleUUID]ir.IRModuleCallOptions

	// ModuleFallbacks resolves IRModuleCallOptions.Fallback (an IR-level
	// NodeID, meaningless outside the IRProgram it came from) into the
	// DataUUID the options executor actually reads from at compose time
	// (section 4.7 item 8). Only set for modules with HasFallback.
	ModuleFallbacks map[ModuleUUID]DataUUID

	// DataOrder and ModuleOrder record creation order (which follows the
	// source IRProgram's topological order): the canonical basis for
	// structural hashing's "UUIDs replaced with stable indexing" rule
	// (section 6.3).
	DataOrder   []DataUUID
	ModuleOrder []ModuleUUID
}

func newDagSpec() *DagSpec {
	return &DagSpec{
		Data:            map[DataUUID]*DataNodeSpec{},
		Modules:         map[ModuleUUID]*ModuleNodeSpec{},
		OutputBindings:  map[string]DataUUID{},
		ModuleOptions:   map[ModuleUUID]ir.IRModuleCallOptions{},
		ModuleFallbacks: map[ModuleUUID]DataUUID{},
	}
}
