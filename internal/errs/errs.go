// Package errs implements the structured error taxonomy surfaced to
// callers per section 6.4 and section 7 of the specification: a code
// (E001..E031, E900), a category, a short title, an explanation, and an
// optional source location.
package errs

import "fmt"

type Category string

const (
	CategoryParse    Category = "Syntax"
	CategoryType     Category = "Type"
	CategoryRef      Category = "Reference"
	CategorySemantic Category = "Semantic"
	CategoryInternal Category = "Internal"
	CategoryRuntime  Category = "Runtime"
)

type Code string

const (
	// Parse / reference errors.
	EParseError       Code = "E001"
	EUnexpectedToken  Code = "E002"
	EUndefinedVar     Code = "E003"
	EUndefinedFunc    Code = "E004"
	EUndefinedType    Code = "E005"
	EUndefinedNS      Code = "E006"
	EAmbiguousFunc    Code = "E007"
	EInvalidProject   Code = "E008"
	EInvalidField     Code = "E009"

	// Type errors.
	ETypeMismatch       Code = "E010"
	EIncompatibleOp     Code = "E011"
	EIncompatibleMerge  Code = "E012"
	EUnsupportedCompare Code = "E013"
	EUnsupportedArith   Code = "E014"
	EInvalidOptionValue Code = "E015"
	EFallbackMismatch   Code = "E016"
	ENonExhaustiveMatch Code = "E017"
	EPatternMismatch    Code = "E018"
	EInvalidPattern     Code = "E019"

	// Semantic errors.
	EDuplicateDefinition Code = "E020"
	ECircularDependency  Code = "E021"

	// Runtime errors.
	EModuleFailure  Code = "E022"
	ETimeout        Code = "E023"
	ECancelled      Code = "E024"
	EMissingInput   Code = "E025"
	EOutputMismatch Code = "E026"

	// Streaming option validation (section C.1 of SPEC_FULL.md).
	EStreamingOptionConflict Code = "E027"

	EUnsupportedOperation Code = "E031"

	EInternal Code = "E900"
)

// SourcePos mirrors ast.Position without importing internal/ast, so
// errs stays a leaf package every phase can depend on.
type SourcePos struct {
	Line   int
	Column int
}

// Diagnostic is one structured, user-facing error. Compiler phases
// accumulate a []*Diagnostic rather than stopping at the first problem
// (section 4.3, section 7: "best-effort recovery ... as many diagnostics
// as possible").
type Diagnostic struct {
	Code     Code
	Category Category
	Title    string
	Detail   string
	Location *SourcePos
	Cause    error
}

func (d *Diagnostic) Error() string {
	if d.Location != nil {
		return fmt.Sprintf("%s [%s] %s:%d:%d: %s", d.Code, d.Category, d.Title, d.Location.Line, d.Location.Column, d.Detail)
	}
	return fmt.Sprintf("%s [%s] %s: %s", d.Code, d.Category, d.Title, d.Detail)
}

func (d *Diagnostic) Unwrap() error { return d.Cause }

func New(code Code, category Category, title, detail string, pos *SourcePos) *Diagnostic {
	return &Diagnostic{Code: code, Category: category, Title: title, Detail: detail, Location: pos}
}

func Internal(detail string) *Diagnostic {
	return &Diagnostic{Code: EInternal, Category: CategoryInternal, Title: "internal compiler error", Detail: detail}
}

// List is a non-empty collection of diagnostics returned by a compiler
// phase; satisfies error so callers can `return nil, list` uniformly.
type List []*Diagnostic

func (l List) Error() string {
	if len(l) == 0 {
		return "no errors"
	}
	s := l[0].Error()
	if len(l) > 1 {
		s += fmt.Sprintf(" (+%d more)", len(l)-1)
	}
	return s
}

func (l List) HasErrors() bool { return len(l) > 0 }

// Sentinel runtime errors (section A.3): scheduler and options-executor
// code returns these (often wrapped with %w) so errors.Is can classify
// a failure without string matching.
var (
	ErrSuspended = New(EMissingInput, CategoryRuntime, "run suspended", "one or more top-level inputs are missing", nil)
	ErrTimeout   = New(ETimeout, CategoryRuntime, "module call timed out", "the call exceeded its configured timeout", nil)
	ErrCancelled = New(ECancelled, CategoryRuntime, "run cancelled", "the run's context was cancelled", nil)
)
