// Package store implements the content-addressed pipeline store
// (section 3.6/4.8): compiled images keyed by structural hash, a
// human-name alias table, and a syntactic index that lets a caching
// compiler short-circuit parsing/typechecking/compilation entirely on
// a cache hit.
package store

import (
	"constellation/internal/dag"
)

// Image is a compiled pipeline: the DagSpec plus the metadata needed to
// rehydrate a LoadedPipeline (section 3.6). StructuralHash is computed
// once at construction time via dag.StructuralHash and cached on the
// struct since it never changes for an immutable Spec.
type Image struct {
	Spec           *dag.DagSpec
	Name           string
	StructuralHash string
}

// NewImage builds an Image from a compiled DagSpec, computing its
// structural hash.
func NewImage(name string, spec *dag.DagSpec) *Image {
	return &Image{
		Spec:           spec,
		Name:           name,
		StructuralHash: dag.StructuralHash(spec),
	}
}
