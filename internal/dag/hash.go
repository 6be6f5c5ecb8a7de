package dag

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"constellation/internal/ctype"
	"constellation/internal/ir"
)

// StructuralHash computes the deterministic SHA-256 over a DagSpec's
// canonical encoding (section 6.3): nodes in topological (emission)
// order, UUIDs replaced by their emission-order index, record field
// orderings and option fields in a fixed order, numeric literals
// normalized by their declared CType.
func StructuralHash(spec *DagSpec) string {
	dataIndex := make(map[DataUUID]int, len(spec.DataOrder))
	for i, d := range spec.DataOrder {
		dataIndex[d] = i
	}
	moduleIndex := make(map[ModuleUUID]int, len(spec.ModuleOrder))
	for i, m := range spec.ModuleOrder {
		moduleIndex[m] = i
	}

	var b strings.Builder

	for i, d := range spec.DataOrder {
		n := spec.Data[d]
		fmt.Fprintf(&b, "data#%d name=%s ctype=%s\n", i, n.Name, n.CType.String())
		if n.InlineTransform != nil {
			encodeInlineTransform(&b, n.InlineTransform, n.TransformInputs, dataIndex)
		}
		encodeNicknames(&b, n.Nicknames, moduleIndex)
	}

	for i, m := range spec.ModuleOrder {
		n := spec.Modules[m]
		fmt.Fprintf(&b, "module#%d name=%s ns=%s lang=%s synthetic=%v\n",
			i, n.Metadata.Name, n.Metadata.Namespace, n.Metadata.Language, n.Synthetic)
		encodeTypedParams(&b, "consumes", n.Consumes)
		encodeTypedParams(&b, "produces", n.Produces)
		if n.Branch != nil {
			fmt.Fprintf(&b, "  branch otherwise=%d\n", dataIndex[n.Branch.OtherwiseData])
			for j := range n.Branch.CondData {
				fmt.Fprintf(&b, "  branch.case%d cond=%d expr=%d\n", j, dataIndex[n.Branch.CondData[j]], dataIndex[n.Branch.ExprData[j]])
			}
		}
		if opts, ok := spec.ModuleOptions[m]; ok {
			encodeOptions(&b, &opts)
		}
		if fb, ok := spec.ModuleFallbacks[m]; ok {
			fmt.Fprintf(&b, "  fallback=%d\n", dataIndex[fb])
		}
	}

	encodeEdges(&b, "in", spec.InEdges, dataIndex, moduleIndex)
	encodeEdges(&b, "out", spec.OutEdges, dataIndex, moduleIndex)

	fmt.Fprintf(&b, "outputs=%s\n", strings.Join(spec.DeclaredOutputs, ","))
	names := make([]string, 0, len(spec.OutputBindings))
	for name := range spec.OutputBindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "outputBinding %s=%d\n", name, dataIndex[spec.OutputBindings[name]])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func encodeNicknames(b *strings.Builder, nicknames map[ModuleUUID]string, moduleIndex map[ModuleUUID]int) {
	type pair struct {
		idx   int
		param string
	}
	pairs := make([]pair, 0, len(nicknames))
	for m, p := range nicknames {
		pairs = append(pairs, pair{moduleIndex[m], p})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].idx < pairs[j].idx })
	for _, p := range pairs {
		fmt.Fprintf(b, "  nickname module#%d=%s\n", p.idx, p.param)
	}
}

func encodeTypedParams(b *strings.Builder, label string, params map[string]*ctype.Type) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "  %s %s=%s\n", label, name, params[name].String())
	}
}

func encodeInlineTransform(b *strings.Builder, t *InlineTransform, inputs map[string]DataUUID, dataIndex map[DataUUID]int) {
	fmt.Fprintf(b, "  inline kind=%d op=%s field=%s tag=%s fields=%s parts=%s order=%s\n",
		t.Kind, t.Op, t.Field, t.Tag, strings.Join(t.Fields, ","), strings.Join(t.Parts, ","), strings.Join(t.RecordOrder, ","))
	if t.Value != nil {
		fmt.Fprintf(b, "  literal=%s\n", encodeValue(t.Value))
	}
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "  input %s=%d\n", name, dataIndex[inputs[name]])
	}
}

func encodeEdges(b *strings.Builder, label string, edges []DataModuleEdge, dataIndex map[DataUUID]int, moduleIndex map[ModuleUUID]int) {
	type pair struct{ d, m int }
	pairs := make([]pair, len(edges))
	for i, e := range edges {
		pairs[i] = pair{dataIndex[e.Data], moduleIndex[e.Module]}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].d != pairs[j].d {
			return pairs[i].d < pairs[j].d
		}
		return pairs[i].m < pairs[j].m
	})
	for _, p := range pairs {
		fmt.Fprintf(b, "%sEdge data#%d-module#%d\n", label, p.d, p.m)
	}
}

// encodeOptions serializes IRModuleCallOptions in a fixed field order
// (section 6.3: "options serialized in a fixed field order"). Fallback
// is deliberately excluded here: it is encoded separately via
// DagSpec.ModuleFallbacks, translated into the data-index space.
func encodeOptions(b *strings.Builder, o *ir.IRModuleCallOptions) {
	fmt.Fprintf(b, "  options retry=%v:%d timeout=%v:%d delay=%v:%d backoff=%s cache=%v:%d:%s throttle=%v:%d:%d concurrency=%v:%d onError=%s lazy=%v priority=%v:%d batch=%s window=%s join=%s checkpoint=%s\n",
		o.HasRetry, o.Retry,
		o.HasTimeout, o.TimeoutMs,
		o.HasDelay, o.DelayMs,
		o.Backoff,
		o.HasCache, o.CacheTTLMs, o.CacheBackend,
		o.HasThrottle, o.ThrottleCount, o.ThrottleWindowMs,
		o.HasConcurrency, o.Concurrency,
		o.OnError,
		o.Lazy,
		o.HasPriority, o.Priority,
		o.Batch, o.Window, o.Join, o.Checkpoint,
	)
}

// encodeValue canonicalizes a literal CValue, normalizing numeric kind
// (an Int and a Float carrying the same magnitude hash differently,
// since their CType already differs and is encoded alongside).
func encodeValue(v *ctype.Value) string {
	switch v.Kind() {
	case ctype.KindString:
		return "s:" + v.Str()
	case ctype.KindInt:
		return fmt.Sprintf("i:%d", v.Int())
	case ctype.KindFloat:
		return fmt.Sprintf("f:%g", v.Float())
	case ctype.KindBoolean:
		return fmt.Sprintf("b:%v", v.Bool())
	case ctype.KindList:
		parts := make([]string, len(v.List()))
		for i, item := range v.List() {
			parts[i] = encodeValue(item)
		}
		return "l:[" + strings.Join(parts, ",") + "]"
	case ctype.KindProduct:
		names := make([]string, 0, len(v.Fields()))
		for name := range v.Fields() {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			fv, _ := v.Field(name)
			parts[i] = name + "=" + encodeValue(fv)
		}
		return "p:{" + strings.Join(parts, ",") + "}"
	case ctype.KindUnion:
		return "u:" + v.Tag() + "(" + encodeValue(v.Payload()) + ")"
	case ctype.KindOptional:
		if !v.IsSome() {
			return "o:none"
		}
		return "o:some(" + encodeValue(v.Payload()) + ")"
	default:
		parts := make([]string, len(v.Entries()))
		for i, e := range v.Entries() {
			parts[i] = encodeValue(e.Key) + "=" + encodeValue(e.Value)
		}
		sort.Strings(parts)
		return "m:{" + strings.Join(parts, ",") + "}"
	}
}
