package scheduler

import (
	"fmt"

	"constellation/internal/ctype"
	"constellation/internal/dag"
)

// evalInline computes an InlineTransform data node's value (section
// 3.5) once every entry of inputs — keyed exactly as the DAG compiler
// keyed TransformInputs (internal/dag/compile.go) — is ready.
func evalInline(t *dag.InlineTransform, inputs map[string]*ctype.Value, outputType *ctype.Type) (*ctype.Value, error) {
	switch t.Kind {
	case dag.InlineLiteral:
		return t.Value, nil

	case dag.InlineMerge:
		return mergeValues(inputs["left"], inputs["right"]), nil

	case dag.InlineCoalesce:
		return coalesceValue(inputs["left"], inputs["right"]), nil

	case dag.InlineAnd:
		return ctype.NewBoolean(inputs["left"].Bool() && inputs["right"].Bool()), nil

	case dag.InlineOr:
		return ctype.NewBoolean(inputs["left"].Bool() || inputs["right"].Bool()), nil

	case dag.InlineNot:
		return ctype.NewBoolean(!inputs["operand"].Bool()), nil

	case dag.InlineCompare:
		return compareValues(t.Op, inputs["left"], inputs["right"])

	case dag.InlineArith:
		return arithValues(t.Op, inputs["left"], inputs["right"])

	case dag.InlineNegate:
		return negateValue(inputs["operand"])

	case dag.InlineProject:
		source := inputs["source"]
		fields := make(map[string]*ctype.Value, len(t.Fields))
		for _, f := range t.Fields {
			if fv, ok := source.Field(f); ok {
				fields[f] = fv
			}
		}
		return ctype.NewProduct(fields), nil

	case dag.InlineFieldAccess:
		source := inputs["source"]
		fv, _ := source.Field(t.Field)
		return fv, nil

	case dag.InlineConditional:
		if inputs["cond"].Bool() {
			return inputs["then"], nil
		}
		return inputs["else"], nil

	case dag.InlineGuard:
		return guardValue(inputs["expr"], inputs["cond"], outputType), nil

	case dag.InlineTagTest:
		return ctype.NewBoolean(inputs["subject"].Tag() == t.Tag), nil

	case dag.InlineUnpackTag:
		return inputs["subject"].Payload(), nil

	case dag.InlineStringInterp:
		var out string
		for i, part := range t.Parts {
			out += part
			if v, ok := inputs[fmt.Sprintf("part%d", i)]; ok {
				out += displayString(v)
			}
		}
		return ctype.NewString(out), nil

	case dag.InlineListLit:
		n := 0
		for {
			if _, ok := inputs[fmt.Sprintf("item%d", n)]; !ok {
				break
			}
			n++
		}
		items := make([]*ctype.Value, n)
		for i := 0; i < n; i++ {
			items[i] = inputs[fmt.Sprintf("item%d", i)]
		}
		var elem *ctype.Type
		if outputType != nil {
			elem = outputType.Elem
		}
		return ctype.NewList(elem, items), nil

	case dag.InlineRecordLit:
		fields := make(map[string]*ctype.Value, len(t.RecordOrder))
		for _, name := range t.RecordOrder {
			fields[name] = inputs["field:"+name]
		}
		return ctype.NewProduct(fields), nil

	case dag.InlineHigherOrder:
		source := inputs["source"]
		captured := make(map[string]*ctype.Value)
		for key, v := range inputs {
			if name, ok := stripCapturedPrefix(key); ok {
				captured[name] = v
			}
		}
		return evalHigherOrder(t.Op, t.Lambda, source, captured)

	default:
		return nil, fmt.Errorf("unsupported inline transform kind %d", t.Kind)
	}
}

func stripCapturedPrefix(key string) (string, bool) {
	const prefix = "captured:"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):], true
	}
	return "", false
}
