package scheduler

import (
	"fmt"
	"strconv"

	"constellation/internal/ctype"
)

// mergeValues implements the right-biased field-map union merge
// operator (section 4.3 item 3) plus the list-record broadcast bias
// supplemented in SPEC_FULL.md section C.3: merging a list with a
// record broadcasts the record element-wise, right-biased on field
// conflicts.
func mergeValues(left, right *ctype.Value) *ctype.Value {
	switch {
	case left.Kind() == ctype.KindProduct && right.Kind() == ctype.KindProduct:
		return mergeProducts(left, right)
	case left.Kind() == ctype.KindList && right.Kind() == ctype.KindProduct:
		items := make([]*ctype.Value, len(left.List()))
		for i, elem := range left.List() {
			items[i] = mergeProducts(elem, right)
		}
		return ctype.NewList(left.Type().Elem, items)
	case left.Kind() == ctype.KindProduct && right.Kind() == ctype.KindList:
		items := make([]*ctype.Value, len(right.List()))
		for i, elem := range right.List() {
			items[i] = mergeProducts(left, elem)
		}
		return ctype.NewList(right.Type().Elem, items)
	default:
		if sum, err := arithValues("+", left, right); err == nil {
			return sum
		}
		return right
	}
}

func mergeProducts(a, b *ctype.Value) *ctype.Value {
	fields := make(map[string]*ctype.Value, len(a.Fields())+len(b.Fields()))
	for k, v := range a.Fields() {
		fields[k] = v
	}
	for k, v := range b.Fields() {
		fields[k] = v
	}
	return ctype.NewProduct(fields)
}

func numericFloat(v *ctype.Value) (float64, bool) {
	switch v.Kind() {
	case ctype.KindInt:
		return float64(v.Int()), true
	case ctype.KindFloat:
		return v.Float(), true
	default:
		return 0, false
	}
}

func compareValues(op string, left, right *ctype.Value) (*ctype.Value, error) {
	if lf, ok := numericFloat(left); ok {
		if rf, ok2 := numericFloat(right); ok2 {
			return ctype.NewBoolean(compareFloat(op, lf, rf)), nil
		}
	}
	if left.Kind() == ctype.KindString && right.Kind() == ctype.KindString {
		return compareString(op, left.Str(), right.Str())
	}
	if left.Kind() == ctype.KindBoolean && right.Kind() == ctype.KindBoolean {
		switch op {
		case "==":
			return ctype.NewBoolean(left.Bool() == right.Bool()), nil
		case "!=":
			return ctype.NewBoolean(left.Bool() != right.Bool()), nil
		}
	}
	return nil, fmt.Errorf("unsupported comparison %q between %s and %s", op, left.Kind(), right.Kind())
}

func compareFloat(op string, l, r float64) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	default:
		return false
	}
}

func compareString(op, l, r string) (*ctype.Value, error) {
	switch op {
	case "==":
		return ctype.NewBoolean(l == r), nil
	case "!=":
		return ctype.NewBoolean(l != r), nil
	case "<":
		return ctype.NewBoolean(l < r), nil
	case "<=":
		return ctype.NewBoolean(l <= r), nil
	case ">":
		return ctype.NewBoolean(l > r), nil
	case ">=":
		return ctype.NewBoolean(l >= r), nil
	default:
		return nil, fmt.Errorf("unsupported string comparison operator %q", op)
	}
}

func arithValues(op string, left, right *ctype.Value) (*ctype.Value, error) {
	if op == "+" && left.Kind() == ctype.KindString && right.Kind() == ctype.KindString {
		return ctype.NewString(left.Str() + right.Str()), nil
	}
	if left.Kind() == ctype.KindInt && right.Kind() == ctype.KindInt {
		l, r := left.Int(), right.Int()
		switch op {
		case "+":
			return ctype.NewInt(l + r), nil
		case "-":
			return ctype.NewInt(l - r), nil
		case "*":
			return ctype.NewInt(l * r), nil
		case "/":
			if r == 0 {
				return nil, fmt.Errorf("integer division by zero")
			}
			return ctype.NewInt(l / r), nil
		case "%":
			if r == 0 {
				return nil, fmt.Errorf("integer modulo by zero")
			}
			return ctype.NewInt(l % r), nil
		default:
			return nil, fmt.Errorf("unsupported arithmetic operator %q", op)
		}
	}
	lf, lok := numericFloat(left)
	rf, rok := numericFloat(right)
	if lok && rok {
		switch op {
		case "+":
			return ctype.NewFloat(lf + rf), nil
		case "-":
			return ctype.NewFloat(lf - rf), nil
		case "*":
			return ctype.NewFloat(lf * rf), nil
		case "/":
			return ctype.NewFloat(lf / rf), nil
		default:
			return nil, fmt.Errorf("unsupported arithmetic operator %q", op)
		}
	}
	return nil, fmt.Errorf("unsupported arithmetic %q between %s and %s", op, left.Kind(), right.Kind())
}

func negateValue(operand *ctype.Value) (*ctype.Value, error) {
	switch operand.Kind() {
	case ctype.KindInt:
		return ctype.NewInt(-operand.Int()), nil
	case ctype.KindFloat:
		return ctype.NewFloat(-operand.Float()), nil
	default:
		return nil, fmt.Errorf("cannot negate value of kind %s", operand.Kind())
	}
}

func guardValue(expr, cond *ctype.Value, outputType *ctype.Type) *ctype.Value {
	if cond.Bool() {
		return ctype.NewSome(expr)
	}
	var elem *ctype.Type
	if outputType != nil {
		elem = outputType.Elem
	}
	return ctype.NewNone(elem)
}

func coalesceValue(left, right *ctype.Value) *ctype.Value {
	if left.Kind() == ctype.KindOptional {
		if left.IsSome() {
			return left.Payload()
		}
		return right
	}
	return left
}

func displayString(v *ctype.Value) string {
	switch v.Kind() {
	case ctype.KindString:
		return v.Str()
	case ctype.KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case ctype.KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case ctype.KindBoolean:
		return strconv.FormatBool(v.Bool())
	default:
		return v.Type().String()
	}
}
