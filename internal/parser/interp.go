package parser

import (
	"fmt"
	"strings"
)

// splitInterp splits a lexed string literal's raw content into literal
// parts and embedded expression source fragments, honoring the
// StringInterpolation IR node's invariant (section 3.4):
// len(parts) == len(exprs)+1, parts and exprs interleaved.
//
// When the literal has no "${" markers, isPlain is true and parts has
// exactly one (fully unescaped) element.
func splitInterp(raw string) (parts []string, exprs []string, isPlain bool, err error) {
	var cur strings.Builder
	i := 0
	n := len(raw)
	for i < n {
		c := raw[i]
		if c == '\\' && i+1 < n {
			cur.WriteByte(unescape(raw[i+1]))
			i += 2
			continue
		}
		if c == '$' && i+1 < n && raw[i+1] == '{' {
			parts = append(parts, cur.String())
			cur.Reset()
			depth := 1
			j := i + 2
			for j < n && depth > 0 {
				if raw[j] == '{' {
					depth++
				} else if raw[j] == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
				j++
			}
			if depth != 0 {
				return nil, nil, false, fmt.Errorf("E001: unterminated interpolation expression")
			}
			exprs = append(exprs, raw[i+2:j])
			i = j + 1
			continue
		}
		cur.WriteByte(c)
		i++
	}
	parts = append(parts, cur.String())
	return parts, exprs, len(exprs) == 0, nil
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '"':
		return '"'
	case '\\':
		return '\\'
	default:
		return c
	}
}
