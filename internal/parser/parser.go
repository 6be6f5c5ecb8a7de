// Package parser implements the Constellation recursive-descent
// lexer/parser (section 4.2): source text to AST, with source-located
// diagnostics. The parser never type-checks; it only validates shape.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"constellation/internal/ast"
	"constellation/internal/errs"
)

type Parser struct {
	toks []Token
	pos  int
	errs errs.List
}

// Parse tokenizes and parses a full source file, returning as many
// declarations as it could recover plus any diagnostics gathered along
// the way (section 4.2, section 7: parse errors are recoverable enough
// to emit multiple diagnostics per file where feasible).
func Parse(src string) (*ast.Program, errs.List) {
	toks, lexErr := Lex(src)
	if lexErr != nil {
		return nil, errs.List{errs.New(errs.EParseError, errs.CategoryParse, "lex error", lexErr.Error(), nil)}
	}
	p := &Parser{toks: toks}
	prog := p.parseProgram()
	return prog, p.errs
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) peek(n int) Token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return p.toks[len(p.toks)-1]
}
func (p *Parser) advance() Token { t := p.toks[p.pos]; if p.pos < len(p.toks)-1 { p.pos++ }; return t }

func (p *Parser) pos2() ast.Position { return ast.Position{Line: p.cur().Line, Column: p.cur().Column} }

func (p *Parser) errorf(format string, args ...any) {
	tok := p.cur()
	loc := &errs.SourcePos{Line: tok.Line, Column: tok.Column}
	p.errs = append(p.errs, errs.New(errs.EUnexpectedToken, errs.CategoryParse, "parse error", fmt.Sprintf(format, args...), loc))
}

func (p *Parser) expectPunct(text string) (Token, bool) {
	if p.cur().Kind == TokPunct && p.cur().Text == text {
		return p.advance(), true
	}
	p.errorf("expected %q, found %q", text, p.cur().Text)
	return p.cur(), false
}

func (p *Parser) expectKeyword(text string) (Token, bool) {
	if p.cur().Kind == TokKeyword && p.cur().Text == text {
		return p.advance(), true
	}
	p.errorf("expected keyword %q, found %q", text, p.cur().Text)
	return p.cur(), false
}

func (p *Parser) expectIdent() (string, ast.Position, bool) {
	if p.cur().Kind == TokIdent {
		t := p.advance()
		return t.Text, ast.Position{Line: t.Line, Column: t.Column}, true
	}
	p.errorf("expected identifier, found %q", p.cur().Text)
	return "", p.pos2(), false
}

// synchronize skips tokens until the start of a likely declaration, so
// one malformed declaration doesn't prevent the rest of the file from
// being parsed and diagnosed.
func (p *Parser) synchronize() {
	for p.cur().Kind != TokEOF {
		if p.cur().Kind == TokKeyword && (p.cur().Text == "in" || p.cur().Text == "out" || p.cur().Text == "type" || p.cur().Text == "use") {
			return
		}
		if p.cur().Kind == TokIdent && p.peek(1).Kind == TokPunct && p.peek(1).Text == "=" {
			return
		}
		p.advance()
	}
}

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for p.cur().Kind != TokEOF {
		before := p.pos
		d := p.parseDecl()
		if d != nil {
			prog.Decls = append(prog.Decls, d)
		}
		if p.pos == before {
			p.advance() // guarantee forward progress
		}
		if len(p.errs) > 0 && d == nil {
			p.synchronize()
		}
	}
	return prog
}

func (p *Parser) parseDecl() ast.Decl {
	switch {
	case p.cur().Kind == TokKeyword && p.cur().Text == "in":
		return p.parseInput()
	case p.cur().Kind == TokKeyword && p.cur().Text == "out":
		return p.parseOutput()
	case p.cur().Kind == TokKeyword && p.cur().Text == "type":
		return p.parseTypeDef()
	case p.cur().Kind == TokKeyword && p.cur().Text == "use":
		return p.parseUse()
	case p.cur().Kind == TokIdent:
		return p.parseAssignment()
	default:
		p.errorf("expected a declaration, found %q", p.cur().Text)
		return nil
	}
}

func (p *Parser) parseInput() ast.Decl {
	pos := p.pos2()
	p.expectKeyword("in")
	name, _, ok := p.expectIdent()
	if !ok {
		return nil
	}
	if _, ok := p.expectPunct(":"); !ok {
		return nil
	}
	te := p.parseTypeExpr()
	if te == nil {
		return nil
	}
	return &ast.InputDecl{Position: pos, Name: name, Type: te}
}

func (p *Parser) parseOutput() ast.Decl {
	pos := p.pos2()
	p.expectKeyword("out")
	name, _, ok := p.expectIdent()
	if !ok {
		return nil
	}
	return &ast.OutputDecl{Position: pos, Name: name}
}

func (p *Parser) parseTypeDef() ast.Decl {
	pos := p.pos2()
	p.expectKeyword("type")
	name, _, ok := p.expectIdent()
	if !ok {
		return nil
	}
	if _, ok := p.expectPunct("="); !ok {
		return nil
	}
	te := p.parseTypeExpr()
	if te == nil {
		return nil
	}
	return &ast.TypeDef{Position: pos, Name: name, Type: te}
}

func (p *Parser) parseUse() ast.Decl {
	pos := p.pos2()
	p.expectKeyword("use")
	qn := p.parseQualName()
	alias := ""
	if p.cur().Kind == TokKeyword && p.cur().Text == "as" {
		p.advance()
		a, _, ok := p.expectIdent()
		if !ok {
			return nil
		}
		alias = a
	}
	return &ast.UseDecl{Position: pos, QualName: qn, Alias: alias}
}

func (p *Parser) parseAssignment() ast.Decl {
	pos := p.pos2()
	name, _, ok := p.expectIdent()
	if !ok {
		return nil
	}
	if _, ok := p.expectPunct("="); !ok {
		return nil
	}
	val := p.parseExpr()
	if val == nil {
		return nil
	}
	return &ast.Assignment{Position: pos, Name: name, Value: val}
}

func (p *Parser) parseQualName() string {
	var parts []string
	name, _, ok := p.expectIdent()
	if !ok {
		return ""
	}
	parts = append(parts, name)
	for p.cur().Kind == TokPunct && p.cur().Text == "." && p.peek(1).Kind == TokIdent {
		p.advance()
		n, _, _ := p.expectIdent()
		parts = append(parts, n)
	}
	return strings.Join(parts, ".")
}

// ---- type expressions ----

func (p *Parser) parseTypeExpr() ast.TypeExpr {
	pos := p.pos2()
	switch {
	case p.cur().Kind == TokIdent && p.cur().Text == "List" && p.peek(1).Text == "<":
		p.advance()
		p.advance() // consume '<' lexed as two separate '<' chars? handled below
		elem := p.parseTypeExpr()
		p.expectGenericClose()
		return &ast.ListTypeExpr{Position: pos, Elem: elem}
	case p.cur().Kind == TokIdent && p.cur().Text == "Map" && p.peek(1).Text == "<":
		p.advance()
		p.advance()
		key := p.parseTypeExpr()
		p.expectPunct(",")
		val := p.parseTypeExpr()
		p.expectGenericClose()
		return &ast.MapTypeExpr{Position: pos, Key: key, Value: val}
	case p.cur().Kind == TokIdent && p.cur().Text == "Optional" && p.peek(1).Text == "<":
		p.advance()
		p.advance()
		elem := p.parseTypeExpr()
		p.expectGenericClose()
		return &ast.OptionalTypeExpr{Position: pos, Elem: elem}
	case p.cur().Kind == TokPunct && p.cur().Text == "{":
		return p.parseRecordTypeExpr()
	case p.cur().Kind == TokIdent:
		name, _, _ := p.expectIdent()
		base := ast.TypeExpr(&ast.NamedType{Position: pos, Name: name})
		for p.cur().Kind == TokPunct && p.cur().Text == "|" {
			p.advance()
			next := p.parseTypeExpr()
			if u, ok := base.(*ast.UnionTypeExpr); ok {
				u.Members = append(u.Members, next)
			} else {
				base = &ast.UnionTypeExpr{Position: pos, Members: []ast.TypeExpr{base, next}}
			}
		}
		return base
	default:
		p.errorf("expected a type, found %q", p.cur().Text)
		return nil
	}
}

// expectGenericClose consumes the '>' that closes a List<..>/Map<..>/
// Optional<..> type expression. '<' and '>' are lexed as plain punct
// runes so no special two-char handling is needed here.
func (p *Parser) expectGenericClose() {
	p.expectPunct(">")
}

func (p *Parser) parseRecordTypeExpr() ast.TypeExpr {
	pos := p.pos2()
	p.expectPunct("{")
	fields := map[string]ast.TypeExpr{}
	var order []string
	for p.cur().Kind != TokPunct || p.cur().Text != "}" {
		name, _, ok := p.expectIdent()
		if !ok {
			return nil
		}
		p.expectPunct(":")
		te := p.parseTypeExpr()
		fields[name] = te
		order = append(order, name)
		if p.cur().Kind == TokPunct && p.cur().Text == "," {
			p.advance()
			continue
		}
		break
	}
	p.expectPunct("}")
	return &ast.RecordTypeExpr{Position: pos, Fields: fields, Order: order}
}

// ---- expressions: precedence climbing ----
// coalesce (??) < guard (when) < or (||) < and (&&) < equality (==,!=)
// < comparison (<,<=,>,>=) < additive/merge (+,-) < multiplicative (*,/)
// < unary (!,-) < postfix < primary

func (p *Parser) parseExpr() ast.Expr { return p.parseCoalesce() }

func (p *Parser) parseCoalesce() ast.Expr {
	left := p.parseGuard()
	for p.cur().Kind == TokPunct && p.cur().Text == "??" {
		pos := p.pos2()
		p.advance()
		right := p.parseGuard()
		left = &ast.Coalesce{Position: pos, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseGuard() ast.Expr {
	left := p.parseOr()
	if p.cur().Kind == TokKeyword && p.cur().Text == "when" {
		pos := p.pos2()
		p.advance()
		cond := p.parseOr()
		return &ast.Guard{Position: pos, Expr: left, Cond: cond}
	}
	return left
}

func (p *Parser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.cur().Kind == TokPunct && p.cur().Text == "||" {
		pos := p.pos2()
		p.advance()
		right := p.parseAnd()
		left = &ast.BinaryOp{Position: pos, Op: "||", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() ast.Expr {
	left := p.parseEquality()
	for p.cur().Kind == TokPunct && p.cur().Text == "&&" {
		pos := p.pos2()
		p.advance()
		right := p.parseEquality()
		left = &ast.BinaryOp{Position: pos, Op: "&&", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseEquality() ast.Expr {
	left := p.parseComparison()
	for p.cur().Kind == TokPunct && (p.cur().Text == "==" || p.cur().Text == "!=") {
		op := p.cur().Text
		pos := p.pos2()
		p.advance()
		right := p.parseComparison()
		left = &ast.BinaryOp{Position: pos, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseComparison() ast.Expr {
	left := p.parseAdditive()
	for p.cur().Kind == TokPunct && (p.cur().Text == "<" || p.cur().Text == "<=" || p.cur().Text == ">" || p.cur().Text == ">=") {
		op := p.cur().Text
		pos := p.pos2()
		p.advance()
		right := p.parseAdditive()
		left = &ast.BinaryOp{Position: pos, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for p.cur().Kind == TokPunct && (p.cur().Text == "+" || p.cur().Text == "-") {
		op := p.cur().Text
		pos := p.pos2()
		p.advance()
		right := p.parseMultiplicative()
		if op == "+" {
			// "+" is overloaded between arithmetic addition and
			// right-biased record/candidate merge; internal/typecheck
			// disambiguates by operand type (section 9's merge bias).
			left = &ast.Merge{Position: pos, Left: left, Right: right}
		} else {
			left = &ast.BinaryOp{Position: pos, Op: op, Left: left, Right: right}
		}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	for p.cur().Kind == TokPunct && (p.cur().Text == "*" || p.cur().Text == "/") {
		op := p.cur().Text
		pos := p.pos2()
		p.advance()
		right := p.parseUnary()
		left = &ast.BinaryOp{Position: pos, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	if p.cur().Kind == TokPunct && (p.cur().Text == "!" || p.cur().Text == "-") {
		op := p.cur().Text
		pos := p.pos2()
		p.advance()
		operand := p.parseUnary()
		return &ast.UnaryOp{Position: pos, Op: op, Operand: operand}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	for {
		switch {
		case p.cur().Kind == TokPunct && p.cur().Text == ".":
			pos := p.pos2()
			p.advance()
			name, _, ok := p.expectIdent()
			if !ok {
				return expr
			}
			expr = &ast.FieldAccess{Position: pos, Source: expr, Field: name}
		case p.cur().Kind == TokPunct && p.cur().Text == "[":
			pos := p.pos2()
			p.advance()
			var fields []string
			for p.cur().Kind != TokPunct || p.cur().Text != "]" {
				f, _, ok := p.expectIdent()
				if !ok {
					return expr
				}
				fields = append(fields, f)
				if p.cur().Kind == TokPunct && p.cur().Text == "," {
					p.advance()
					continue
				}
				break
			}
			p.expectPunct("]")
			expr = &ast.Projection{Position: pos, Source: expr, Fields: fields}
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	pos := p.pos2()
	switch {
	case p.cur().Kind == TokInt:
		t := p.advance()
		v, _ := strconv.ParseInt(t.Text, 10, 64)
		return &ast.IntLit{Position: pos, Value: v}
	case p.cur().Kind == TokFloat:
		t := p.advance()
		v, _ := strconv.ParseFloat(t.Text, 64)
		return &ast.FloatLit{Position: pos, Value: v}
	case p.cur().Kind == TokKeyword && p.cur().Text == "true":
		p.advance()
		return &ast.BoolLit{Position: pos, Value: true}
	case p.cur().Kind == TokKeyword && p.cur().Text == "false":
		p.advance()
		return &ast.BoolLit{Position: pos, Value: false}
	case p.cur().Kind == TokString:
		return p.parseStringLitOrInterp()
	case p.cur().Kind == TokPunct && p.cur().Text == "(":
		p.advance()
		// Lambda detection: "(" params ")" "=>" is not in the grammar
		// sketch's funcCall form, so lambdas use a leading backslash-free
		// "(x, y) => expr" shape, matched here by lookahead for ")" "=>" .
		if lam := p.tryParseLambda(pos); lam != nil {
			return lam
		}
		inner := p.parseExpr()
		p.expectPunct(")")
		return inner
	case p.cur().Kind == TokPunct && p.cur().Text == "[":
		return p.parseListLit(pos)
	case p.cur().Kind == TokPunct && p.cur().Text == "{":
		return p.parseRecordLit(pos)
	case p.cur().Kind == TokKeyword && p.cur().Text == "if":
		return p.parseConditional()
	case p.cur().Kind == TokKeyword && p.cur().Text == "branch":
		return p.parseBranch()
	case p.cur().Kind == TokKeyword && p.cur().Text == "match":
		return p.parseMatch()
	case p.cur().Kind == TokIdent:
		return p.parseIdentOrCall()
	default:
		p.errorf("unexpected token %q in expression", p.cur().Text)
		p.advance()
		return &ast.BoolLit{Position: pos, Value: false}
	}
}

func (p *Parser) tryParseLambda(pos ast.Position) ast.Expr {
	save := p.pos
	p.advance() // consume '('
	var params []string
	ok := true
	for p.cur().Kind != TokPunct || p.cur().Text != ")" {
		if p.cur().Kind != TokIdent {
			ok = false
			break
		}
		params = append(params, p.advance().Text)
		if p.cur().Kind == TokPunct && p.cur().Text == "," {
			p.advance()
			continue
		}
		break
	}
	if ok && p.cur().Kind == TokPunct && p.cur().Text == ")" {
		p.advance()
		if p.cur().Kind == TokPunct && p.cur().Text == "=" && p.peek(1).Kind == TokPunct && p.peek(1).Text == ">" {
			p.advance()
			p.advance()
			body := p.parseExpr()
			return &ast.Lambda{Position: pos, Params: params, Body: body}
		}
	}
	p.pos = save
	return nil
}

func (p *Parser) parseListLit(pos ast.Position) ast.Expr {
	p.expectPunct("[")
	var items []ast.Expr
	for p.cur().Kind != TokPunct || p.cur().Text != "]" {
		items = append(items, p.parseExpr())
		if p.cur().Kind == TokPunct && p.cur().Text == "," {
			p.advance()
			continue
		}
		break
	}
	p.expectPunct("]")
	return &ast.ListLit{Position: pos, Items: items}
}

func (p *Parser) parseRecordLit(pos ast.Position) ast.Expr {
	p.expectPunct("{")
	fields := map[string]ast.Expr{}
	var order []string
	for p.cur().Kind != TokPunct || p.cur().Text != "}" {
		name, _, ok := p.expectIdent()
		if !ok {
			return nil
		}
		p.expectPunct(":")
		v := p.parseExpr()
		fields[name] = v
		order = append(order, name)
		if p.cur().Kind == TokPunct && p.cur().Text == "," {
			p.advance()
			continue
		}
		break
	}
	p.expectPunct("}")
	return &ast.RecordLit{Position: pos, Fields: fields, Order: order}
}

func (p *Parser) parseConditional() ast.Expr {
	pos := p.pos2()
	p.expectKeyword("if")
	cond := p.parseExpr()
	thenExpr := p.parseExpr()
	p.expectKeyword("else")
	elseExpr := p.parseExpr()
	return &ast.Conditional{Position: pos, Cond: cond, Then: thenExpr, Else: elseExpr}
}

func (p *Parser) parseBranch() ast.Expr {
	pos := p.pos2()
	p.expectKeyword("branch")
	p.expectPunct("{")
	var arms []ast.BranchArm
	var otherwise ast.Expr
	for {
		if p.cur().Kind == TokKeyword && p.cur().Text == "otherwise" {
			armPos := p.pos2()
			p.advance()
			p.expectPunct("->")
			otherwise = p.parseExpr()
			_ = armPos
			if p.cur().Kind == TokPunct && p.cur().Text == "," {
				p.advance()
			}
			break
		}
		armPos := p.pos2()
		cond := p.parseExpr()
		p.expectPunct("->")
		body := p.parseExpr()
		arms = append(arms, ast.BranchArm{Position: armPos, Cond: cond, Expr: body})
		if p.cur().Kind == TokPunct && p.cur().Text == "," {
			p.advance()
			continue
		}
		break
	}
	p.expectPunct("}")
	if otherwise == nil {
		p.errorf("branch requires an otherwise arm")
	}
	return &ast.Branch{Position: pos, Arms: arms, Otherwise: otherwise}
}

func (p *Parser) parseMatch() ast.Expr {
	pos := p.pos2()
	p.expectKeyword("match")
	subject := p.parseExpr()
	p.expectPunct("{")
	var arms []ast.MatchArm
	for p.cur().Kind != TokPunct || p.cur().Text != "}" {
		armPos := p.pos2()
		var tag, binding string
		if p.cur().Kind == TokKeyword && p.cur().Text == "_" {
			p.advance()
		} else {
			t, _, ok := p.expectIdent()
			if !ok {
				return nil
			}
			tag = t
			if p.cur().Kind == TokPunct && p.cur().Text == "(" {
				p.advance()
				b, _, ok := p.expectIdent()
				if !ok {
					return nil
				}
				binding = b
				p.expectPunct(")")
			}
		}
		p.expectPunct("->")
		body := p.parseExpr()
		arms = append(arms, ast.MatchArm{Position: armPos, Tag: tag, Binding: binding, Body: body})
		if p.cur().Kind == TokPunct && p.cur().Text == "," {
			p.advance()
			continue
		}
		break
	}
	p.expectPunct("}")
	return &ast.Match{Position: pos, Subject: subject, Arms: arms}
}

func (p *Parser) parseIdentOrCall() ast.Expr {
	pos := p.pos2()
	save := p.pos
	qn := p.parseQualName()
	if p.cur().Kind == TokPunct && p.cur().Text == "(" {
		return p.parseCallArgsAndOptions(pos, qn)
	}
	// Not a call: only a bare identifier is a VarRef; a dotted name that
	// isn't followed by "(" backtracks to a single identifier and lets
	// the postfix loop build FieldAccess nodes one segment at a time.
	p.pos = save
	name, vpos, _ := p.expectIdent()
	return &ast.VarRef{Position: vpos, Name: name}
}

func (p *Parser) parseCallArgsAndOptions(pos ast.Position, qn string) ast.Expr {
	p.expectPunct("(")
	var args []ast.Expr
	for p.cur().Kind != TokPunct || p.cur().Text != ")" {
		args = append(args, p.parseExpr())
		if p.cur().Kind == TokPunct && p.cur().Text == "," {
			p.advance()
			continue
		}
		break
	}
	p.expectPunct(")")
	var opts []ast.CallOption
	if p.cur().Kind == TokKeyword && p.cur().Text == "with" {
		p.advance()
		opts = p.parseOptions()
	}
	return &ast.FuncCall{Position: pos, QualName: qn, Args: args, Options: opts}
}

func (p *Parser) parseOptions() []ast.CallOption {
	var opts []ast.CallOption
	for {
		opos := p.pos2()
		name, _, ok := p.expectIdent()
		if !ok {
			break
		}
		p.expectPunct(":")
		val := p.parseOptionValue()
		opts = append(opts, ast.CallOption{Position: opos, Name: name, Value: val})
		if p.cur().Kind == TokPunct && p.cur().Text == "," {
			p.advance()
			continue
		}
		break
	}
	return opts
}

// parseOptionValue parses the value side of an option entry. Most
// options take a plain expression (fallback is a full expr; everything
// else is typically a literal), but duration/rate/priority literals are
// lexed as ordinary identifiers+numbers and left for internal/typecheck
// to interpret (e.g. "50ms", "3/60s", "high").
func (p *Parser) parseOptionValue() ast.Expr {
	if p.cur().Kind == TokInt || p.cur().Kind == TokFloat {
		startPos := p.pos2()
		numTok := p.advance()
		if p.cur().Kind == TokIdent {
			unit := p.advance().Text
			return &ast.StringLit{Position: startPos, Value: numTok.Text + unit}
		}
		if p.cur().Kind == TokPunct && p.cur().Text == "/" {
			p.advance()
			denomNum := p.advance().Text
			unit := ""
			if p.cur().Kind == TokIdent {
				unit = p.advance().Text
			}
			return &ast.StringLit{Position: startPos, Value: numTok.Text + "/" + denomNum + unit}
		}
		p.pos--
		return p.parseExpr()
	}
	return p.parseExpr()
}

func (p *Parser) parseStringLitOrInterp() ast.Expr {
	pos := p.pos2()
	t := p.advance()
	parts, exprs, isPlain, err := splitInterp(t.Text)
	if err != nil {
		p.errorf("%s", err.Error())
		return &ast.StringLit{Position: pos, Value: t.Text}
	}
	if isPlain {
		return &ast.StringLit{Position: pos, Value: parts[0]}
	}
	var subExprs []ast.Expr
	for _, raw := range exprs {
		subToks, lexErr := Lex(raw)
		if lexErr != nil {
			p.errorf("interpolation lex error: %s", lexErr.Error())
			continue
		}
		sub := &Parser{toks: subToks}
		subExprs = append(subExprs, sub.parseExpr())
		p.errs = append(p.errs, sub.errs...)
	}
	return &ast.StringInterp{Position: pos, Parts: parts, Exprs: subExprs}
}
