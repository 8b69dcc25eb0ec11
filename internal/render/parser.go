package render

import (
	"fmt"
	"strconv"
	"strings"
)

// Error is a template syntax or evaluation error.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

const maxNesting = 32

type node interface{}

type textNode struct{ text string }

type outputNode struct {
	expr expr
	line int
}

type ifBranch struct {
	cond expr
	body []node
}

type ifNode struct {
	branches []ifBranch
	elseBody []node
	line     int
}

type forNode struct {
	name     string
	iter     expr
	body     []node
	elseBody []node
	line     int
}

type expr interface{}

type literalExpr struct{ v any }

type nameExpr struct{ name string }

type attrExpr struct {
	obj expr
	key string
}

type indexExpr struct {
	obj expr
	idx expr
}

type notExpr struct{ x expr }

type binaryExpr struct {
	op   string
	l, r expr
}

type filterExpr struct {
	in   expr
	name string
	args []expr
}

// Statements with no place in the sandbox get a dedicated message.
var forbiddenTags = map[string]bool{
	"include": true, "import": true, "from": true, "extends": true, "block": true,
	"macro": true, "call": true, "set": true, "with": true, "filter": true, "raw": true,
}

type stmtTag struct {
	name string
	toks []token
	line int
}

type parser struct {
	segs  []segment
	pos   int
	depth int
}

func parse(src string) ([]node, error) {
	segs, err := splitSegments(src)
	if err != nil {
		return nil, err
	}
	p := &parser{segs: segs}
	nodes, end, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if end != nil {
		return nil, &Error{Line: end.line, Msg: fmt.Sprintf("unexpected '%s'", end.name)}
	}
	return nodes, nil
}

// parseBody consumes segments until one of ends (returned) or the end of input.
func (p *parser) parseBody(ends ...string) ([]node, *stmtTag, error) {
	var nodes []node
	for p.pos < len(p.segs) {
		seg := p.segs[p.pos]
		p.pos++
		switch seg.kind {
		case segText:
			nodes = append(nodes, textNode{text: seg.body})
		case segOutput:
			x, err := parseExprString(seg.body, seg.line)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, outputNode{expr: x, line: seg.line})
		case segStmt:
			toks, err := lexExpr(seg.body)
			if err != nil {
				return nil, nil, &Error{Line: seg.line, Msg: err.Error()}
			}
			if toks[0].kind != tkName {
				return nil, nil, &Error{Line: seg.line, Msg: "tag name expected"}
			}
			tag := &stmtTag{name: toks[0].val, toks: toks[1:], line: seg.line}
			for _, e := range ends {
				if tag.name == e {
					return nodes, tag, nil
				}
			}
			switch tag.name {
			case "for":
				n, err := p.parseFor(tag)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, n)
			case "if":
				n, err := p.parseIf(tag)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, n)
			case "endfor", "endif", "else", "elif":
				return nil, nil, &Error{Line: tag.line, Msg: fmt.Sprintf("unexpected '%s'", tag.name)}
			default:
				if forbiddenTags[tag.name] {
					return nil, nil, &Error{Line: tag.line, Msg: fmt.Sprintf("tag '%s' is not allowed", tag.name)}
				}
				return nil, nil, &Error{Line: tag.line, Msg: fmt.Sprintf("unknown tag '%s'", tag.name)}
			}
		}
	}
	if len(ends) > 0 {
		return nil, nil, &Error{Msg: fmt.Sprintf("unexpected end of template, expected '%s'", strings.Join(ends, "' or '"))}
	}
	return nodes, nil, nil
}

func (p *parser) enter(line int) error {
	p.depth++
	if p.depth > maxNesting {
		return &Error{Line: line, Msg: fmt.Sprintf("blocks nested deeper than %d", maxNesting)}
	}
	return nil
}

func (p *parser) parseFor(tag *stmtTag) (node, error) {
	if err := p.enter(tag.line); err != nil {
		return nil, err
	}
	defer func() { p.depth-- }()

	t := tag.toks
	if len(t) < 3 || t[0].kind != tkName || t[1].kind != tkName || t[1].val != "in" {
		return nil, &Error{Line: tag.line, Msg: "expected 'for <name> in <expression>'"}
	}
	if isKeyword(t[0].val) || t[0].val == "loop" {
		return nil, &Error{Line: tag.line, Msg: fmt.Sprintf("cannot assign to '%s'", t[0].val)}
	}
	ep := &exprParser{toks: t[2:], line: tag.line}
	iter, err := ep.parseAll()
	if err != nil {
		return nil, err
	}

	n := forNode{name: t[0].val, iter: iter, line: tag.line}
	body, end, err := p.parseBody("endfor", "else")
	if err != nil {
		return nil, err
	}
	n.body = body
	if end.name == "else" {
		n.elseBody, _, err = p.parseBody("endfor")
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (p *parser) parseIf(tag *stmtTag) (node, error) {
	if err := p.enter(tag.line); err != nil {
		return nil, err
	}
	defer func() { p.depth-- }()

	n := ifNode{line: tag.line}
	cur := tag
	for {
		ep := &exprParser{toks: cur.toks, line: cur.line}
		cond, err := ep.parseAll()
		if err != nil {
			return nil, err
		}
		body, end, err := p.parseBody("elif", "else", "endif")
		if err != nil {
			return nil, err
		}
		n.branches = append(n.branches, ifBranch{cond: cond, body: body})
		switch end.name {
		case "elif":
			cur = end
			continue
		case "else":
			n.elseBody, _, err = p.parseBody("endif")
			if err != nil {
				return nil, err
			}
		}
		return n, nil
	}
}

func isKeyword(s string) bool {
	switch s {
	case "and", "or", "not", "in", "true", "false", "none", "True", "False", "None":
		return true
	}
	return false
}

type exprParser struct {
	toks []token
	pos  int
	line int
}

func parseExprString(s string, line int) (expr, error) {
	toks, err := lexExpr(s)
	if err != nil {
		return nil, &Error{Line: line, Msg: err.Error()}
	}
	ep := &exprParser{toks: toks, line: line}
	return ep.parseAll()
}

func (p *exprParser) errf(format string, args ...any) error {
	return &Error{Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *exprParser) peek() token { return p.toks[p.pos] }

func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tkEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) acceptOp(op string) bool {
	if t := p.peek(); t.kind == tkOp && t.val == op {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) acceptName(name string) bool {
	if t := p.peek(); t.kind == tkName && t.val == name {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) parseAll() (expr, error) {
	if p.peek().kind == tkEOF {
		return nil, p.errf("expected an expression")
	}
	x, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tkEOF {
		return nil, p.errf("unexpected %s", t)
	}
	return x, nil
}

func (p *exprParser) parseOr() (expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptName("or") {
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = binaryExpr{op: "or", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseAnd() (expr, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptName("and") {
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = binaryExpr{op: "and", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseNot() (expr, error) {
	if p.acceptName("not") {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notExpr{x: x}, nil
	}
	return p.parseCompare()
}

func (p *exprParser) parseCompare() (expr, error) {
	l, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for _, op := range twoCharOps {
		if p.acceptOp(op) {
			r, err := p.parseConcat()
			if err != nil {
				return nil, err
			}
			return binaryExpr{op: op, l: l, r: r}, nil
		}
	}
	return l, nil
}

func (p *exprParser) parseConcat() (expr, error) {
	l, err := p.parseFiltered()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("~") {
		r, err := p.parseFiltered()
		if err != nil {
			return nil, err
		}
		l = binaryExpr{op: "~", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseFiltered() (expr, error) {
	x, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("|") {
		t := p.next()
		if t.kind != tkName {
			return nil, p.errf("filter name expected, got %s", t)
		}
		if _, ok := filters[t.val]; !ok {
			return nil, p.errf("no filter named '%s'", t.val)
		}
		f := filterExpr{in: x, name: t.val}
		if p.acceptOp("(") {
			for !p.acceptOp(")") {
				if len(f.args) > 0 && !p.acceptOp(",") {
					return nil, p.errf("expected ',' or ')' in filter arguments")
				}
				a, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				f.args = append(f.args, a)
			}
		}
		x = f
	}
	return x, nil
}

func (p *exprParser) parsePostfix() (expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptOp("."):
			t := p.next()
			if t.kind != tkName && t.kind != tkInt {
				return nil, p.errf("attribute name expected, got %s", t)
			}
			if t.kind == tkInt {
				n, _ := strconv.Atoi(t.val)
				x = indexExpr{obj: x, idx: literalExpr{v: n}}
				continue
			}
			if strings.HasPrefix(t.val, "_") {
				return nil, p.errf("access to '%s' is not allowed", t.val)
			}
			if p.peek().kind == tkOp && p.peek().val == "(" {
				return nil, p.errf("calling '%s' is not allowed", t.val)
			}
			x = attrExpr{obj: x, key: t.val}
		case p.acceptOp("["):
			idx, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.acceptOp("]") {
				return nil, p.errf("expected ']'")
			}
			x = indexExpr{obj: x, idx: idx}
		case p.peek().kind == tkOp && p.peek().val == "(":
			return nil, p.errf("function calls are not allowed")
		default:
			return x, nil
		}
	}
}

func (p *exprParser) parsePrimary() (expr, error) {
	t := p.next()
	switch t.kind {
	case tkString:
		return literalExpr{v: t.val}, nil
	case tkInt:
		n, err := strconv.Atoi(t.val)
		if err != nil {
			return nil, p.errf("bad number %s", t.val)
		}
		return literalExpr{v: n}, nil
	case tkName:
		switch t.val {
		case "true", "True":
			return literalExpr{v: true}, nil
		case "false", "False":
			return literalExpr{v: false}, nil
		case "none", "None":
			return literalExpr{v: nil}, nil
		case "and", "or", "in":
			return nil, p.errf("unexpected %s", t)
		}
		if strings.HasPrefix(t.val, "__") {
			return nil, p.errf("access to '%s' is not allowed", t.val)
		}
		return nameExpr{name: t.val}, nil
	case tkOp:
		if t.val == "(" {
			x, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.acceptOp(")") {
				return nil, p.errf("expected ')'")
			}
			return x, nil
		}
	}
	return nil, p.errf("unexpected %s", t)
}
