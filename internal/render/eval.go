package render

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/ratecon-intake/constants"
)

const maxIterations = 10000

// ErrOutputLimit is returned when rendering would exceed the output cap.
var ErrOutputLimit = errors.New("rendered output exceeds size limit")

// Template is a compiled template. It is immutable and safe for concurrent use.
type Template struct {
	nodes []node
}

// Compile parses src. Only substitution, conditionals and loops over provided
// sequences exist in the language; there is no way to reach files, code or the network.
func Compile(src string) (*Template, error) {
	if len(src) > constants.MaxTemplateBytes {
		return nil, &Error{Msg: fmt.Sprintf("template larger than %d bytes", constants.MaxTemplateBytes)}
	}
	nodes, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Template{nodes: nodes}, nil
}

// Execute renders the template against data. Undefined names render as "".
func (t *Template) Execute(data map[string]any) (string, error) {
	ev := &evaluator{
		scopes: []map[string]any{data},
		maxOut: constants.MaxRenderBytes,
	}
	if err := ev.exec(t.nodes); err != nil {
		return "", err
	}
	return ev.out.String(), nil
}

type evaluator struct {
	scopes []map[string]any
	out    strings.Builder
	maxOut int
	iters  int
}

func (e *evaluator) write(s string) error {
	if e.out.Len()+len(s) > e.maxOut {
		return ErrOutputLimit
	}
	e.out.WriteString(s)
	return nil
}

func (e *evaluator) lookup(name string) any {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if v, ok := e.scopes[i][name]; ok {
			return v
		}
	}
	return nil
}

func (e *evaluator) exec(nodes []node) error {
	for _, n := range nodes {
		switch n := n.(type) {
		case textNode:
			if err := e.write(n.text); err != nil {
				return err
			}
		case outputNode:
			v, err := e.eval(n.expr)
			if err != nil {
				return withLine(err, n.line)
			}
			if err := e.write(toString(v)); err != nil {
				return err
			}
		case ifNode:
			if err := e.execIf(n); err != nil {
				return err
			}
		case forNode:
			if err := e.execFor(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *evaluator) execIf(n ifNode) error {
	for _, b := range n.branches {
		v, err := e.eval(b.cond)
		if err != nil {
			return withLine(err, n.line)
		}
		if truthy(v) {
			return e.exec(b.body)
		}
	}
	return e.exec(n.elseBody)
}

func (e *evaluator) execFor(n forNode) error {
	v, err := e.eval(n.iter)
	if err != nil {
		return withLine(err, n.line)
	}
	var items []any
	switch seq := v.(type) {
	case nil:
	case []any:
		items = seq
	default:
		return &Error{Line: n.line, Msg: fmt.Sprintf("'%s' is not iterable", typeName(v))}
	}
	if len(items) == 0 {
		return e.exec(n.elseBody)
	}

	for i, item := range items {
		e.iters++
		if e.iters > maxIterations {
			return &Error{Line: n.line, Msg: "too many loop iterations"}
		}
		loop := map[string]any{
			"index":     i + 1,
			"index0":    i,
			"revindex":  len(items) - i,
			"revindex0": len(items) - i - 1,
			"first":     i == 0,
			"last":      i == len(items)-1,
			"length":    len(items),
		}
		e.scopes = append(e.scopes, map[string]any{n.name: item, "loop": loop})
		err := e.exec(n.body)
		e.scopes = e.scopes[:len(e.scopes)-1]
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *evaluator) eval(x expr) (any, error) {
	switch x := x.(type) {
	case literalExpr:
		return x.v, nil
	case nameExpr:
		return e.lookup(x.name), nil
	case attrExpr:
		obj, err := e.eval(x.obj)
		if err != nil {
			return nil, err
		}
		if m, ok := obj.(map[string]any); ok {
			return m[x.key], nil
		}
		return nil, nil
	case indexExpr:
		obj, err := e.eval(x.obj)
		if err != nil {
			return nil, err
		}
		idx, err := e.eval(x.idx)
		if err != nil {
			return nil, err
		}
		return index(obj, idx), nil
	case notExpr:
		v, err := e.eval(x.x)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	case binaryExpr:
		return e.evalBinary(x)
	case filterExpr:
		in, err := e.eval(x.in)
		if err != nil {
			return nil, err
		}
		args := make([]any, 0, len(x.args))
		for _, a := range x.args {
			v, err := e.eval(a)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return filters[x.name](in, args, e.maxOut)
	}
	return nil, fmt.Errorf("unsupported expression %T", x)
}

func (e *evaluator) evalBinary(x binaryExpr) (any, error) {
	l, err := e.eval(x.l)
	if err != nil {
		return nil, err
	}
	switch x.op {
	case "and":
		if !truthy(l) {
			return l, nil
		}
		return e.eval(x.r)
	case "or":
		if truthy(l) {
			return l, nil
		}
		return e.eval(x.r)
	}
	r, err := e.eval(x.r)
	if err != nil {
		return nil, err
	}
	switch x.op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "~":
		ls, rs := toString(l), toString(r)
		if len(ls)+len(rs) > e.maxOut {
			return nil, ErrOutputLimit
		}
		return ls + rs, nil
	}
	return nil, fmt.Errorf("unknown operator %q", x.op)
}

func withLine(err error, line int) error {
	var te *Error
	if errors.As(err, &te) || errors.Is(err, ErrOutputLimit) {
		return err
	}
	return &Error{Line: line, Msg: err.Error()}
}

func index(obj, idx any) any {
	switch o := obj.(type) {
	case []any:
		i, ok := idx.(int)
		if !ok {
			return nil
		}
		if i < 0 {
			i += len(o)
		}
		if i < 0 || i >= len(o) {
			return nil
		}
		return o[i]
	case map[string]any:
		if k, ok := idx.(string); ok {
			return o[k]
		}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case int:
		y, ok := b.(int)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return toString(a) == toString(b)
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case bool:
		if t {
			return "True"
		}
		return "False"
	case []any:
		parts := make([]string, len(t))
		for i, it := range t {
			parts[i] = toString(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		return "{...}"
	}
	return fmt.Sprint(v)
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "str"
	case int:
		return "int"
	case bool:
		return "bool"
	case map[string]any:
		return "dict"
	}
	return fmt.Sprintf("%T", v)
}

// filterFunc results must not exceed limit bytes.
type filterFunc func(in any, args []any, limit int) (any, error)

var filters map[string]filterFunc

func init() {
	filters = map[string]filterFunc{
		"upper":      stringFilter(strings.ToUpper),
		"lower":      stringFilter(strings.ToLower),
		"trim":       stringFilter(strings.TrimSpace),
		"title":      stringFilter(titleCase),
		"capitalize": stringFilter(capitalize),
		"default":    defaultFilter,
		"d":          defaultFilter,
		"length":     lengthFilter,
		"count":      lengthFilter,
		"replace":    replaceFilter,
		"join":       joinFilter,
		"first":      func(in any, _ []any, _ int) (any, error) { return index(in, 0), nil },
		"last":       func(in any, _ []any, _ int) (any, error) { return index(in, -1), nil },
	}
}

func stringFilter(f func(string) string) filterFunc {
	return func(in any, _ []any, _ int) (any, error) { return f(toString(in)), nil }
}

func defaultFilter(in any, args []any, _ int) (any, error) {
	if in != nil && in != "" {
		return in, nil
	}
	if len(args) == 0 {
		return "", nil
	}
	return args[0], nil
}

func lengthFilter(in any, _ []any, _ int) (any, error) {
	switch t := in.(type) {
	case nil:
		return 0, nil
	case string:
		return utf8.RuneCountInString(t), nil
	case []any:
		return len(t), nil
	case map[string]any:
		return len(t), nil
	}
	return nil, fmt.Errorf("object of type '%s' has no length", typeName(in))
}

func replaceFilter(in any, args []any, limit int) (any, error) {
	if len(args) != 2 {
		return nil, errors.New("replace expects 2 arguments")
	}
	s, old, repl := toString(in), toString(args[0]), toString(args[1])
	n := utf8.RuneCountInString(s) + 1
	if old != "" {
		n = strings.Count(s, old)
	}
	if len(s)+n*(len(repl)-len(old)) > limit {
		return nil, ErrOutputLimit
	}
	return strings.ReplaceAll(s, old, repl), nil
}

func joinFilter(in any, args []any, limit int) (any, error) {
	sep := ""
	if len(args) > 0 {
		sep = toString(args[0])
	}
	items, ok := in.([]any)
	if !ok {
		return toString(in), nil
	}
	parts := make([]string, len(items))
	size := 0
	for i, it := range items {
		parts[i] = toString(it)
		size += len(parts[i]) + len(sep)
		if size > limit+len(sep) {
			return nil, ErrOutputLimit
		}
	}
	return strings.Join(parts, sep), nil
}

func titleCase(s string) string {
	var b strings.Builder
	prev := ' '
	for _, r := range s {
		if unicode.IsSpace(prev) || prev == '-' {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
		prev = r
	}
	return b.String()
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[n:])
}
