package render

import (
	"fmt"
	"strings"
)

type segKind int

const (
	segText segKind = iota
	segOutput
	segStmt
)

type segment struct {
	kind segKind
	body string
	line int
}

const wsChars = " \t\r\n"

// splitSegments cuts src into text, {{ output }} and {% statement %} segments.
// Comments are dropped and "-" whitespace control is applied to neighbouring text.
func splitSegments(src string) ([]segment, error) {
	var (
		segs     []segment
		line     = 1
		trimNext bool
	)
	addText := func(text string, at int) {
		if trimNext {
			text = strings.TrimLeft(text, wsChars)
			trimNext = false
		}
		if text != "" {
			segs = append(segs, segment{kind: segText, body: text, line: at})
		}
	}

	for len(src) > 0 {
		i := indexTagOpen(src)
		if i < 0 {
			addText(src, line)
			break
		}
		open := src[i : i+2]
		rest := src[i+2:]
		text := src[:i]
		tagLine := line + strings.Count(text, "\n")

		consumed := i + 2
		if strings.HasPrefix(rest, "-") {
			rest = rest[1:]
			consumed++
			text = strings.TrimRight(text, wsChars)
		}
		addText(text, line)

		var closing string
		switch open {
		case "{{":
			closing = "}}"
		case "{%":
			closing = "%}"
		default:
			closing = "#}"
		}
		j := findClose(rest, closing, open != "{#")
		if j < 0 {
			return nil, &Error{Line: tagLine, Msg: fmt.Sprintf("unclosed %q tag", open)}
		}
		body := rest[:j]
		consumed += j + 2
		if strings.HasSuffix(body, "-") {
			body = body[:len(body)-1]
			trimNext = true
		}

		switch open {
		case "{{":
			segs = append(segs, segment{kind: segOutput, body: strings.TrimSpace(body), line: tagLine})
		case "{%":
			segs = append(segs, segment{kind: segStmt, body: strings.TrimSpace(body), line: tagLine})
		}
		line += strings.Count(src[:consumed], "\n")
		src = src[consumed:]
	}
	return segs, nil
}

func indexTagOpen(s string) int {
	for i := 0; i+1 < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		switch s[i+1] {
		case '{', '%', '#':
			return i
		}
	}
	return -1
}

// findClose locates closing outside string literals when quoted is set.
func findClose(s, closing string, quoted bool) int {
	var q byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if q != 0 {
			switch c {
			case '\\':
				i++
			case q:
				q = 0
			}
			continue
		}
		if quoted && (c == '\'' || c == '"') {
			q = c
			continue
		}
		if strings.HasPrefix(s[i:], closing) {
			return i
		}
	}
	return -1
}

type tokKind int

const (
	tkEOF tokKind = iota
	tkName
	tkString
	tkInt
	tkOp
)

type token struct {
	kind tokKind
	val  string
}

func (t token) String() string {
	switch t.kind {
	case tkEOF:
		return "end of expression"
	case tkString:
		return fmt.Sprintf("string %q", t.val)
	}
	return fmt.Sprintf("%q", t.val)
}

var twoCharOps = []string{"==", "!="}

const oneCharOps = "|.(),[]~"

func lexExpr(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case strings.IndexByte(wsChars, c) >= 0:
			i++
		case isNameStart(c):
			j := i + 1
			for j < len(s) && isNameChar(s[j]) {
				j++
			}
			toks = append(toks, token{kind: tkName, val: s[i:j]})
			i = j
		case isDigit(c) || (c == '-' && i+1 < len(s) && isDigit(s[i+1])):
			j := i + 1
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			toks = append(toks, token{kind: tkInt, val: s[i:j]})
			i = j
		case c == '\'' || c == '"':
			str, n, err := lexString(s[i:])
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tkString, val: str})
			i += n
		default:
			matched := false
			for _, op := range twoCharOps {
				if strings.HasPrefix(s[i:], op) {
					toks = append(toks, token{kind: tkOp, val: op})
					i += len(op)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			if strings.IndexByte(oneCharOps, c) >= 0 {
				toks = append(toks, token{kind: tkOp, val: string(c)})
				i++
				continue
			}
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	return append(toks, token{kind: tkEOF}), nil
}

func lexString(s string) (string, int, error) {
	q := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == q:
			return b.String(), i + 1, nil
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || isDigit(c)
}
