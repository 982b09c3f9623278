package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"resourcegraph/internal/apierr"
)

// ParseText parses the parenthesized text form of a filter, for example
//
//	(age gte 18 and name like 'a%') or posts any (title ilike '%go%')
//
// Values are 'single' or "double" quoted strings, numbers, true, false,
// null, [lists], bare words such as CURRENT_TIMESTAMP, or @field to compare
// with another field. There is no operator precedence: mixing and/or at one
// nesting level is an AmbiguousExpression error.
func ParseText(input string) ([]Node, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &textParser{toks: toks}
	if p.peek().kind == tokEOF {
		return nil, nil
	}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s", t)
	}
	return []Node{n}, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokNumber
	tokFieldRef
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	}
	return fmt.Sprintf("%q", t.text)
}

func lex(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case r == '[':
			toks = append(toks, token{tokLBracket, "[", i})
			i++
		case r == ']':
			toks = append(toks, token{tokRBracket, "]", i})
			i++
		case r == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case r == '\'' || r == '"':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(runes) {
				if runes[i] == r {
					// a doubled quote is an escaped quote
					if i+1 < len(runes) && runes[i+1] == r {
						b.WriteRune(r)
						i += 2
						continue
					}
					closed = true
					i++
					break
				}
				b.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, apierr.NewParseError("unterminated string starting at offset %d", start)
			}
			toks = append(toks, token{tokString, b.String(), start})
		case strings.ContainsRune("=!<>", r):
			start := i
			for i < len(runes) && strings.ContainsRune("=!<>", runes[i]) {
				i++
			}
			toks = append(toks, token{tokWord, string(runes[start:i]), start})
		case r == '-' || unicode.IsDigit(r):
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || strings.ContainsRune(".eE+-", runes[i])) {
				i++
			}
			text := string(runes[start:i])
			if _, err := json.Number(text).Float64(); err != nil {
				return nil, apierr.NewParseError("invalid number %q at offset %d", text, start)
			}
			toks = append(toks, token{tokNumber, text, start})
		case r == '@':
			start := i
			i++
			for i < len(runes) && isWordRune(runes[i]) {
				i++
			}
			if i == start+1 {
				return nil, apierr.NewParseError("expected a field name after '@' at offset %d", start)
			}
			toks = append(toks, token{tokFieldRef, string(runes[start+1 : i]), start})
		case isWordRune(r):
			start := i
			for i < len(runes) && isWordRune(runes[i]) {
				i++
			}
			toks = append(toks, token{tokWord, string(runes[start:i]), start})
		default:
			return nil, apierr.NewParseError("unexpected character %q at offset %d", r, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(runes)})
	return toks, nil
}

func isWordRune(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

type textParser struct {
	toks []token
	pos  int
}

func (p *textParser) peek() token { return p.toks[p.pos] }

func (p *textParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *textParser) errorf(t token, format string, args ...any) error {
	return apierr.NewParseError("%s at offset %d", fmt.Sprintf(format, args...), t.pos)
}

func junctionWord(t token) (JunctionKind, bool) {
	if t.kind != tokWord {
		return "", false
	}
	switch strings.ToLower(t.text) {
	case "and":
		return And, true
	case "or":
		return Or, true
	}
	return "", false
}

// parseExpr parses term { (and|or) term } where every connector at this
// level must be the same.
func (p *textParser) parseExpr() (Node, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	var kind JunctionKind
	children := []Node{first}
	for {
		t := p.peek()
		k, ok := junctionWord(t)
		if !ok {
			break
		}
		if kind != "" && k != kind {
			return nil, apierr.New(apierr.AmbiguousExpression,
				"%q and %q are mixed at the same level at offset %d; group them with parentheses", kind, k, t.pos)
		}
		kind = k
		p.next()
		term, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		children = append(children, term)
	}
	if kind == "" {
		return first, nil
	}
	return &Junction{Kind: kind, Children: children}, nil
}

func (p *textParser) parseTerm() (Node, error) {
	t := p.peek()
	if t.kind == tokLParen {
		p.next()
		if p.peek().kind == tokRParen {
			return nil, p.errorf(p.peek(), "empty group")
		}
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ')', got %s", closing)
		}
		return n, nil
	}
	return p.parseLeaf()
}

func (p *textParser) parseLeaf() (Node, error) {
	field := p.next()
	if field.kind != tokWord {
		return nil, p.errorf(field, "expected a field name, got %s", field)
	}
	if _, isJunction := junctionWord(field); isJunction {
		return nil, p.errorf(field, "expected a field name, got %s", field)
	}
	opTok := p.next()
	if opTok.kind != tokWord {
		return nil, p.errorf(opTok, "expected an operator after %q, got %s", field.text, opTok)
	}
	op, ok := lookupOperator(strings.ToLower(opTok.text))
	if !ok {
		return nil, apierr.NewParseError("unknown operator %q at offset %d", opTok.text, opTok.pos).WithField(field.text)
	}

	leaf := &Leaf{Field: field.text, Op: op.name}
	switch op.arity {
	case arityNone:
		return leaf, nil
	case aritySubExpression:
		open := p.peek()
		if open.kind != tokLParen {
			return nil, p.errorf(open, "%s on %q requires a parenthesized filter", op.name, field.text)
		}
		sub, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		leaf.Sub = sub
		return leaf, nil
	}

	// A missing value is left for the compiler to report.
	switch t := p.peek(); {
	case t.kind == tokEOF || t.kind == tokRParen:
		return leaf, nil
	case t.kind == tokFieldRef:
		p.next()
		leaf.OtherField = t.text
		return leaf, nil
	default:
		if _, isJunction := junctionWord(t); isJunction {
			return leaf, nil
		}
	}
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	leaf.Arg = v
	leaf.HasArg = true
	return leaf, nil
}

func (p *textParser) parseValue() (any, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		return json.Number(t.text), nil
	case tokWord:
		switch strings.ToLower(t.text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
		return t.text, nil
	case tokLBracket:
		items := []any{}
		if p.peek().kind == tokRBracket {
			p.next()
			return items, nil
		}
		for {
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			items = append(items, v)
			sep := p.next()
			if sep.kind == tokRBracket {
				return items, nil
			}
			if sep.kind != tokComma {
				return nil, p.errorf(sep, "expected ',' or ']' in list, got %s", sep)
			}
		}
	}
	return nil, p.errorf(t, "expected a value, got %s", t)
}
