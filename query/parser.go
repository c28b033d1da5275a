package query

import (
	"github.com/emberai/search-bridge/errors"
	"github.com/emberai/search-bridge/schema"
)

// Parse builds a Query from the string grammar, validated against the
// schema. Terms without a field prefix search defaultFields; when none are
// given, every indexed text field is a default.
//
// Grammar (version 1): terms, "phrases", AND/OR/NOT, parentheses,
// field:term scoping, and field:[min TO max] ranges ('{' and '}' make a
// bound exclusive, '*' leaves it open). Parse failures report the byte
// offset of the offending input.
func Parse(s *schema.Schema, src string, defaultFields ...string) (*Query, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}

	if p.peek().kind == tokEOF {
		return nil, errors.ParseFailed(0, "empty query")
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, errors.ParseFailed(tok.pos, "unexpected %q", tok.text)
	}

	native, err := compile(s, root, defaultFields)
	if err != nil {
		return nil, err
	}
	return &Query{root: root, native: native, src: src}, nil
}

// FromTree validates a host-built structured tree against the schema and
// builds a Query from it.
func FromTree(s *schema.Schema, root Node, defaultFields ...string) (*Query, error) {
	if root == nil {
		return nil, errors.New(errors.PhaseQuery, errors.KindQueryParse).
			Detail("nil query tree").
			Build()
	}
	native, err := compile(s, root, defaultFields)
	if err != nil {
		return nil, err
	}
	return &Query{root: root, native: native}, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	tok := p.toks[p.i]
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	items := []Node{left}
	for p.peek().kind == tokWord && p.peek().text == "OR" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		items = append(items, right)
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return Bool{Should: items}, nil
}

func (p *parser) parseAnd() (Node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	items := []Node{first}
	for {
		tok := p.peek()
		if tok.kind == tokWord && tok.text == "AND" {
			p.next()
			tok = p.peek()
		} else if !startsClause(tok) {
			break
		}
		item, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if len(items) == 1 {
		return items[0], nil
	}

	// Fold negated clauses into the conjunction rather than nesting them.
	var b Bool
	for _, item := range items {
		if neg, ok := item.(Bool); ok && len(neg.Must) == 0 && len(neg.Should) == 0 {
			b.MustNot = append(b.MustNot, neg.MustNot...)
			continue
		}
		b.Must = append(b.Must, item)
	}
	return b, nil
}

// startsClause reports whether tok can begin a new conjunct (implicit AND).
func startsClause(tok token) bool {
	switch tok.kind {
	case tokString, tokLParen:
		return true
	case tokWord:
		return tok.text != "OR" && tok.text != "AND" && tok.text != "TO"
	}
	return false
}

func (p *parser) parseUnary() (Node, error) {
	if tok := p.peek(); tok.kind == tokWord && tok.text == "NOT" {
		p.next()
		sub, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Bool{MustNot: []Node{sub}}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, errors.ParseFailed(tok.pos, "unclosed group")
		}
		return inner, nil

	case tokString:
		return Phrase{Text: tok.text}, nil

	case tokWord:
		if tok.text == "AND" || tok.text == "OR" || tok.text == "NOT" || tok.text == "TO" {
			return nil, errors.ParseFailed(tok.pos, "unexpected reserved word %q", tok.text)
		}
		if p.peek().kind != tokColon {
			return Term{Text: tok.text}, nil
		}
		p.next() // consume ':'
		return p.parseScoped(tok.text, tok.pos)

	case tokLBracket, tokLBrace:
		return nil, errors.ParseFailed(tok.pos, "range query requires a field prefix")

	case tokEOF:
		return nil, errors.ParseFailed(tok.pos, "unexpected end of query")
	}
	return nil, errors.ParseFailed(tok.pos, "unexpected %q", tok.text)
}

// parseScoped parses the clause following "field:".
func (p *parser) parseScoped(field string, fieldPos int) (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokWord:
		if tok.text == "AND" || tok.text == "OR" || tok.text == "NOT" || tok.text == "TO" {
			return nil, errors.ParseFailed(tok.pos, "reserved word %q cannot be a term", tok.text)
		}
		return Term{Field: field, Text: tok.text}, nil

	case tokString:
		return Phrase{Field: field, Text: tok.text}, nil

	case tokLBracket, tokLBrace:
		return p.parseRange(field, tok)

	case tokEOF:
		return nil, errors.ParseFailed(fieldPos, "field %q has no clause", field)
	}
	return nil, errors.ParseFailed(tok.pos, "unexpected %q after field prefix", tok.text)
}

func (p *parser) parseRange(field string, open token) (Node, error) {
	r := Range{Field: field, MinInclusive: open.kind == tokLBracket}

	min, err := p.bound(open)
	if err != nil {
		return nil, err
	}
	r.Min = min

	if to := p.next(); to.kind != tokWord || to.text != "TO" {
		return nil, errors.ParseFailed(open.pos, "range wants 'TO' between bounds")
	}

	max, err := p.bound(open)
	if err != nil {
		return nil, err
	}
	r.Max = max

	switch closing := p.next(); closing.kind {
	case tokRBracket:
		r.MaxInclusive = true
	case tokRBrace:
		r.MaxInclusive = false
	default:
		return nil, errors.ParseFailed(open.pos, "unclosed range")
	}
	return r, nil
}

func (p *parser) bound(open token) (string, error) {
	tok := p.next()
	switch tok.kind {
	case tokWord:
		if tok.text == "*" {
			return "", nil
		}
		return tok.text, nil
	case tokString:
		return tok.text, nil
	}
	return "", errors.ParseFailed(open.pos, "range bound missing")
}
