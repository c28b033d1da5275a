package query

import (
	"strings"

	"github.com/emberai/search-bridge/errors"
)

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokWord
	tokString
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokColon
)

// token carries its byte offset into the source for error reporting.
type token struct {
	kind tokKind
	text string
	pos  int
}

// wordBreak are the bytes that terminate a bare word.
const wordBreak = " \t\r\n():\"[]{}"

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '[':
			toks = append(toks, token{tokLBracket, "[", i})
			i++
		case c == ']':
			toks = append(toks, token{tokRBracket, "]", i})
			i++
		case c == '{':
			toks = append(toks, token{tokLBrace, "{", i})
			i++
		case c == '}':
			toks = append(toks, token{tokRBrace, "}", i})
			i++
		case c == ':':
			toks = append(toks, token{tokColon, ":", i})
			i++
		case c == '"':
			start := i
			i++
			j := strings.IndexByte(src[i:], '"')
			if j < 0 {
				return nil, errors.ParseFailed(start, "unterminated phrase")
			}
			toks = append(toks, token{tokString, src[i : i+j], start})
			i += j + 1
		default:
			start := i
			for i < len(src) && strings.IndexByte(wordBreak, src[i]) < 0 {
				i++
			}
			toks = append(toks, token{tokWord, src[start:i], start})
		}
	}
	toks = append(toks, token{tokEOF, "", len(src)})
	return toks, nil
}
