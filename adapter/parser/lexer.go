package parser

import (
	"strconv"
	"strings"

	"github.com/nestdb/nestdb/domain"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokVar
	tokNumber
	tokString
	tokOp
	tokPunct
	tokHint
)

type token struct {
	kind tokenKind
	text string
	pos  int
	// decoded value for number and string tokens
	val any
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) errorf(pos int, near, msg string) error {
	return &domain.ErrParse{Pos: pos, Near: near, Msg: msg}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '/' && strings.HasPrefix(l.src[l.pos:], "/*+"):
		end := strings.Index(l.src[l.pos:], "*/")
		if end < 0 {
			return token{}, l.errorf(start, "/*+", "unterminated hint")
		}
		text := strings.TrimSpace(l.src[l.pos+3 : l.pos+end])
		l.pos += end + 2
		return token{kind: tokHint, text: text, pos: start}, nil

	case c == '$':
		l.pos++
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		if l.pos == start+1 {
			return token{}, l.errorf(start, "$", "expected variable name after $")
		}
		return token{kind: tokVar, text: l.src[start:l.pos], pos: start}, nil

	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil

	case c >= '0' && c <= '9' || c == '-' && l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9':
		return l.lexNumber()

	case c == '"' || c == '\'':
		return l.lexString(c)

	case c == '!':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokOp, text: "!=", pos: start}, nil
		}
		return token{}, l.errorf(start, "!", "expected != operator")

	case c == '<' || c == '>':
		l.pos++
		if l.pos < len(l.src) && l.src[l.pos] == '=' {
			l.pos++
		}
		return token{kind: tokOp, text: l.src[start:l.pos], pos: start}, nil

	case c == '=':
		l.pos++
		return token{kind: tokOp, text: "=", pos: start}, nil

	case strings.IndexByte("()[]{},.:*", c) >= 0:
		l.pos++
		return token{kind: tokPunct, text: string(c), pos: start}, nil
	}

	return token{}, l.errorf(start, string(c), "unexpected character")
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}
	float := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c >= '0' && c <= '9' {
			l.pos++
			continue
		}
		// a dot only belongs to the number when a digit follows,
		// otherwise it is a path separator as in 15.seriesInfo
		if c == '.' && !float && l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
			float = true
			l.pos++
			continue
		}
		if c == 'e' || c == 'E' {
			float = true
			l.pos++
			if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
				l.pos++
			}
			continue
		}
		break
	}
	text := l.src[start:l.pos]
	if !float {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return token{kind: tokNumber, text: text, pos: start, val: n}, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, l.errorf(start, text, "malformed number")
	}
	return token{kind: tokNumber, text: text, pos: start, val: f}, nil
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case quote:
			l.pos++
			return token{kind: tokString, text: l.src[start:l.pos], pos: start, val: b.String()}, nil
		case '\\':
			l.pos++
			if l.pos >= len(l.src) {
				return token{}, l.errorf(start, l.src[start:], "unterminated string")
			}
			switch e := l.src[l.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '"', '\'':
				b.WriteByte(e)
			default:
				return token{}, l.errorf(l.pos, string(e), "unknown escape character")
			}
			l.pos++
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return token{}, l.errorf(start, l.src[start:], "unterminated string")
}
