package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const eof = -1

type stateFn func(*Lexer) stateFn

// Lexer produces tokens from input
type Lexer struct {
	items chan Token
	input string
	start int
	pos   int
	width int
}

// NewLexer initializes a lexer with input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input: input,
		items: make(chan Token),
	}
}

// Exec starts producing tokens
func (l *Lexer) Exec() <-chan Token {
	go func() {
		defer close(l.items)
		for state := lexLiteSQL; state != nil; {
			state = state(l)
		}
	}()

	return l.items
}

func lexWhiteSpace(l *Lexer) stateFn {
	for isWhiteSpace(l.peek()) {
		l.next()
	}

	l.emit(TokenWhiteSpace)

	return lexLiteSQL
}

// lexNumber scans an integer or decimal literal.
func lexNumber(l *Lexer) stateFn {
	for unicode.IsDigit(l.peek()) {
		l.next()
	}

	if l.peek() == '.' && unicode.IsDigit(l.peek2()) {
		l.next()
		for unicode.IsDigit(l.peek()) {
			l.next()
		}
	}

	l.emit(TokenNumber)

	return lexLiteSQL
}

func lexWord(l *Lexer) stateFn {
	for {
		r := l.next()

		if isAlphaNumeric(r) {
			continue
		}

		l.backup()

		value := l.input[l.start:l.pos]
		if kind, ok := keywords[strings.ToUpper(value)]; ok {
			l.emit(kind)
		} else {
			l.emit(TokenIdentifier)
		}

		return lexLiteSQL
	}
}

func lexSymbol(l *Lexer) stateFn {
	switch r := l.peek(); r {
	case '>':
		l.next()

		if l.next() == '=' {
			l.emit(TokenGte)
		} else {
			l.backup()
			l.emit(TokenGt)
		}
	case '<':
		l.next()

		switch l.next() {
		case '=':
			l.emit(TokenLte)
		case '>':
			l.emit(TokenNotEq)
		default:
			l.backup()
			l.emit(TokenLt)
		}
	case '=':
		l.next()
		l.emit(TokenEquals)
	case '!':
		if l.peek2() == '=' {
			l.next()
			l.next()
			l.emit(TokenNotEq)
		} else {
			return nil
		}
	case '*':
		l.next()
		l.emit(TokenAsterisk)
	case '+':
		l.next()
		l.emit(TokenPlus)
	case '-':
		l.next()
		l.emit(TokenMinus)
	case '/':
		l.next()
		l.emit(TokenDivide)
	case '%':
		l.next()
		l.emit(TokenModulo)
	case '(':
		l.next()
		l.emit(TokenOpenParen)
	case ')':
		l.next()
		l.emit(TokenCloseParen)
	case ',':
		l.next()
		l.emit(TokenComma)
	default:
		return nil
	}

	return lexLiteSQL
}

// lexString scans a single-quoted string literal. A doubled quote inside
// the literal is an escaped quote.
func lexString(l *Lexer) stateFn {
	if p := l.peek(); p != '\'' {
		return nil
	}
	l.next()

	for {
		switch l.next() {
		case '\'':
			if l.peek() == '\'' {
				l.next()
				continue
			}
			l.emit(TokenString)
			return lexLiteSQL
		case eof:
			return l.errorf("unterminated string")
		}
	}
}

func lexLiteSQL(l *Lexer) stateFn {
	r := l.peek()

	if r == eof {
		l.emit(TokenEOF)
	} else if isWhiteSpace(r) {
		return lexWhiteSpace(l)
	} else if resume := lexSymbol(l); resume != nil {
		return resume
	} else if resume := lexString(l); resume != nil {
		return resume
	} else if unicode.IsDigit(r) {
		return lexNumber(l)
	} else if isAlphaNumeric(r) {
		return lexWord(l)
	} else {
		return l.errorf("unexpected character %q", string(r))
	}

	return nil
}

func (l *Lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

func (l *Lexer) peek2() rune {
	if l.peek() == eof {
		return eof
	}

	l.next()
	r := l.peek()
	l.backup()

	return r
}

func (l *Lexer) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		return eof
	}

	r, width := utf8.DecodeRuneInString(l.input[l.pos:])

	l.width = width
	l.pos += l.width

	return r
}

func (l *Lexer) errorf(format string, args ...interface{}) stateFn {
	l.items <- Token{
		Kind:     TokenError,
		Text:     fmt.Sprintf(format, args...),
		Position: l.start,
	}

	return nil
}

func (l *Lexer) backup() {
	l.pos -= l.width
}

func (l *Lexer) emit(kind Kind) {
	l.items <- Token{
		Kind:     kind,
		Text:     l.input[l.start:l.pos],
		Position: l.start,
	}
	l.start = l.pos
}

func isAlphaNumeric(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isWhiteSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
