package scan

import (
	"github.com/joeandaverde/litedb/tsql/lexer"
)

// Scanner navigates the token stream produced by the lexer, with
// backtracking support for combinator parsers.
type Scanner interface {
	Peek() lexer.Token
	Backup()
	Next() lexer.Token
	Commit(landmark string)
	Committed() string
	Pos() int
	// Offset is the byte offset of the farthest token reached, for
	// reporting where a parse stopped making progress.
	Offset() int
	Mark() (int, func())
	Range(int, int) []lexer.Token
	Reset()
	Text() string
}

// NewScanner returns a new Scanner over the input.
func NewScanner(input string) Scanner {
	sqlLexer := lexer.NewLexer(input)
	return &tokenScanner{
		tokens:   sqlLexer.Exec(),
		input:    input,
		items:    []lexer.Token{},
		position: 0,
	}
}

type tokenScanner struct {
	tokens    <-chan lexer.Token
	input     string
	items     []lexer.Token
	position  int
	farthest  int
	committed string
}

// Reset moves the scanner back to the start.
func (s *tokenScanner) Reset() {
	s.position = 0
	s.committed = ""
}

func (s *tokenScanner) Text() string {
	return s.input
}

func (s *tokenScanner) Committed() string {
	return s.committed
}

func (s *tokenScanner) Range(start int, end int) []lexer.Token {
	return s.items[start:end]
}

// Mark returns the position of the scanner and a function
// to reset the scanner back to the position.
func (s *tokenScanner) Mark() (int, func()) {
	position := s.position
	committed := s.committed
	return position, func() {
		s.position = position
		s.committed = committed
	}
}

func (s *tokenScanner) Peek() lexer.Token {
	token := s.Next()

	if s.position >= 1 {
		s.Backup()
	}

	return token
}

func (s *tokenScanner) Backup() {
	if s.position == 0 {
		return
	}
	s.position--
}

func (s *tokenScanner) Pos() int {
	return s.position
}

func (s *tokenScanner) Offset() int {
	if s.farthest < len(s.items) {
		return s.items[s.farthest].Position
	}
	if n := len(s.items); n > 0 {
		return s.items[n-1].Position
	}
	return 0
}

func (s *tokenScanner) Next() lexer.Token {
	var token lexer.Token

	if s.position >= len(s.items) {
		token, more := <-s.tokens
		if !more {
			// The lexer closes the channel after EOF or an error;
			// keep handing back the final token.
			if len(s.items) > 0 {
				return s.items[len(s.items)-1]
			}
			return lexer.Token{Kind: lexer.TokenEOF}
		}
		s.items = append(s.items, token)
	}

	token = s.items[s.position]
	s.position++
	if s.position > s.farthest {
		s.farthest = s.position
	}

	return token
}

func (s *tokenScanner) Commit(landmark string) {
	s.committed = landmark
}
