// Package scanner tokenizes simplang source text.
//
// The lexer definition is shared with the parser; Scanner exposes it as a
// lazy token stream that can be restarted from the beginning.
package scanner

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2/lexer"
)

// Kind classifies a token.
type Kind int

const (
	EOF Kind = iota
	Integer
	Ident
	Keyword
	Operator
)

func (k Kind) String() string {
	switch k {
	case EOF:
		return "eof"
	case Integer:
		return "integer"
	case Ident:
		return "identifier"
	case Keyword:
		return "keyword"
	case Operator:
		return "operator"
	}
	return "?"
}

// Keywords in declaration order.
var Keywords = []string{"let", "and", "in", "if", "then", "else", "recur", "loop", "end", "fun"}

// Operators in declaration order.
var Operators = []string{"(", ")", "!", "-", "<", "+", "*", "&&", "||", "==", "="}

// Definition is the lexer shared by Scanner and the parser.
var Definition = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Keyword", Pattern: `(?:let|and|in|if|then|else|recur|loop|end|fun)\b`},
	{Name: "Integer", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Operator", Pattern: `&&|\|\||==|[()!<+*=-]`},
})

var (
	ErrInvalidCharacter = errors.New("invalid character")
	ErrIntegerRange     = errors.New("integer literal out of range")
)

var kinds = func() map[lexer.TokenType]Kind {
	syms := Definition.Symbols()
	return map[lexer.TokenType]Kind{
		lexer.EOF:          EOF,
		syms["Integer"]:    Integer,
		syms["Ident"]:      Ident,
		syms["Keyword"]:    Keyword,
		syms["Operator"]:   Operator,
		syms["Whitespace"]: -1,
	}
}()

// Token is one lexeme.
type Token struct {
	Kind Kind
	Text string
	Int  int64 // value of an Integer token
	Pos  lexer.Position
}

// String renders the token the way the token dump prints it.
func (t Token) String() string {
	switch t.Kind {
	case EOF:
		return "eof"
	case Integer:
		return fmt.Sprintf("integer %d", t.Int)
	}
	return t.Kind.String() + " " + t.Text
}

// Scanner produces tokens on demand.
type Scanner struct {
	name   string
	source string
	lex    lexer.Lexer
	done   bool
}

// New creates a scanner over source; name is used in positions.
func New(name, source string) *Scanner {
	s := &Scanner{name: name, source: source}
	s.Reset()
	return s
}

// Reset restarts the token stream from the beginning of the source.
func (s *Scanner) Reset() {
	// LexString on an in-memory string cannot fail.
	s.lex, _ = Definition.LexString(s.name, s.source)
	s.done = false
}

// Next returns the next token. Once the end is reached it keeps returning
// EOF.
func (s *Scanner) Next() (Token, error) {
	if s.done {
		return Token{Kind: EOF}, nil
	}
	for {
		tok, err := s.lex.Next()
		if err != nil {
			return Token{}, fmt.Errorf("%w: %v", ErrInvalidCharacter, err)
		}
		kind := kinds[tok.Type]
		switch kind {
		case -1:
			continue
		case EOF:
			s.done = true
			return Token{Kind: EOF, Pos: tok.Pos}, nil
		case Integer:
			v, err := strconv.ParseInt(tok.Value, 10, 64)
			if err != nil {
				return Token{}, fmt.Errorf("%s: %w: %s", tok.Pos, ErrIntegerRange, tok.Value)
			}
			return Token{Kind: Integer, Text: tok.Value, Int: v, Pos: tok.Pos}, nil
		}
		return Token{Kind: kind, Text: tok.Value, Pos: tok.Pos}, nil
	}
}

// All scans the remaining tokens, excluding the final EOF.
func (s *Scanner) All() ([]Token, error) {
	var toks []Token
	for {
		tok, err := s.Next()
		if err != nil {
			return toks, err
		}
		if tok.Kind == EOF {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}
