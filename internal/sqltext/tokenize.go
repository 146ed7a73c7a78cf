// Package sqltext splits SQL text into tokens for static checks. It understands string
// literals, quoted identifiers and comments well enough that keywords inside them are
// never mistaken for code; it is not a parser.
package sqltext

import (
	"fmt"
	"strings"
	"unicode"
)

type Kind int

const (
	Word Kind = iota + 1
	QuotedIdent
	String
	Number
	Symbol
)

type Token struct {
	Kind Kind
	// Text is the token as written, without quotes for strings and quoted identifiers.
	Text string
	Pos  int
}

// Lower returns the lowercased text. SQL identifiers and keywords compare case-insensitively.
func (t Token) Lower() string {
	return strings.ToLower(t.Text)
}

// IsIdent reports whether the token names something: a bare word or a quoted identifier.
func (t Token) IsIdent() bool {
	return t.Kind == Word || t.Kind == QuotedIdent
}

func (t Token) Is(symbol string) bool {
	return t.Kind == Symbol && t.Text == symbol
}

// Tokenize returns the code tokens of sql, dropping whitespace and comments.
func Tokenize(sql string) ([]Token, error) {
	runes := []rune(sql)
	tokens := make([]Token, 0, len(runes)/4)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			end := closingComment(runes, i+2)
			if end < 0 {
				return nil, fmt.Errorf("unterminated block comment at offset %d", i)
			}
			i = end + 2
		case r == '\'':
			text, next, err := readQuoted(runes, i, '\'')
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Kind: String, Text: text, Pos: i})
			i = next
		case r == '"':
			text, next, err := readQuoted(runes, i, '"')
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Kind: QuotedIdent, Text: text, Pos: i})
			i = next
		case isWordStart(r):
			start := i
			for i < len(runes) && isWordPart(runes[i]) {
				i++
			}
			tokens = append(tokens, Token{Kind: Word, Text: string(runes[start:i]), Pos: start})
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == '_' ||
				runes[i] == 'e' || runes[i] == 'E') {
				i++
			}
			tokens = append(tokens, Token{Kind: Number, Text: string(runes[start:i]), Pos: start})
		default:
			tokens = append(tokens, Token{Kind: Symbol, Text: string(r), Pos: i})
			i++
		}
	}
	return tokens, nil
}

func readQuoted(runes []rune, start int, quote rune) (string, int, error) {
	var b strings.Builder
	for i := start + 1; i < len(runes); i++ {
		if runes[i] != quote {
			b.WriteRune(runes[i])
			continue
		}
		if i+1 < len(runes) && runes[i+1] == quote {
			b.WriteRune(quote)
			i++
			continue
		}
		return b.String(), i + 1, nil
	}
	return "", 0, fmt.Errorf("unterminated quoted text at offset %d", start)
}

func closingComment(runes []rune, from int) int {
	for i := from; i+1 < len(runes); i++ {
		if runes[i] == '*' && runes[i+1] == '/' {
			return i
		}
	}
	return -1
}

func isWordStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isWordPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
