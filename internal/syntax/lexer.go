// Package syntax tokenizes stylesheet templates on top of the tdewolff CSS
// lexer and extracts @import directives. It is shared by the source resolver,
// which only needs the import list, and by the compiler.
package syntax

import (
	"strings"
	"unicode/utf8"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Dialect selects the authoring syntax of a template.
type Dialect string

const (
	// DialectSCSS allows // comments, $variables and nested rules.
	DialectSCSS Dialect = "scss"
	// DialectCSS is plain CSS plus @import inlining.
	DialectCSS Dialect = "css"
)

// ParseDialect maps a configuration value to a Dialect. Unknown values yield false.
func ParseDialect(s string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scss", "":
		return DialectSCSS, true
	case "css":
		return DialectCSS, true
	}
	return "", false
}

// Token is a lexer token with its 1-based position in the template.
type Token struct {
	Type css.TokenType
	Text string
	Line int
	Col  int
}

// Is reports whether the token is a delimiter equal to ch.
func (t Token) Is(ch byte) bool {
	return t.Type == css.DelimToken && len(t.Text) == 1 && t.Text[0] == ch
}

// Tokenize lexes content. For the SCSS dialect // line comments are blanked
// out first so that positions of the remaining tokens are preserved.
func Tokenize(content string, dialect Dialect) []Token {
	if dialect != DialectCSS {
		content = StripLineComments(content)
	}

	lexer := css.NewLexer(parse.NewInputString(content))
	line, col := 1, 1

	var tokens []Token
	for {
		tt, text := lexer.Next()
		if tt == css.ErrorToken {
			// EOF or an unrecoverable input error; either way the stream ends here
			break
		}
		tokens = append(tokens, Token{Type: tt, Text: string(text), Line: line, Col: col})
		line, col = advance(text, line, col)
	}
	return tokens
}

// advance moves a line/column position past text.
func advance(text []byte, line, col int) (int, int) {
	for len(text) > 0 {
		r, size := utf8.DecodeRune(text)
		text = text[size:]
		if r == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

// StripLineComments replaces // comments with spaces. Slashes inside strings,
// block comments and url(...) are left alone.
func StripLineComments(content string) string {
	if !strings.Contains(content, "//") {
		return content
	}

	b := []byte(content)
	var (
		quote   byte
		inBlock bool
		inURL   bool
	)
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote || c == '\n' {
				quote = 0
			}
		case inBlock:
			if c == '*' && i+1 < len(b) && b[i+1] == '/' {
				inBlock = false
				i++
			}
		case inURL:
			if c == ')' {
				inURL = false
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '/' && i+1 < len(b) && b[i+1] == '*':
			inBlock = true
			i++
		case c == '/' && i+1 < len(b) && b[i+1] == '/':
			for i < len(b) && b[i] != '\n' {
				b[i] = ' '
				i++
			}
		case c == '(' && i >= 3 && strings.EqualFold(string(b[i-3:i]), "url"):
			inURL = true
		}
	}
	return string(b)
}
