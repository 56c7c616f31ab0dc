package syntax

import (
	"strings"

	"github.com/tdewolff/parse/v2/css"
)

// Import is one target of an @import directive.
type Import struct {
	Target string
	Line   int
	Col    int
	// Plain imports (url(...), remote URLs) stay in the output as CSS @import
	// rules and are not template dependencies.
	Plain bool
}

// Imports returns the @import targets found in tokens, in source order.
func Imports(tokens []Token) []Import {
	var imports []Import
	for i := 0; i < len(tokens); i++ {
		if tokens[i].Type != css.AtKeywordToken || !strings.EqualFold(tokens[i].Text, "@import") {
			continue
		}
		var targets []Import
		targets, i = ImportTargets(tokens, i+1)
		imports = append(imports, targets...)
	}
	return imports
}

// ImportTargets reads the comma separated targets of an @import directive
// starting at tokens[start] and returns them with the index of the
// terminating semicolon (or the last token consumed).
func ImportTargets(tokens []Token, start int) ([]Import, int) {
	var targets []Import
	i := start
	for ; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.Type {
		case css.SemicolonToken, css.LeftBraceToken, css.RightBraceToken:
			return targets, i
		case css.StringToken:
			target := Unquote(tok.Text)
			targets = append(targets, Import{
				Target: target,
				Line:   tok.Line,
				Col:    tok.Col,
				Plain:  isPlainTarget(target),
			})
		case css.URLToken:
			targets = append(targets, Import{Target: tok.Text, Line: tok.Line, Col: tok.Col, Plain: true})
		case css.FunctionToken:
			if !strings.EqualFold(tok.Text, "url(") {
				continue
			}
			// quoted url("...") is lexed as a function; consume up to the closing paren
			text := tok.Text
			for i+1 < len(tokens) && tokens[i].Type != css.RightParenthesisToken {
				i++
				text += tokens[i].Text
			}
			targets = append(targets, Import{Target: text, Line: tok.Line, Col: tok.Col, Plain: true})
		}
	}
	return targets, i
}

// isPlainTarget reports whether an import target refers to a remote stylesheet.
func isPlainTarget(target string) bool {
	return strings.HasPrefix(target, "http://") ||
		strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "//")
}

// Unquote strips the surrounding quotes of a CSS string token and resolves
// backslash escapes of quote characters.
func Unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	if strings.Contains(s, `\`) {
		s = strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\\`, `\`).Replace(s)
	}
	return s
}
