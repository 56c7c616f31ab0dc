package compiler

import (
	"strings"

	"github.com/tdewolff/parse/v2/css"
	"github.com/yacobolo/stylebuild/internal/syntax"
)

// Statement tree produced by the parser. Values stay as token slices because
// variables are substituted during evaluation, when their scope is known.

type node interface{}

type declNode struct {
	prop  string
	value []syntax.Token
	pos   syntax.Token
}

type varNode struct {
	name      string
	value     []syntax.Token
	isDefault bool
	pos       syntax.Token
}

type ruleNode struct {
	selector []syntax.Token
	children []node
	pos      syntax.Token
}

type atNode struct {
	name     string // lower-cased, including '@'
	prelude  []syntax.Token
	children []node
	hasBlock bool
	pos      syntax.Token
}

type importNode struct {
	targets []syntax.Import
	pos     syntax.Token
}

type commentNode struct {
	text string
}

// parser is a recursive descent parser over the tokens of one file.
type parser struct {
	tokens []syntax.Token
	pos    int
	file   string
	opts   Options
	fail   func(tok syntax.Token, file, format string, args ...any) *Error
}

func (p *parser) eof() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) peek() syntax.Token {
	return p.tokens[p.pos]
}

func (p *parser) skipWhitespace() {
	for !p.eof() && p.peek().Type == css.WhitespaceToken {
		p.pos++
	}
}

func (p *parser) errorf(tok syntax.Token, format string, args ...any) *Error {
	return p.fail(tok, p.file, format, args...)
}

// parseStylesheet parses the whole token stream.
func (p *parser) parseStylesheet() ([]node, error) {
	return p.parseBlock(nil, false)
}

// parseBlock parses statements until EOF (top level) or the closing brace of
// the block opened by open.
func (p *parser) parseBlock(open *syntax.Token, inRule bool) ([]node, error) {
	var nodes []node
	for {
		p.skipWhitespace()
		if p.eof() {
			if open != nil {
				return nil, p.errorf(*open, "unclosed block: missing '}'")
			}
			return nodes, nil
		}

		tok := p.peek()
		switch {
		case tok.Type == css.RightBraceToken:
			if open == nil {
				return nil, p.errorf(tok, "unexpected '}'")
			}
			p.pos++
			return nodes, nil

		case tok.Type == css.SemicolonToken:
			p.pos++

		case tok.Type == css.CommentToken:
			p.pos++
			nodes = append(nodes, commentNode{text: tok.Text})

		case tok.Type == css.AtKeywordToken:
			n, err := p.parseAtRule(inRule)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)

		case tok.Is('$') && p.pos+1 < len(p.tokens) && p.tokens[p.pos+1].Type == css.IdentToken:
			if p.opts.Dialect == syntax.DialectCSS {
				return nil, p.errorf(tok, "variables are not supported in plain CSS")
			}
			n, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)

		default:
			n, err := p.parseRuleOrDecl(inRule)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
	}
}

// collect gathers tokens up to a ';', '{' or '}' outside parentheses and
// brackets. The terminator is not consumed.
func (p *parser) collect() []syntax.Token {
	var out []syntax.Token
	depth := 0
	for !p.eof() {
		tok := p.peek()
		switch tok.Type {
		case css.LeftParenthesisToken, css.FunctionToken, css.LeftBracketToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			if depth > 0 {
				depth--
			}
		case css.SemicolonToken, css.LeftBraceToken, css.RightBraceToken:
			if depth == 0 {
				return out
			}
		}
		out = append(out, tok)
		p.pos++
	}
	return out
}

func (p *parser) parseVariable() (node, error) {
	start := p.peek()
	p.pos++ // $
	name := p.peek().Text
	p.pos++
	p.skipWhitespace()
	if p.eof() || p.peek().Type != css.ColonToken {
		return nil, p.errorf(start, "expected ':' after $%s", name)
	}
	p.pos++

	value := p.collect()
	if p.eof() && len(value) == 0 {
		return nil, p.errorf(start, "missing value for $%s", name)
	}
	if !p.eof() && p.peek().Type == css.SemicolonToken {
		p.pos++
	}

	value, isDefault := stripDefaultFlag(value)
	if len(trimTokens(value)) == 0 {
		return nil, p.errorf(start, "missing value for $%s", name)
	}
	return varNode{name: name, value: trimTokens(value), isDefault: isDefault, pos: start}, nil
}

// stripDefaultFlag removes a trailing "!default" from a variable value.
func stripDefaultFlag(value []syntax.Token) ([]syntax.Token, bool) {
	v := trimTokens(value)
	n := len(v)
	if n >= 2 && v[n-2].Is('!') && v[n-1].Type == css.IdentToken && strings.EqualFold(v[n-1].Text, "default") {
		return v[:n-2], true
	}
	return value, false
}

func (p *parser) parseAtRule(inRule bool) (node, error) {
	start := p.peek()
	name := strings.ToLower(start.Text)
	p.pos++

	if name == "@import" {
		targets, end := syntax.ImportTargets(p.tokens, p.pos)
		if len(targets) == 0 {
			return nil, p.errorf(start, "@import requires a file name")
		}
		p.pos = end
		if !p.eof() {
			switch p.peek().Type {
			case css.SemicolonToken:
				p.pos++
			case css.LeftBraceToken:
				return nil, p.errorf(p.peek(), "expected ';' after @import")
			}
		}
		return importNode{targets: targets, pos: start}, nil
	}

	prelude := trimTokens(p.collect())
	if p.eof() {
		return atNode{name: name, prelude: prelude, pos: start}, nil
	}

	switch tok := p.peek(); tok.Type {
	case css.SemicolonToken:
		p.pos++
		return atNode{name: name, prelude: prelude, pos: start}, nil
	case css.RightBraceToken:
		return atNode{name: name, prelude: prelude, pos: start}, nil
	default: // '{'
		p.pos++
		children, err := p.parseBlock(&tok, inRule)
		if err != nil {
			return nil, err
		}
		return atNode{name: name, prelude: prelude, children: children, hasBlock: true, pos: start}, nil
	}
}

func (p *parser) parseRuleOrDecl(inRule bool) (node, error) {
	start := p.peek()
	tokens := p.collect()

	if !p.eof() && p.peek().Type == css.LeftBraceToken {
		open := p.peek()
		if inRule && p.opts.Dialect == syntax.DialectCSS {
			return nil, p.errorf(start, "nested rules are not supported in plain CSS")
		}
		selector := trimTokens(tokens)
		if len(selector) == 0 {
			return nil, p.errorf(open, "expected selector before '{'")
		}
		p.pos++
		children, err := p.parseBlock(&open, true)
		if err != nil {
			return nil, err
		}
		return ruleNode{selector: selector, children: children, pos: start}, nil
	}

	if !p.eof() && p.peek().Type == css.SemicolonToken {
		p.pos++
	}

	colon := -1
	for i, tok := range tokens {
		if tok.Type == css.ColonToken {
			colon = i
			break
		}
	}
	if colon < 0 {
		if p.eof() {
			return nil, p.errorf(start, "unexpected end of input: expected '{' or ';'")
		}
		return nil, p.errorf(start, "expected ':' in declaration %q", tokensText(trimTokens(tokens), false))
	}

	prop := tokensText(trimTokens(tokens[:colon]), false)
	if prop == "" {
		return nil, p.errorf(start, "missing property name")
	}
	value := trimTokens(tokens[colon+1:])
	if len(value) == 0 {
		return nil, p.errorf(start, "missing value for property %q", prop)
	}
	return declNode{prop: prop, value: value, pos: start}, nil
}

// trimTokens drops leading and trailing whitespace and comments.
func trimTokens(tokens []syntax.Token) []syntax.Token {
	skip := func(t syntax.Token) bool {
		return t.Type == css.WhitespaceToken || t.Type == css.CommentToken
	}
	for len(tokens) > 0 && skip(tokens[0]) {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && skip(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// tokensText joins tokens, collapsing whitespace runs to one space and
// dropping comments. compact also drops spaces after commas.
func tokensText(tokens []syntax.Token, compact bool) string {
	var b strings.Builder
	pendingSpace := false
	for _, tok := range tokens {
		switch tok.Type {
		case css.WhitespaceToken, css.CommentToken:
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			prev := b.String()[b.Len()-1]
			if !(compact && (prev == ',' || tok.Type == css.CommaToken)) {
				b.WriteByte(' ')
			}
			pendingSpace = false
		}
		b.WriteString(tok.Text)
	}
	return b.String()
}
