package compiler

import (
	"fmt"
	"strings"

	"github.com/tdewolff/parse/v2/css"
	"github.com/yacobolo/stylebuild/internal/syntax"
)

// Flattened output, ready to render.

type item interface{}

type outDecl struct {
	prop    string
	value   string
	comment string // set instead of prop/value for comments kept inside blocks
}

type outRule struct {
	selectors []string
	decls     []outDecl
	depth     int // nesting depth in the source, used by the nested style
	line      int
	file      string
}

type outAt struct {
	name     string
	prelude  string
	hasBlock bool
	decls    []outDecl
	items    []item
	depth    int
	line     int
	file     string
}

type outComment struct {
	text  string
	depth int
}

// unsupported lists directives of the full Sass language that this compiler rejects.
var unsupported = map[string]bool{
	"@mixin": true, "@include": true, "@extend": true, "@function": true, "@return": true,
	"@if": true, "@else": true, "@each": true, "@for": true, "@while": true,
	"@use": true, "@forward": true, "@debug": true, "@warn": true, "@error": true,
}

// bubbling directives move out of the rule they are nested in and wrap a copy of it.
var bubbling = map[string]bool{
	"@media": true, "@supports": true, "@document": true, "@container": true, "@layer": true,
}

type scope struct {
	vars   map[string]string
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: make(map[string]string), parent: parent}
}

func (s *scope) lookup(name string) (string, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return "", false
}

// assign updates name in the nearest scope that defines it, or defines it locally.
func (s *scope) assign(name, value string) {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = value
			return
		}
	}
	s.vars[name] = value
}

// evalContext is the position of the evaluator in the output tree.
type evalContext struct {
	selectors []string // resolved selectors of the enclosing rule, nil at top level
	rule      *outRule // receives declarations
	at        *outAt   // receives declarations when there is no rule
	sink      *[]item
	scope     *scope
	depth     int
	file      string
}

type evaluator struct {
	root    Source
	imports map[string]Source
	opts    Options
	stack   []string
}

func newEvaluator(root Source, imports map[string]Source, opts Options) *evaluator {
	return &evaluator{root: root, imports: imports, opts: opts}
}

func (ev *evaluator) fail(tok syntax.Token, file, format string, args ...any) *Error {
	return &Error{
		TemplateID: ev.root.ID,
		File:       file,
		Line:       tok.Line,
		Column:     tok.Col,
		Message:    fmt.Sprintf(format, args...),
		Dialect:    ev.opts.Dialect,
	}
}

func (ev *evaluator) parse(src Source) ([]node, error) {
	p := &parser{
		tokens: syntax.Tokenize(src.Content, ev.opts.Dialect),
		file:   src.displayName(),
		opts:   ev.opts,
		fail:   ev.fail,
	}
	return p.parseStylesheet()
}

func (ev *evaluator) run() ([]item, error) {
	nodes, err := ev.parse(ev.root)
	if err != nil {
		return nil, err
	}

	var items []item
	ctx := evalContext{
		sink:  &items,
		scope: newScope(nil),
		file:  ev.root.displayName(),
	}
	ev.stack = []string{ev.root.ID}
	if err := ev.eval(nodes, ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (ev *evaluator) eval(nodes []node, ctx evalContext) error {
	for _, n := range nodes {
		var err error
		switch n := n.(type) {
		case commentNode:
			ev.evalComment(n, ctx)
		case varNode:
			err = ev.evalVariable(n, ctx)
		case declNode:
			err = ev.evalDecl(n, ctx)
		case ruleNode:
			err = ev.evalRule(n, ctx)
		case atNode:
			err = ev.evalAtRule(n, ctx)
		case importNode:
			err = ev.evalImport(n, ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (ev *evaluator) evalComment(n commentNode, ctx evalContext) {
	if ctx.rule != nil {
		ctx.rule.decls = append(ctx.rule.decls, outDecl{comment: n.text})
		return
	}
	*ctx.sink = append(*ctx.sink, &outComment{text: n.text, depth: ctx.depth})
}

func (ev *evaluator) evalVariable(n varNode, ctx evalContext) error {
	if n.isDefault {
		if _, ok := ctx.scope.lookup(n.name); ok {
			return nil
		}
	}
	value, err := ev.substitute(n.value, ctx)
	if err != nil {
		return err
	}
	ctx.scope.assign(n.name, value)
	return nil
}

func (ev *evaluator) evalDecl(n declNode, ctx evalContext) error {
	if ctx.rule == nil && ctx.at == nil {
		return ev.fail(n.pos, ctx.file, "properties are only allowed within rules: %q", n.prop)
	}
	value, err := ev.substitute(n.value, ctx)
	if err != nil {
		return err
	}
	d := outDecl{prop: n.prop, value: value}
	if ctx.rule != nil {
		ctx.rule.decls = append(ctx.rule.decls, d)
	} else {
		ctx.at.decls = append(ctx.at.decls, d)
	}
	return nil
}

func (ev *evaluator) evalRule(n ruleNode, ctx evalContext) error {
	children, err := ev.selectorList(n.selector, ctx)
	if err != nil {
		return err
	}
	resolved, err := ev.nest(ctx.selectors, children, n.pos, ctx.file)
	if err != nil {
		return err
	}

	r := &outRule{selectors: resolved, depth: ctx.depth, line: n.pos.Line, file: ctx.file}
	*ctx.sink = append(*ctx.sink, r)

	child := ctx
	child.selectors = resolved
	child.rule = r
	child.at = nil
	child.scope = newScope(ctx.scope)
	child.depth = ctx.depth + 1
	return ev.eval(n.children, child)
}

func (ev *evaluator) evalAtRule(n atNode, ctx evalContext) error {
	if ev.opts.Dialect != syntax.DialectCSS && unsupported[n.name] {
		return ev.fail(n.pos, ctx.file, "%s is not supported", n.name)
	}

	prelude, err := ev.substitute(n.prelude, ctx)
	if err != nil {
		return err
	}

	a := &outAt{
		name:     n.name,
		prelude:  prelude,
		hasBlock: n.hasBlock,
		depth:    ctx.depth,
		line:     n.pos.Line,
		file:     ctx.file,
	}
	*ctx.sink = append(*ctx.sink, a)
	if !n.hasBlock {
		return nil
	}

	child := ctx
	child.sink = &a.items
	child.at = a
	child.rule = nil
	child.scope = newScope(ctx.scope)
	child.depth = ctx.depth + 1

	if bubbling[n.name] && ctx.selectors != nil {
		// declarations directly inside the directive apply to the enclosing selectors
		inner := &outRule{selectors: ctx.selectors, depth: ctx.depth + 1, line: n.pos.Line, file: ctx.file}
		a.items = append(a.items, inner)
		child.rule = inner
	} else {
		child.selectors = nil
	}
	return ev.eval(n.children, child)
}

func (ev *evaluator) evalImport(n importNode, ctx evalContext) error {
	for _, imp := range n.targets {
		if imp.Plain {
			*ctx.sink = append(*ctx.sink, &outAt{
				name:    "@import",
				prelude: plainImportText(imp.Target),
				depth:   ctx.depth,
				line:    imp.Line,
				file:    ctx.file,
			})
			continue
		}

		tok := syntax.Token{Line: imp.Line, Col: imp.Col}
		src, ok := ev.imports[imp.Target]
		if !ok {
			return ev.fail(tok, ctx.file, "file to import not found or unreadable: %s", imp.Target)
		}
		for _, id := range ev.stack {
			if id == imp.Target {
				return ev.fail(tok, ctx.file, "import cycle: %s -> %s", strings.Join(ev.stack, " -> "), imp.Target)
			}
		}

		nodes, err := ev.parse(src)
		if err != nil {
			return err
		}

		ev.stack = append(ev.stack, imp.Target)
		child := ctx
		child.file = src.displayName()
		err = ev.eval(nodes, child)
		ev.stack = ev.stack[:len(ev.stack)-1]
		if err != nil {
			return err
		}
	}
	return nil
}

func plainImportText(target string) string {
	if strings.HasPrefix(strings.ToLower(target), "url(") {
		return target
	}
	return `"` + target + `"`
}

// substitute replaces $variable references and renders the value text.
func (ev *evaluator) substitute(tokens []syntax.Token, ctx evalContext) (string, error) {
	out := make([]syntax.Token, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Is('$') && i+1 < len(tokens) && tokens[i+1].Type == css.IdentToken {
			name := tokens[i+1].Text
			value, ok := ctx.scope.lookup(name)
			if !ok {
				return "", ev.fail(tok, ctx.file, "undefined variable: $%s", name)
			}
			out = append(out, syntax.Token{Type: css.IdentToken, Text: value, Line: tok.Line, Col: tok.Col})
			i++
			continue
		}
		out = append(out, tok)
	}
	return tokensText(out, ev.opts.Style == StyleCompressed), nil
}

// parentRef marks an & in a selector until it is replaced by the parent.
const parentRef = "\x00"

// selectorList splits selector tokens on top-level commas.
func (ev *evaluator) selectorList(tokens []syntax.Token, ctx evalContext) ([]string, error) {
	compressed := ev.opts.Style == StyleCompressed

	var (
		list  []string
		b     strings.Builder
		space bool
		tight bool // suppress the next space (after a combinator in compressed output)
		depth int
	)
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			list = append(list, s)
		}
		b.Reset()
		space, tight = false, false
	}

	for _, tok := range tokens {
		switch {
		case tok.Type == css.WhitespaceToken || tok.Type == css.CommentToken:
			space = b.Len() > 0
			continue
		case tok.Type == css.CommaToken && depth == 0:
			flush()
			continue
		case tok.Is('$'):
			return nil, ev.fail(tok, ctx.file, "variables are not allowed in selectors")
		}

		combinator := tok.Is('>') || tok.Is('+') || tok.Is('~')
		if space && !tight && !(compressed && combinator) {
			b.WriteByte(' ')
		}
		space, tight = false, false

		switch tok.Type {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			if depth > 0 {
				depth--
			}
		}

		if tok.Is('&') {
			b.WriteString(parentRef)
		} else {
			b.WriteString(tok.Text)
		}
		if compressed && combinator {
			tight = true
		}
	}
	flush()
	return list, nil
}

// nest combines parent selectors with child selectors.
func (ev *evaluator) nest(parents, children []string, pos syntax.Token, file string) ([]string, error) {
	if parents == nil {
		for _, c := range children {
			if strings.Contains(c, parentRef) {
				return nil, ev.fail(pos, file, "base-level rules cannot contain the parent selector '&'")
			}
		}
		return children, nil
	}

	out := make([]string, 0, len(parents)*len(children))
	for _, p := range parents {
		for _, c := range children {
			switch {
			case strings.Contains(c, parentRef):
				out = append(out, strings.ReplaceAll(c, parentRef, p))
			case ev.opts.Style == StyleCompressed && strings.ContainsAny(c[:1], ">+~"):
				out = append(out, p+c)
			default:
				out = append(out, p+" "+c)
			}
		}
	}
	return out, nil
}
