package compiler

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// render formats the flattened stylesheet in the requested style.
func render(items []item, opts Options) string {
	items = prune(items, opts.Style)

	var out string
	switch opts.Style {
	case StyleCompressed:
		out = renderCompressed(items)
	case StyleCompact:
		out = renderCompact(items, opts.LineComments)
	case StyleNested:
		out = renderNested(items, opts.LineComments)
	default:
		out = renderExpanded(items, opts.LineComments)
	}
	return withCharset(out, opts.Style)
}

// prune drops empty rules and blocks, and comments the style does not keep.
func prune(items []item, style Style) []item {
	kept := items[:0:0]
	for _, it := range items {
		switch it := it.(type) {
		case *outRule:
			it.decls = pruneDecls(it.decls, style)
			if hasDecl(it.decls) {
				kept = append(kept, it)
			}
		case *outAt:
			if !it.hasBlock {
				kept = append(kept, it)
				continue
			}
			it.decls = pruneDecls(it.decls, style)
			it.items = prune(it.items, style)
			if hasDecl(it.decls) || len(it.items) > 0 {
				kept = append(kept, it)
			}
		case *outComment:
			if keepComment(it.text, style) {
				kept = append(kept, it)
			}
		}
	}
	return kept
}

func pruneDecls(decls []outDecl, style Style) []outDecl {
	kept := decls[:0:0]
	for _, d := range decls {
		if d.comment != "" && !keepComment(d.comment, style) {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

func hasDecl(decls []outDecl) bool {
	for _, d := range decls {
		if d.comment == "" {
			return true
		}
	}
	return false
}

// keepComment reports whether a comment survives: loud comments (/*! */)
// always do, others only outside the compressed style.
func keepComment(text string, style Style) bool {
	return style != StyleCompressed || strings.HasPrefix(text, "/*!")
}

func lineComment(file string, line int) string {
	return fmt.Sprintf("/* line %d, %s */", line, file)
}

func declText(d outDecl) string {
	if d.comment != "" {
		return d.comment
	}
	return d.prop + ": " + d.value + ";"
}

func atHead(a *outAt) string {
	if a.prelude == "" {
		return a.name
	}
	return a.name + " " + a.prelude
}

// renderExpanded writes one declaration per line, rules separated by blank
// lines at the top level.
func renderExpanded(items []item, lineComments bool) string {
	var b strings.Builder
	writeExpanded(&b, items, 0, lineComments)
	return b.String()
}

func writeExpanded(b *strings.Builder, items []item, level int, lineComments bool) {
	indent := strings.Repeat("  ", level)
	for i, it := range items {
		if i > 0 && level == 0 {
			b.WriteString("\n")
		}
		switch it := it.(type) {
		case *outComment:
			b.WriteString(indent + it.text + "\n")
		case *outRule:
			if lineComments {
				b.WriteString(indent + lineComment(it.file, it.line) + "\n")
			}
			b.WriteString(indent + strings.Join(it.selectors, ", ") + " {\n")
			for _, d := range it.decls {
				b.WriteString(indent + "  " + declText(d) + "\n")
			}
			b.WriteString(indent + "}\n")
		case *outAt:
			if !it.hasBlock {
				b.WriteString(indent + atHead(it) + ";\n")
				continue
			}
			b.WriteString(indent + atHead(it) + " {\n")
			for _, d := range it.decls {
				b.WriteString(indent + "  " + declText(d) + "\n")
			}
			writeExpanded(b, it.items, level+1, lineComments)
			b.WriteString(indent + "}\n")
		}
	}
}

// renderNested indents rules by their nesting depth in the source and closes
// blocks on the line of their last declaration.
func renderNested(items []item, lineComments bool) string {
	lines := nestedLines(items, true, lineComments)
	return strings.Join(lines, "\n") + terminator(lines)
}

func nestedLines(items []item, top, lineComments bool) []string {
	var lines []string
	for i, it := range items {
		switch it := it.(type) {
		case *outComment:
			lines = append(lines, strings.Repeat("  ", it.depth)+it.text)
		case *outRule:
			indent := strings.Repeat("  ", it.depth)
			if lineComments {
				lines = append(lines, indent+lineComment(it.file, it.line))
			}
			lines = append(lines, indent+strings.Join(it.selectors, ",\n"+indent)+" {")
			for _, d := range it.decls {
				lines = append(lines, indent+"  "+declText(d))
			}
			lines[len(lines)-1] += " }"
		case *outAt:
			indent := strings.Repeat("  ", it.depth)
			if !it.hasBlock {
				lines = append(lines, indent+atHead(it)+";")
				continue
			}
			lines = append(lines, indent+atHead(it)+" {")
			for _, d := range it.decls {
				lines = append(lines, indent+"  "+declText(d))
			}
			lines = append(lines, nestedLines(it.items, false, lineComments)...)
			lines[len(lines)-1] += " }"
		}

		// blank line after a group once the next item starts at the top again
		if top && i+1 < len(items) && itemDepth(items[i+1]) == 0 {
			lines = append(lines, "")
		}
	}
	return lines
}

func itemDepth(it item) int {
	switch it := it.(type) {
	case *outRule:
		return it.depth
	case *outAt:
		return it.depth
	case *outComment:
		return it.depth
	}
	return 0
}

// renderCompact writes each rule on a single line.
func renderCompact(items []item, lineComments bool) string {
	lines := compactLines(items, lineComments)
	return strings.Join(lines, "\n") + terminator(lines)
}

func compactLines(items []item, lineComments bool) []string {
	var lines []string
	for _, it := range items {
		switch it := it.(type) {
		case *outComment:
			lines = append(lines, it.text)
		case *outRule:
			if lineComments {
				lines = append(lines, lineComment(it.file, it.line))
			}
			lines = append(lines, compactRule(it))
		case *outAt:
			if !it.hasBlock {
				lines = append(lines, atHead(it)+";")
				continue
			}
			parts := []string{atHead(it) + " {"}
			for _, d := range it.decls {
				parts = append(parts, declText(d))
			}
			parts = append(parts, compactLines(it.items, false)...)
			parts = append(parts, "}")
			lines = append(lines, strings.Join(parts, " "))
		}
	}
	return lines
}

func compactRule(r *outRule) string {
	parts := []string{strings.Join(r.selectors, ", ") + " {"}
	for _, d := range r.decls {
		parts = append(parts, declText(d))
	}
	parts = append(parts, "}")
	return strings.Join(parts, " ")
}

// renderCompressed removes all optional whitespace.
func renderCompressed(items []item) string {
	var b strings.Builder
	writeCompressed(&b, items)
	if b.Len() == 0 {
		return ""
	}
	return b.String() + "\n"
}

func writeCompressed(b *strings.Builder, items []item) {
	for _, it := range items {
		switch it := it.(type) {
		case *outComment:
			b.WriteString(it.text)
		case *outRule:
			b.WriteString(strings.Join(it.selectors, ","))
			b.WriteString("{")
			writeCompressedDecls(b, it.decls)
			b.WriteString("}")
		case *outAt:
			b.WriteString(atHead(it))
			if !it.hasBlock {
				b.WriteString(";")
				continue
			}
			b.WriteString("{")
			writeCompressedDecls(b, it.decls)
			writeCompressed(b, it.items)
			b.WriteString("}")
		}
	}
}

func writeCompressedDecls(b *strings.Builder, decls []outDecl) {
	first := true
	for _, d := range decls {
		if d.comment != "" {
			b.WriteString(d.comment)
			continue
		}
		if !first {
			b.WriteString(";")
		}
		b.WriteString(d.prop + ":" + d.value)
		first = false
	}
}

func terminator(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return "\n"
}

// withCharset declares UTF-8 when the output contains non-ASCII text:
// an @charset rule, or a byte order mark for compressed output.
func withCharset(out string, style Style) string {
	if isASCII(out) || strings.HasPrefix(out, "@charset") {
		return out
	}
	if style == StyleCompressed {
		return "\ufeff" + out
	}
	return "@charset \"UTF-8\";\n" + out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
