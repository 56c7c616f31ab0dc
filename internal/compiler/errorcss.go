package compiler

import (
	"strings"
)

// ErrorStylesheet renders err as a stylesheet that shows the message at the
// top of any page using it. It is written in place of the output when the
// error display mode is "css".
func ErrorStylesheet(err error) string {
	msg := err.Error()

	var b strings.Builder
	b.WriteString("/*\n")
	b.WriteString(strings.ReplaceAll(msg, "*/", "*\\/"))
	b.WriteString("\n*/\n")
	b.WriteString("body::before {\n")
	b.WriteString("  white-space: pre;\n")
	b.WriteString("  font-family: monospace;\n")
	b.WriteString("  content: \"" + cssString(msg) + "\";\n")
	b.WriteString("}\n")
	return b.String()
}

// cssString escapes s for use inside a double quoted CSS string.
func cssString(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\A `)
		case '\r':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
