// Package frontend implements the line-oriented textual assembly format for
// .rr programs and an assembler that lowers it into a bytecode []vm.Word,
// grounded on original_source/frontend/lexer/lexer.h and
// original_source/frontend/parser/parser.h: whitespace-separated tokens,
// '#' comments (entire-line if the first non-space rune is '#', trailing
// otherwise), and a simple two-pass label-resolving assembler in place of
// the original's malloc'd VM-producing parser.
package frontend

import "strings"

// tokenizeLine splits a single source line into whitespace-separated
// tokens, honoring '#' comments per lexer.h: a leading '#' (after optional
// whitespace) comments out the whole line, and a '#' appearing after the
// first token comments out the remainder of the line.
func tokenizeLine(line string) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	if trimmed[0] == '#' {
		return nil
	}

	fields := strings.Fields(trimmed)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.HasPrefix(f, "#") {
			break
		}
		out = append(out, f)
	}
	return out
}
