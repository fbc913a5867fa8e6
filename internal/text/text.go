// Package text holds the string helpers shared by the terminal and plain
// renderers.
package text

import "strings"

// Truncate shortens s to max runes, ending in "..." when there is room.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// WordWrap wraps s to width columns on word boundaries. Existing newlines
// are kept and ANSI escapes do not count toward the width.
func WordWrap(s string, width int) string {
	if width <= 0 {
		return s
	}

	var sb strings.Builder
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if VisibleWidth(line) <= width {
			sb.WriteString(line)
			continue
		}
		sb.WriteString(wrapLine(line, width))
	}
	return sb.String()
}

func wrapLine(line string, width int) string {
	var sb strings.Builder
	col := 0
	for _, word := range strings.Fields(line) {
		n := VisibleWidth(word)
		switch {
		case col == 0:
		case col+1+n > width:
			sb.WriteByte('\n')
			col = 0
		default:
			sb.WriteByte(' ')
			col++
		}
		// an overlong word gets a line to itself
		sb.WriteString(word)
		col += n
		if n > width {
			sb.WriteByte('\n')
			col = 0
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// VisibleWidth counts runes outside ANSI escape sequences.
func VisibleWidth(s string) int {
	inEscape := false
	n := 0
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		n++
	}
	return n
}
