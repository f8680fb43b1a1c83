package tui

import (
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
)

// fitPane clips or pads s to exactly width columns and height lines, ANSI
// aware, so the header and footer never move when the body changes size.
func fitPane(s string, width, height int) string {
	width = max(width, 0)
	height = max(height, 0)

	lines := strings.Split(s, "\n")
	if height > 0 {
		if len(lines) > height {
			lines = lines[:height]
		}
		for len(lines) < height {
			lines = append(lines, "")
		}
	}

	for i, ln := range lines {
		// Bound the cost of measuring very long lines.
		if width > 0 && len(ln) > 8192 {
			ln = xansi.Cut(ln, 0, width)
		}
		w := xansi.StringWidth(ln)
		switch {
		case w > width && width <= 1:
			ln = xansi.Cut(ln, 0, width)
		case w > width:
			ln = xansi.Cut(ln, 0, width-1) + "…"
		}
		if w = xansi.StringWidth(ln); w < width {
			ln += strings.Repeat(" ", width-w)
		}
		lines[i] = ln
	}
	return strings.Join(lines, "\n")
}

// scrollTo returns the slice of lines that keeps line focus visible in a
// window of height lines.
func scrollTo(lines []string, focus, height int) []string {
	if height <= 0 || len(lines) <= height {
		return lines
	}
	start := focus - height/2
	if start < 0 {
		start = 0
	}
	if start+height > len(lines) {
		start = len(lines) - height
	}
	return lines[start : start+height]
}
