package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// drawText writes s at (x, y), clipped to width cells. It returns the number
// of cells used.
func drawText(s tcell.Screen, x, y, width int, text string, style tcell.Style) int {
	used := 0
	for _, r := range text {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if used+w > width {
			break
		}
		s.SetContent(x+used, y, r, nil, style)
		used += w
	}
	return used
}

// fill paints a row segment with style.
func fill(s tcell.Screen, x, y, width int, style tcell.Style) {
	for i := 0; i < width; i++ {
		s.SetContent(x+i, y, ' ', nil, style)
	}
}

// truncate shortens text to at most width cells.
func truncate(text string, width int) string {
	return runewidth.Truncate(text, width, "…")
}
