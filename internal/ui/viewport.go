package ui

import (
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/linkbrowser/internal/document"
)

// Viewport renders a page as one line per element. Document coordinates are
// (column, line) within the page; line 0 is the first element.
type Viewport struct {
	mu sync.RWMutex

	left, top     int
	width, height int
	laidOut       bool

	title    string
	url      string
	lines    []string
	offset   int
	selected int
	splash   []string
}

// NewViewport creates an empty viewport.
func NewViewport() *Viewport {
	return &Viewport{selected: -1}
}

// Layout places the viewport on screen.
func (v *Viewport) Layout(left, top, width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.left, v.top = left, top
	v.width, v.height = max(width, 0), max(height, 0)
	v.laidOut = v.width > 0 && v.height > 0
	v.clampLocked()
}

// SetPage replaces the page contents and resets scrolling.
func (v *Viewport) SetPage(title, url string, elements []document.Element) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.title, v.url = title, url
	v.lines = make([]string, len(elements))
	for i, el := range elements {
		v.lines[i] = el.Label()
	}
	v.offset = 0
	v.selected = -1
	if len(v.lines) > 0 {
		v.selected = 0
	}
	v.splash = nil
}

// SetSplash shows lines instead of the page until SetPage is called.
func (v *Viewport) SetSplash(lines ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.splash = lines
}

// Title returns the page title and URL.
func (v *Viewport) Title() (title, url string) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.title, v.url
}

// Selected returns the selected element index, or -1.
func (v *Viewport) Selected() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.selected
}

// Move changes the selection by delta and scrolls it into view.
func (v *Viewport) Move(delta int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.lines) == 0 {
		return
	}
	v.selected = min(max(v.selected+delta, 0), len(v.lines)-1)
	v.clampLocked()
}

func (v *Viewport) clampLocked() {
	if v.selected < 0 || v.height == 0 {
		return
	}
	if v.selected < v.offset {
		v.offset = v.selected
	}
	if v.selected >= v.offset+v.height {
		v.offset = v.selected - v.height + 1
	}
}

// LocalToScreen maps page coordinates to a screen cell. ok is false when the
// viewport is not laid out or the point is not visible.
func (v *Viewport) LocalToScreen(x, y float64) (int, int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.laidOut || x < 0 || y < 0 {
		return 0, 0, false
	}
	col, line := int(x), int(y)
	row := line - v.offset
	if col >= v.width || row < 0 || row >= v.height {
		return 0, 0, false
	}
	return v.left + col, v.top + row, true
}

// ElementAt maps a screen cell to an element index and page coordinates.
func (v *Viewport) ElementAt(sx, sy int) (index int, pageX, pageY float64, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.laidOut || v.splash != nil {
		return -1, 0, 0, false
	}
	col, row := sx-v.left, sy-v.top
	if col < 0 || col >= v.width || row < 0 || row >= v.height {
		return -1, 0, 0, false
	}
	line := row + v.offset
	if line >= len(v.lines) {
		return -1, 0, 0, false
	}
	return line, float64(col), float64(line), true
}

// Select marks index as selected.
func (v *Viewport) Select(index int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if index >= 0 && index < len(v.lines) {
		v.selected = index
		v.clampLocked()
	}
}

// Draw paints the viewport.
func (v *Viewport) Draw(s tcell.Screen) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.laidOut {
		return
	}

	if v.splash != nil {
		start := v.top + max((v.height-len(v.splash))/2, 0)
		for i, line := range v.splash {
			if i >= v.height {
				break
			}
			x := v.left + max((v.width-len(line))/2, 0)
			drawText(s, x, start+i, v.width, line, styleSplash)
		}
		return
	}

	if len(v.lines) == 0 {
		drawText(s, v.left, v.top, v.width, "(no links or images)", styleDim)
		return
	}

	for row := 0; row < v.height; row++ {
		line := row + v.offset
		if line >= len(v.lines) {
			break
		}
		style := styleNormal
		if line == v.selected {
			style = styleSelected
			fill(s, v.left, v.top+row, v.width, style)
		}
		drawText(s, v.left, v.top+row, v.width, truncate(v.lines[line], v.width), style)
	}
}
