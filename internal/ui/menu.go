package ui

import (
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"

	"github.com/dshills/linkbrowser/internal/bridge"
)

// MenuPresenter draws a context menu and routes keys and clicks to it.
// Show and Hide are called on the UI thread.
type MenuPresenter struct {
	mu       sync.Mutex
	menu     *bridge.Menu
	selected int
	bounds   [4]int // last drawn left, top, width, height
	drawn    bool
	logger   *zap.Logger
	onChange func()
}

// NewMenuPresenter creates a presenter. onChange is called after the menu
// appears or goes away.
func NewMenuPresenter(logger *zap.Logger, onChange func()) *MenuPresenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MenuPresenter{logger: logger, onChange: onChange}
}

// Show displays m.
func (p *MenuPresenter) Show(m *bridge.Menu) {
	p.mu.Lock()
	p.menu = m
	p.selected = 0
	p.drawn = false
	p.mu.Unlock()
	p.changed()
}

// Hide removes m if it is the menu shown.
func (p *MenuPresenter) Hide(m *bridge.Menu) {
	p.mu.Lock()
	if p.menu != m {
		p.mu.Unlock()
		return
	}
	p.menu = nil
	p.mu.Unlock()
	p.changed()
}

// Active returns the shown menu, or nil.
func (p *MenuPresenter) Active() *bridge.Menu {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.menu
}

func (p *MenuPresenter) changed() {
	if p.onChange != nil {
		p.onChange()
	}
}

// HandleKey handles navigation while a menu is shown. It reports whether
// the key was consumed.
func (p *MenuPresenter) HandleKey(ev *tcell.EventKey) bool {
	p.mu.Lock()
	m := p.menu
	if m == nil {
		p.mu.Unlock()
		return false
	}

	switch ev.Key() {
	case tcell.KeyUp:
		p.selected = (p.selected - 1 + len(m.Items)) % len(m.Items)
		p.mu.Unlock()
		p.changed()
	case tcell.KeyDown, tcell.KeyTab:
		p.selected = (p.selected + 1) % len(m.Items)
		p.mu.Unlock()
		p.changed()
	case tcell.KeyEnter:
		i := p.selected
		p.mu.Unlock()
		p.run(m, i)
	case tcell.KeyEscape:
		p.mu.Unlock()
		_ = m.Dismiss()
	default:
		p.mu.Unlock()
	}
	return true
}

// HandleClick selects the item under (x, y) or dismisses the menu when the
// click lands outside it. It reports whether a menu was shown.
func (p *MenuPresenter) HandleClick(x, y int) bool {
	p.mu.Lock()
	m, drawn, b := p.menu, p.drawn, p.bounds
	p.mu.Unlock()
	if m == nil {
		return false
	}
	left, top, width, height := menuBounds(m)
	if drawn {
		left, top, width, height = b[0], b[1], b[2], b[3]
	}
	if x < left || x >= left+width || y < top || y >= top+height {
		_ = m.Dismiss()
		return true
	}
	p.run(m, y-top-1)
	return true
}

func (p *MenuPresenter) run(m *bridge.Menu, i int) {
	if i < 0 || i >= len(m.Items) {
		return
	}
	if err := m.Select(i); err != nil {
		p.logger.Warn("menu action failed", zap.String("item", m.Items[i].Label), zap.Error(err))
	}
}

// menuBounds returns the menu box including its border.
func menuBounds(m *bridge.Menu) (left, top, width, height int) {
	inner := 0
	for _, it := range m.Items {
		inner = max(inner, runewidth.StringWidth(it.Label))
	}
	return m.X, m.Y, inner + 4, len(m.Items) + 2
}

// Draw paints the shown menu, kept inside the screen.
func (p *MenuPresenter) Draw(s tcell.Screen) {
	p.mu.Lock()
	m, selected := p.menu, p.selected
	p.mu.Unlock()
	if m == nil {
		return
	}

	sw, sh := s.Size()
	left, top, width, height := menuBounds(m)
	left = max(min(left, sw-width), 0)
	top = max(min(top, sh-height), 0)

	p.mu.Lock()
	if p.menu == m {
		p.bounds = [4]int{left, top, width, height}
		p.drawn = true
	}
	p.mu.Unlock()

	for row := 0; row < height; row++ {
		fill(s, left, top+row, width, styleMenu)
	}
	for col := 1; col < width-1; col++ {
		s.SetContent(left+col, top, tcell.RuneHLine, nil, styleMenu)
		s.SetContent(left+col, top+height-1, tcell.RuneHLine, nil, styleMenu)
	}
	for row := 1; row < height-1; row++ {
		s.SetContent(left, top+row, tcell.RuneVLine, nil, styleMenu)
		s.SetContent(left+width-1, top+row, tcell.RuneVLine, nil, styleMenu)
	}
	s.SetContent(left, top, tcell.RuneULCorner, nil, styleMenu)
	s.SetContent(left+width-1, top, tcell.RuneURCorner, nil, styleMenu)
	s.SetContent(left, top+height-1, tcell.RuneLLCorner, nil, styleMenu)
	s.SetContent(left+width-1, top+height-1, tcell.RuneLRCorner, nil, styleMenu)

	for i, it := range m.Items {
		style := styleMenu
		if i == selected {
			style = styleMenuSel
			fill(s, left+1, top+1+i, width-2, style)
		}
		drawText(s, left+2, top+1+i, width-4, it.Label, style)
	}
}
