package bridge

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Menu item labels.
const (
	LabelBack         = "Back"
	LabelForward      = "Forward"
	LabelRefresh      = "Refresh"
	LabelSaveImage    = "Save Image As..."
	LabelOpenLink     = "Open Link"
	LabelDownloadLink = "Download Link"
)

// Actions are the browser operations menu items invoke.
type Actions interface {
	Navigate(url string) error
	Back() error
	Forward() error
	Reload() error
	Download(url string) error
}

// Target is the element a context menu was requested for.
type Target struct {
	TagName string
	Src     string
	Href    string
	PageX   float64
	PageY   float64
}

// IsImage reports whether the target is an image with a source.
func (t Target) IsImage() bool {
	return strings.EqualFold(t.TagName, "img") && strings.TrimSpace(t.Src) != ""
}

// IsLink reports whether the target is a link with a destination.
func (t Target) IsLink() bool {
	return strings.EqualFold(t.TagName, "a") && strings.TrimSpace(t.Href) != ""
}

// Item is one menu entry.
type Item struct {
	Label  string
	action func() error
}

// Menu is a shown context menu. Exactly one of Select or Dismiss takes
// effect; later calls return ErrMenuClosed.
type Menu struct {
	ID     string
	Target Target
	X, Y   int
	Items  []Item

	mu      sync.Mutex
	closed  bool
	onClose func(m *Menu, outcome MenuState, label string)
}

// newMenu builds the items for t. Item actions capture t's locators.
func newMenu(t Target, actions Actions) *Menu {
	m := &Menu{
		ID:     uuid.NewString(),
		Target: t,
		Items: []Item{
			{Label: LabelBack, action: actions.Back},
			{Label: LabelForward, action: actions.Forward},
			{Label: LabelRefresh, action: actions.Reload},
		},
	}

	if t.IsImage() {
		src := t.Src
		m.Items = append(m.Items, Item{Label: LabelSaveImage, action: func() error {
			return actions.Download(src)
		}})
	}

	if t.IsLink() {
		href := t.Href
		m.Items = append(m.Items,
			Item{Label: LabelOpenLink, action: func() error { return actions.Navigate(href) }},
			Item{Label: LabelDownloadLink, action: func() error { return actions.Download(href) }},
		)
	}
	return m
}

// Labels returns the item labels in order.
func (m *Menu) Labels() []string {
	labels := make([]string, len(m.Items))
	for i, it := range m.Items {
		labels[i] = it.Label
	}
	return labels
}

// Index returns the position of the item with label, or -1.
func (m *Menu) Index(label string) int {
	for i, it := range m.Items {
		if it.Label == label {
			return i
		}
	}
	return -1
}

// Closed reports whether the menu was selected from or dismissed.
func (m *Menu) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Select closes the menu and runs item i's action.
func (m *Menu) Select(i int) error {
	if i < 0 || i >= len(m.Items) {
		return fmt.Errorf("%w: %d", ErrNoSuchItem, i)
	}
	if !m.close() {
		return ErrMenuClosed
	}
	item := m.Items[i]
	if m.onClose != nil {
		m.onClose(m, ActionSelected, item.Label)
	}
	return item.action()
}

// SelectLabel selects the item with label.
func (m *Menu) SelectLabel(label string) error {
	i := m.Index(label)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNoSuchItem, label)
	}
	return m.Select(i)
}

// Dismiss closes the menu without running anything.
func (m *Menu) Dismiss() error {
	if !m.close() {
		return ErrMenuClosed
	}
	if m.onClose != nil {
		m.onClose(m, Dismissed, "")
	}
	return nil
}

func (m *Menu) close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.closed = true
	return true
}
