package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/linkbrowser/internal/document"
	"github.com/dshills/linkbrowser/internal/injection"
	"github.com/dshills/linkbrowser/internal/metrics"
)

type stateLog struct {
	mu     sync.Mutex
	states []MenuState
}

func (l *stateLog) add(s MenuState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) all() []MenuState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]MenuState(nil), l.states...)
}

func TestContextMenuShowAndSelect(t *testing.T) {
	var log stateLog
	presenter := &recordingPresenter{}
	actions := &recordingActions{}
	c := NewContextMenu(&inlineUI{}, fixedGeometry{ok: true}, presenter, actions,
		WithStateListener(log.add), WithMetrics(metrics.New()))

	c.ShowContextMenu("a", "", "http://next/", 10, 20)

	m := presenter.last()
	require.NotNil(t, m)
	assert.Equal(t, 11, m.X)
	assert.Equal(t, 22, m.Y)
	assert.Equal(t, MenuShown, c.State())
	assert.Same(t, m, c.Current())
	assert.Empty(t, actions.all(), "nothing runs before a selection")

	require.NoError(t, m.SelectLabel(LabelOpenLink))

	assert.Equal(t, []string{"navigate http://next/"}, actions.all())
	assert.Equal(t, NoMenu, c.State())
	assert.Nil(t, c.Current())
	assert.Equal(t, []MenuState{MenuRequested, MenuShown, ActionSelected, NoMenu}, log.all())
	assert.Len(t, presenter.hid, 1)
}

func TestContextMenuDismiss(t *testing.T) {
	var log stateLog
	presenter := &recordingPresenter{}
	c := NewContextMenu(&inlineUI{}, fixedGeometry{ok: true}, presenter, &recordingActions{},
		WithStateListener(log.add))

	c.ShowContextMenu("div", "", "", 0, 0)
	require.NoError(t, presenter.last().Dismiss())

	assert.Equal(t, []MenuState{MenuRequested, MenuShown, Dismissed, NoMenu}, log.all())
}

func TestContextMenuUnresolvableCoordinates(t *testing.T) {
	var log stateLog
	presenter := &recordingPresenter{}
	actions := &recordingActions{}
	c := NewContextMenu(&inlineUI{}, fixedGeometry{ok: false}, presenter, actions,
		WithStateListener(log.add))

	c.ShowContextMenu("img", "http://x/a.png", "", 5, 5)

	assert.Nil(t, presenter.last(), "no menu is shown")
	assert.Equal(t, NoMenu, c.State())
	assert.Equal(t, []MenuState{MenuRequested, NoMenu}, log.all())
	assert.Empty(t, actions.all())
}

func TestContextMenuNewRequestDismissesShown(t *testing.T) {
	presenter := &recordingPresenter{}
	c := NewContextMenu(&inlineUI{}, fixedGeometry{ok: true}, presenter, &recordingActions{})

	c.ShowContextMenu("div", "", "", 1, 1)
	first := presenter.last()
	c.ShowContextMenu("a", "", "http://b/", 2, 2)
	second := presenter.last()

	require.NotSame(t, first, second)
	assert.True(t, first.Closed())
	assert.False(t, second.Closed())
	assert.Same(t, second, c.Current())
	assert.Equal(t, MenuShown, c.State())
	assert.ErrorIs(t, first.Select(0), ErrMenuClosed)
}

func TestContextMenuUIClosed(t *testing.T) {
	presenter := &recordingPresenter{}
	c := NewContextMenu(&inlineUI{closed: true}, fixedGeometry{ok: true}, presenter, &recordingActions{})

	c.ShowContextMenu("div", "", "", 1, 1)

	assert.Nil(t, presenter.last())
	assert.Equal(t, NoMenu, c.State())
}

// queueUI collects posted functions until run is called, like a UI thread
// that has not drained its queue yet.
type queueUI struct {
	mu    sync.Mutex
	queue []func()
}

func (u *queueUI) Post(fn func()) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.queue = append(u.queue, fn)
	return nil
}

func (u *queueUI) run() {
	u.mu.Lock()
	q := u.queue
	u.queue = nil
	u.mu.Unlock()
	for _, fn := range q {
		fn()
	}
}

func (u *queueUI) len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.queue)
}

func TestContextMenuFromDocument(t *testing.T) {
	engine := document.NewEngine(document.WithFetcher(document.Pages{
		"page://a": `<html><head><title>A</title></head><body><a href="http://example.com/doc.pdf">doc</a></body></html>`,
	}))
	t.Cleanup(func() { engine.Close() })

	succeeded := make(chan struct{}, 4)
	engine.Subscribe(func(_, next document.NavigationState) {
		if next == document.StateSucceeded {
			succeeded <- struct{}{}
		}
	})

	ui := &queueUI{}
	presenter := &recordingPresenter{}
	actions := &recordingActions{}
	c := NewContextMenu(ui, fixedGeometry{ok: true}, presenter, actions)

	reg := injection.New(engine)
	require.NoError(t, Register(reg, c))
	require.NoError(t, engine.Navigate("page://a"))
	select {
	case <-succeeded:
	case <-time.After(5 * time.Second):
		t.Fatal("navigation did not succeed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var link document.Element
	require.NoError(t, engine.Do(ctx, func() error {
		link = engine.Page().Elements[0]
		return nil
	}))
	require.NoError(t, engine.DispatchEvent(document.Event{Type: "contextmenu", Target: link, PageX: 3, PageY: 4}))

	// The dispatch is queued on the document loop; Do waits for it.
	require.NoError(t, engine.Do(ctx, func() error { return nil }))
	require.Equal(t, 1, ui.len(), "the bridge hands off to the UI thread")
	assert.Nil(t, presenter.last(), "nothing is shown until the UI thread runs")

	ui.run()
	m := presenter.last()
	require.NotNil(t, m)
	assert.Equal(t, "a", m.Target.TagName)
	assert.Equal(t, "http://example.com/doc.pdf", m.Target.Href)
	assert.Equal(t, 3.0, m.Target.PageX)

	require.NoError(t, m.SelectLabel(LabelDownloadLink))
	assert.Equal(t, []string{"download http://example.com/doc.pdf"}, actions.all())
}
