package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/linkbrowser/internal/bridge"
	"github.com/dshills/linkbrowser/internal/document"
)

// fakeView runs posted work inline and records what it is shown.
type fakeView struct {
	mu       sync.Mutex
	statuses []string
	title    string
	url      string
	elements []document.Element
	menus    []*bridge.Menu
}

func (v *fakeView) Post(fn func()) error { fn(); return nil }

func (v *fakeView) LocalToScreen(x, y float64) (int, int, bool) {
	return int(x), int(y), true
}

func (v *fakeView) Show(m *bridge.Menu) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.menus = append(v.menus, m)
}

func (v *fakeView) Hide(*bridge.Menu) {}

func (v *fakeView) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (v *fakeView) SetStatus(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses = append(v.statuses, msg)
}

func (v *fakeView) ShowPage(title, url string, elements []document.Element) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.title, v.url, v.elements = title, url, elements
}

func (v *fakeView) Close() error { return nil }

func (v *fakeView) page() (string, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.title, v.url
}

func (v *fakeView) lastStatus() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.statuses) == 0 {
		return ""
	}
	return v.statuses[len(v.statuses)-1]
}

func (v *fakeView) hasStatus(s string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, got := range v.statuses {
		if got == s {
			return true
		}
	}
	return false
}

func (v *fakeView) lastMenu() *bridge.Menu {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.menus) == 0 {
		return nil
	}
	return v.menus[len(v.menus)-1]
}

const homeHTML = `<html><head><title>Home</title>
<script>
window.statusLog = [];
window.updateStatus = function(s) { window.statusLog.push(s); };
</script></head>
<body>
<a href="/next">Next page</a>
<img src="img/cat.png" alt="cat">
<a href="files/report.pdf">Report</a>
</body></html>`

const nextHTML = `<html><head><title>Next</title></head><body></body></html>`

func newTestBrowser(t *testing.T, opts ...Option) (*Browser, *fakeView) {
	t.Helper()
	view := &fakeView{}
	pages := document.Pages{
		"http://site.test/":     homeHTML,
		"http://site.test/next": nextHTML,
	}
	opts = append([]Option{WithFetcher(pages)}, opts...)
	b, err := New(view, NewDownloads(t.TempDir()), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, view
}

func waitForPage(t *testing.T, view *fakeView, title string) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, _ := view.page()
		return got == title
	}, 5*time.Second, 10*time.Millisecond, "page %q never shown", title)
}

func TestBrowserNavigate(t *testing.T) {
	b, view := newTestBrowser(t)

	require.NoError(t, b.Navigate("site.test/"))
	assert.True(t, view.hasStatus("Loading: http://site.test/"))

	waitForPage(t, view, "Home")
	_, url := view.page()
	assert.Equal(t, "http://site.test/", url)

	require.Eventually(t, func() bool { return view.lastStatus() == StatusDone }, 5*time.Second, 10*time.Millisecond)

	// The document's own updateStatus received the final status.
	var log []any
	require.NoError(t, b.Engine().Do(context.Background(), func() error {
		v, err := b.Engine().ExecuteScript("window.statusLog")
		if err != nil {
			return err
		}
		log, _ = v.([]any)
		return nil
	}))
	assert.Contains(t, log, StatusDone)
}

func TestBrowserHistory(t *testing.T) {
	b, view := newTestBrowser(t)

	assert.ErrorIs(t, b.Back(), document.ErrHistoryBoundary)

	require.NoError(t, b.Navigate("http://site.test/"))
	waitForPage(t, view, "Home")
	require.NoError(t, b.Activate(0))
	waitForPage(t, view, "Next")

	require.NoError(t, b.Back())
	assert.True(t, view.hasStatus(StatusBack))
	waitForPage(t, view, "Home")

	require.NoError(t, b.Forward())
	waitForPage(t, view, "Next")

	require.NoError(t, b.Reload())
	assert.True(t, view.hasStatus(StatusRefresh))
}

func TestBrowserInternalPages(t *testing.T) {
	var flashes []bool
	b, view := newTestBrowser(t, WithFlash(false, func(on bool) { flashes = append(flashes, on) }))

	require.NoError(t, b.Navigate(RouteAbout))
	waitForPage(t, view, "About LinkBrowser")

	require.NoError(t, b.Navigate(RouteSettings))
	waitForPage(t, view, "Settings")

	require.NoError(t, b.Navigate(RouteFlashOn))
	assert.True(t, b.Flash())
	assert.True(t, view.hasStatus(StatusFlashOn))

	require.NoError(t, b.Navigate(RouteFlashOff))
	assert.False(t, b.Flash())
	assert.Equal(t, []bool{true, false}, flashes)

	assert.ErrorIs(t, b.Navigate("link://open/nowhere"), ErrUnknownRoute)
}

func TestBrowserContextMenuFromDocument(t *testing.T) {
	b, view := newTestBrowser(t)
	require.NoError(t, b.Navigate("http://site.test/"))
	waitForPage(t, view, "Home")

	require.NoError(t, b.ContextMenu(0, 3, 0))
	require.Eventually(t, func() bool { return view.lastMenu() != nil }, 5*time.Second, 10*time.Millisecond)

	m := view.lastMenu()
	assert.Equal(t, []string{
		bridge.LabelBack, bridge.LabelForward, bridge.LabelRefresh,
		bridge.LabelOpenLink, bridge.LabelDownloadLink,
	}, m.Labels())
	assert.Equal(t, "http://site.test/next", m.Target.Href)
	assert.Equal(t, 3, m.X)

	require.NoError(t, m.SelectLabel(bridge.LabelOpenLink))
	waitForPage(t, view, "Next")
	assert.Equal(t, bridge.NoMenu, b.ContextMenuBridge().State())
}

func TestBrowserImageMenu(t *testing.T) {
	b, view := newTestBrowser(t)
	require.NoError(t, b.Navigate("http://site.test/"))
	waitForPage(t, view, "Home")

	require.NoError(t, b.ContextMenu(1, 0, 1))
	require.Eventually(t, func() bool { return view.lastMenu() != nil }, 5*time.Second, 10*time.Millisecond)

	m := view.lastMenu()
	assert.Contains(t, m.Labels(), bridge.LabelSaveImage)
	assert.NotContains(t, m.Labels(), bridge.LabelOpenLink)
	assert.Equal(t, "http://site.test/img/cat.png", m.Target.Src)
}

func TestBrowserElementOutOfRange(t *testing.T) {
	b, _ := newTestBrowser(t)
	assert.ErrorIs(t, b.Activate(0), ErrNoElement)
	assert.ErrorIs(t, b.ContextMenu(-1, 0, 0), ErrNoElement)
}

func TestBrowserDownloadRouting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("zip"))
	}))
	defer srv.Close()

	b, view := newTestBrowser(t)
	require.NoError(t, b.Navigate(srv.URL+"/pkg/tool.zip"))
	assert.True(t, view.hasStatus("Downloading: tool.zip"))

	list := b.Downloads().List()
	require.Len(t, list, 1)
	dl, ok := b.Downloads().Get(list[0].ID)
	require.True(t, ok)
	require.NoError(t, dl.Wait(waitCtx(t)))

	// A download never becomes a page.
	title, _ := view.page()
	assert.Empty(t, title)
}

func TestBrowserDownloadFailureStatus(t *testing.T) {
	b, view := newTestBrowser(t)
	require.NoError(t, b.Downloads().Close())

	err := b.Download("http://site.test/a.zip")
	assert.True(t, errors.Is(err, ErrDownloadsClosed))
	assert.Contains(t, view.lastStatus(), "Download failed")
}
