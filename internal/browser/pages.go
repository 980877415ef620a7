package browser

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/linkbrowser/internal/document"
)

const aboutPage = `<html><head><title>About LinkBrowser</title></head>
<body>
<h1>LinkBrowser</h1>
<p>A terminal browser that injects plugin scripts and native bridges into every page.</p>
<p>Plugins are loaded from the plugins directory at startup.</p>
<a href="link://open/settings">Settings</a>
<a href="link://open/github">Project page</a>
</body></html>`

const settingsPage = `<html><head><title>Settings</title></head>
<body>
<h1>Settings</h1>
<p>Flash emulation is %s.</p>
<a href="%s">%s</a>
<a href="link://open/about">About LinkBrowser</a>
</body></html>`

// Pages serves the built-in link:// documents and passes every other URL
// to the next fetcher.
type Pages struct {
	next  document.Fetcher
	flash func() bool
}

// NewPages wraps next. flash reports the current flash setting for the
// Settings page.
func NewPages(next document.Fetcher, flash func() bool) *Pages {
	if flash == nil {
		flash = func() bool { return false }
	}
	return &Pages{next: next, flash: flash}
}

// Fetch implements document.Fetcher.
func (p *Pages) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	switch strings.TrimRight(strings.ToLower(rawURL), "/") {
	case AboutURL:
		return io.NopCloser(strings.NewReader(aboutPage)), nil
	case SettingsURL:
		return io.NopCloser(strings.NewReader(p.settings())), nil
	}
	if IsInternal(rawURL) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, rawURL)
	}
	if p.next == nil {
		return nil, fmt.Errorf("%w: %s", document.ErrUnsupportedScheme, rawURL)
	}
	return p.next.Fetch(ctx, rawURL)
}

func (p *Pages) settings() string {
	if p.flash() {
		return fmt.Sprintf(settingsPage, "enabled", RouteFlashOff, "Disable flash")
	}
	return fmt.Sprintf(settingsPage, "disabled", RouteFlashOn, "Enable flash")
}
