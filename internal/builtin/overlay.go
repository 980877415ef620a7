// Package builtin holds native plugins linked into the binary. Archives
// select them by id with a native manifest entry.
package builtin

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/linkbrowser/internal/bridge"
	"github.com/dshills/linkbrowser/internal/plugin"
)

// StatusOverlayID is the native entry id of the status overlay.
const StatusOverlayID = "status-overlay"

// StatusOverlayBridge is the global name the overlay binds in documents.
const StatusOverlayBridge = "statusOverlay"

// OverlayScript installs window.updateStatus and window.getStatus on top of
// the statusOverlay bridge and reports the loaded page.
const OverlayScript = `(function() {
  window.updateStatus = function(text) { statusOverlay.update(String(text)); };
  window.getStatus = function() { return statusOverlay.text(); };
  statusOverlay.update("Loaded: " + (document.title || location.href));
})();`

// StatusOverlay mirrors the document's status text to a Go sink.
type StatusOverlay struct {
	sink   func(string)
	logger *zap.Logger

	mu      sync.Mutex
	text    string
	updates int
}

// NewStatusOverlay creates an overlay that forwards status text to sink.
// A nil sink only records the text.
func NewStatusOverlay(sink func(string)) *StatusOverlay {
	return &StatusOverlay{sink: sink, logger: zap.NewNop()}
}

func (o *StatusOverlay) Name() string    { return StatusOverlayID }
func (o *StatusOverlay) Version() string { return "1.0.0" }
func (o *StatusOverlay) Description() string {
	return "Mirrors window.updateStatus to the browser status line"
}

// Initialize binds the overlay bridge and registers OverlayScript.
func (o *StatusOverlay) Initialize(host plugin.Host) error {
	o.logger = host.Logger()
	host.AddBridge(StatusOverlayBridge, &overlayBridge{o: o})
	host.AddScript(OverlayScript)
	return nil
}

// Shutdown stops forwarding.
func (o *StatusOverlay) Shutdown() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sink = nil
	return nil
}

// Text returns the last status text.
func (o *StatusOverlay) Text() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.text
}

// Updates returns how many times the text was set.
func (o *StatusOverlay) Updates() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.updates
}

func (o *StatusOverlay) set(text string) {
	o.mu.Lock()
	o.text = text
	o.updates++
	sink := o.sink
	o.mu.Unlock()

	o.logger.Debug("status", zap.String("text", text))
	if sink != nil {
		sink(text)
	}
}

// overlayBridge is the object scripts see as statusOverlay.
type overlayBridge struct {
	o *StatusOverlay
}

// Update accepts any script value; non-strings are formatted.
func (b *overlayBridge) Update(text any) {
	b.o.set(bridge.ArgString(text))
}

func (b *overlayBridge) Text() string {
	return b.o.Text()
}

// Install registers the builtin factories in f. sink receives overlay text.
func Install(f *plugin.Factories, sink func(string)) {
	f.Register(StatusOverlayID, func() any {
		return NewStatusOverlay(sink)
	})
}

func init() {
	Install(plugin.DefaultFactories, nil)
}
