package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

var testPages = Pages{
	"page://one": `<html><head><title>One</title></head><body>
		<script>var fromPage = "one";</script>
		<script>throw new Error("broken page script");</script>
		<script>var afterBroken = true;</script>
		<a href="page://two">two</a>
	</body></html>`,
	"page://two": `<html><head><title>Two</title></head><body>
		<script>
			document.addEventListener("contextmenu", function (e) {
				e.preventDefault();
				window.lastMenu = e.target.tagName + ":" + e.target.href + "@" + e.pageX + "," + e.pageY;
			});
		</script>
	</body></html>`,
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithFetcher(testPages)}, opts...)
	e := NewEngine(opts...)
	t.Cleanup(func() { e.Close() })
	return e
}

// record collects every transition target.
func record(t *testing.T, e *Engine) <-chan NavigationState {
	t.Helper()
	ch := make(chan NavigationState, 64)
	cancel := e.Subscribe(func(_, next NavigationState) {
		ch <- next
	})
	t.Cleanup(cancel)
	return ch
}

// waitFor reads transitions until want is seen and returns them all.
func waitFor(t *testing.T, ch <-chan NavigationState, want NavigationState) []NavigationState {
	t.Helper()
	var seen []NavigationState
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-ch:
			seen = append(seen, s)
			if s == want {
				return seen
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, saw %v", want, seen)
		}
	}
}

func evalOnLoop(t *testing.T, e *Engine, src string) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result any
	err := e.Do(ctx, func() error {
		var err error
		result, err = e.ExecuteScript(src)
		return err
	})
	return result, err
}

func TestEngineNavigateSucceeded(t *testing.T) {
	e := newTestEngine(t)
	states := record(t, e)

	if err := e.Navigate("page://one"); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	seen := waitFor(t, states, StateSucceeded)

	want := []NavigationState{StateScheduled, StateRunning, StateSucceeded}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", seen, want)
	}
	if e.State() != StateSucceeded {
		t.Errorf("State() = %s, want succeeded", e.State())
	}
	if page := e.Page(); page == nil || page.Title != "One" {
		t.Errorf("Page() = %+v", page)
	}

	// Page scripts ran, and a failing script did not stop later ones.
	got, err := evalOnLoop(t, e, `fromPage + ":" + afterBroken`)
	if err != nil {
		t.Fatalf("ExecuteScript() error = %v", err)
	}
	if got != "one:true" {
		t.Errorf("ExecuteScript() = %v, want one:true", got)
	}
}

func TestEngineFreshScopePerNavigation(t *testing.T) {
	e := newTestEngine(t)
	states := record(t, e)

	_ = e.Navigate("page://one")
	waitFor(t, states, StateSucceeded)
	if _, err := evalOnLoop(t, e, `var injected = 42;`); err != nil {
		t.Fatalf("ExecuteScript() error = %v", err)
	}

	_ = e.Reload()
	waitFor(t, states, StateSucceeded)

	got, err := evalOnLoop(t, e, `typeof injected`)
	if err != nil {
		t.Fatalf("ExecuteScript() error = %v", err)
	}
	if got != "undefined" {
		t.Errorf("typeof injected = %v, want undefined", got)
	}
}

func TestEngineNavigateFailed(t *testing.T) {
	e := newTestEngine(t)
	states := record(t, e)

	_ = e.Navigate("page://missing")
	seen := waitFor(t, states, StateFailed)
	for _, s := range seen {
		if s == StateSucceeded {
			t.Errorf("unexpected succeeded transition in %v", seen)
		}
	}
}

func TestEngineCancel(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context, _ string) (io.ReadCloser, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := newTestEngine(t, WithFetcher(fetcher))
	states := record(t, e)

	_ = e.Navigate("page://slow")
	waitFor(t, states, StateScheduled)
	_ = e.Cancel()
	waitFor(t, states, StateCancelled)

	// Drain the loop so a stale completion would have landed.
	_, _ = evalOnLoop(t, e, `1`)
	_, _ = evalOnLoop(t, e, `1`)
	if e.State() != StateCancelled {
		t.Errorf("State() = %s, want cancelled", e.State())
	}
}

func TestEngineSupersededNavigation(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context, u string) (io.ReadCloser, error) {
		if u == "page://slow" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return testPages.Fetch(ctx, u)
	})
	e := newTestEngine(t, WithFetcher(fetcher))
	states := record(t, e)

	_ = e.Navigate("page://slow")
	_ = e.Navigate("page://two")
	seen := waitFor(t, states, StateSucceeded)

	cancelled := false
	for _, s := range seen {
		if s == StateCancelled {
			cancelled = true
		}
		if s == StateFailed {
			t.Errorf("superseded load reported failure: %v", seen)
		}
	}
	if !cancelled {
		t.Errorf("expected a cancelled transition, saw %v", seen)
	}
	if e.URL() != "page://two" {
		t.Errorf("URL() = %q, want page://two", e.URL())
	}
}

func TestEngineScriptTimeout(t *testing.T) {
	e := newTestEngine(t, WithScriptTimeout(50*time.Millisecond))
	states := record(t, e)

	_ = e.Navigate("page://one")
	waitFor(t, states, StateSucceeded)

	_, err := evalOnLoop(t, e, `for (;;) {}`)
	if !errors.Is(err, ErrScriptTimeout) {
		t.Fatalf("ExecuteScript() error = %v, want ErrScriptTimeout", err)
	}

	// The runtime stays usable after an interrupt.
	got, err := evalOnLoop(t, e, `1 + 1`)
	if err != nil || got != int64(2) {
		t.Errorf("ExecuteScript() after timeout = %v, %v", got, err)
	}
}

func TestEngineNoDocument(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := e.Do(ctx, func() error {
		if _, err := e.ExecuteScript(`1`); !errors.Is(err, ErrNoDocument) {
			t.Errorf("ExecuteScript() = %v, want ErrNoDocument", err)
		}
		return e.BindGlobal("x", 1)
	})
	if !errors.Is(err, ErrNoDocument) {
		t.Errorf("BindGlobal() = %v, want ErrNoDocument", err)
	}
}

type greeter struct{ prefix string }

func (g *greeter) Greet(name string) string {
	return g.prefix + name
}

func TestEngineBindGlobal(t *testing.T) {
	e := newTestEngine(t)
	states := record(t, e)

	_ = e.Navigate("page://one")
	waitFor(t, states, StateSucceeded)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Do(ctx, func() error {
		return e.BindGlobal("greeter", &greeter{prefix: "hi "})
	}); err != nil {
		t.Fatalf("BindGlobal() error = %v", err)
	}

	got, err := evalOnLoop(t, e, `greeter.greet("there")`)
	if err != nil {
		t.Fatalf("ExecuteScript() error = %v", err)
	}
	if got != "hi there" {
		t.Errorf("greeter.greet() = %v, want %q", got, "hi there")
	}
}

func TestEngineDispatchEvent(t *testing.T) {
	e := newTestEngine(t)
	states := record(t, e)

	_ = e.Navigate("page://two")
	waitFor(t, states, StateSucceeded)

	target := Element{Tag: "a", Href: "page://one", Text: "one"}
	if err := e.DispatchEvent(Event{Type: "contextmenu", Target: target, PageX: 3, PageY: 4}); err != nil {
		t.Fatalf("DispatchEvent() error = %v", err)
	}

	got, err := evalOnLoop(t, e, `window.lastMenu`)
	if err != nil {
		t.Fatalf("ExecuteScript() error = %v", err)
	}
	if got != "A:page://one@3,4" {
		t.Errorf("lastMenu = %v", got)
	}
}

func TestEngineHistory(t *testing.T) {
	e := newTestEngine(t)
	states := record(t, e)

	if err := e.Back(); !errors.Is(err, ErrHistoryBoundary) {
		t.Errorf("Back() on empty history = %v, want ErrHistoryBoundary", err)
	}

	_ = e.Navigate("page://one")
	waitFor(t, states, StateSucceeded)
	_ = e.Navigate("page://two")
	waitFor(t, states, StateSucceeded)

	if err := e.Back(); err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	waitFor(t, states, StateSucceeded)
	if e.URL() != "page://one" {
		t.Errorf("URL() after Back = %q", e.URL())
	}
	if !e.CanGoForward() {
		t.Error("CanGoForward() = false after Back")
	}

	if err := e.Forward(); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	waitFor(t, states, StateSucceeded)
	if e.URL() != "page://two" {
		t.Errorf("URL() after Forward = %q", e.URL())
	}
	if e.CanGoForward() {
		t.Error("CanGoForward() = true at newest entry")
	}
}

func TestEngineSubscribeCancel(t *testing.T) {
	e := newTestEngine(t)
	states := record(t, e)

	calls := 0
	cancel := e.Subscribe(func(_, _ NavigationState) { calls++ })
	cancel()

	_ = e.Navigate("page://one")
	waitFor(t, states, StateSucceeded)

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = e.Do(ctx, func() error {
		if calls != 0 {
			t.Errorf("cancelled listener called %d times", calls)
		}
		return nil
	})
}

func TestNavigationStateString(t *testing.T) {
	tests := []struct {
		state NavigationState
		want  string
	}{
		{StateIdle, "idle"},
		{StateScheduled, "scheduled"},
		{StateRunning, "running"},
		{StateSucceeded, "succeeded"},
		{StateFailed, "failed"},
		{StateCancelled, "cancelled"},
		{NavigationState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
