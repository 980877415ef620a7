package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/linkbrowser/internal/metrics"
)

// DefaultInitTimeout bounds a single plugin's Initialize call.
const DefaultInitTimeout = 10 * time.Second

// errCreateDir marks a discovery failure while creating the directory.
var errCreateDir = errors.New("create plugins directory")

// DefaultExtensions are the archive extensions scanned by default.
var DefaultExtensions = []string{".zip", ".lbp"}

// Loader discovers module archives in a directory and loads the plugins
// they contain. Each archive gets its own Lua state; a failure in one
// archive or entry never affects another.
type Loader struct {
	dir         string
	extensions  []string
	initTimeout time.Duration
	disabled    map[string]bool
	logger      *zap.Logger
	status      StatusFunc
	metrics     *metrics.Metrics
	factories   *Factories
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithDir sets the plugins directory.
func WithDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.dir = dir
	}
}

// WithExtensions sets the archive extensions to scan. A leading dot is added
// when missing.
func WithExtensions(exts ...string) LoaderOption {
	return func(l *Loader) {
		l.extensions = l.extensions[:0]
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			l.extensions = append(l.extensions, ext)
		}
	}
}

// WithInitTimeout bounds each Initialize call. Zero disables the bound.
func WithInitTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.initTimeout = d
	}
}

// WithDisabled names plugins that are skipped without being initialized.
func WithDisabled(names ...string) LoaderOption {
	return func(l *Loader) {
		for _, n := range names {
			l.disabled[n] = true
		}
	}
}

// WithLogger sets the loader logger.
func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithStatus sets the receiver of user-visible status messages.
func WithStatus(fn StatusFunc) LoaderOption {
	return func(l *Loader) {
		if fn != nil {
			l.status = fn
		}
	}
}

// WithMetrics records load outcomes.
func WithMetrics(m *metrics.Metrics) LoaderOption {
	return func(l *Loader) {
		l.metrics = m
	}
}

// WithFactories sets the registry native entries resolve against.
func WithFactories(f *Factories) LoaderOption {
	return func(l *Loader) {
		if f != nil {
			l.factories = f
		}
	}
}

// NewLoader creates a loader. The directory defaults to DefaultDir().
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		extensions:  append([]string(nil), DefaultExtensions...),
		initTimeout: DefaultInitTimeout,
		disabled:    make(map[string]bool),
		logger:      zap.NewNop(),
		status:      func(string) {},
		factories:   DefaultFactories,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.dir == "" {
		l.dir = DefaultDir()
	}
	return l
}

// DefaultDir returns ~/LinkBrowser/plugins, or a relative path when the home
// directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("LinkBrowser", "plugins")
	}
	return filepath.Join(home, "LinkBrowser", "plugins")
}

// Dir returns the plugins directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Loaded is a plugin that finished Initialize.
type Loaded struct {
	Plugin   Plugin
	Archive  string
	Entry    Entry
	LoadedAt time.Time

	host  *pluginHost
	ac    *archiveContext
	state State
}

// Name returns the plugin name.
func (l *Loaded) Name() string {
	return l.Plugin.Name()
}

// State returns the lifecycle state.
func (l *Loaded) State() State {
	return l.state
}

// Info describes a loaded plugin.
type Info struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Archive     string    `json:"archive"`
	Entry       string    `json:"entry"`
	State       State     `json:"state"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// Info returns a snapshot of the plugin's identity and state.
func (l *Loaded) Info() Info {
	return Info{
		Name:        l.Plugin.Name(),
		Version:     l.Plugin.Version(),
		Description: l.Plugin.Description(),
		Archive:     l.Archive,
		Entry:       l.Entry.String(),
		State:       l.state,
		LoadedAt:    l.LoadedAt,
	}
}

// release frees the archive's Lua state once no plugin uses it.
func (l *Loaded) release() {
	if l.ac != nil {
		l.ac.release()
		l.ac = nil
	}
}

// Result summarizes a load pass.
type Result struct {
	Archives int
	Loaded   []*Loaded
	Failures []*LoadError
	Skipped  []string
}

// Err joins all failures, or returns nil.
func (r Result) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Discover returns the archive files in the plugins directory in name order,
// creating the directory when it cannot be found.
func (l *Loader) Discover() ([]string, error) {
	if _, err := os.Stat(l.dir); err != nil {
		l.status("Plugins directory does not exist. Creating at: " + l.dir)
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", errCreateDir, err)
		}
		return nil, nil
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !l.matches(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(l.dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (l *Loader) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range l.extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// LoadAll loads every archive in the plugins directory and registers the
// plugins' scripts and bridges with injector.
func (l *Loader) LoadAll(ctx context.Context, injector Injector) Result {
	return l.LoadEach(ctx, injector, nil)
}

// LoadEach is LoadAll with a callback invoked for each plugin as soon as it
// is loaded.
func (l *Loader) LoadEach(ctx context.Context, injector Injector, fn func(*Loaded)) Result {
	var res Result

	files, err := l.Discover()
	if err != nil {
		if errors.Is(err, errCreateDir) {
			l.status("Failed to create plugins directory.")
		} else {
			l.status("Failed to read plugins directory.")
		}
		l.logger.Error("plugin discovery failed", zap.String("dir", l.dir), zap.Error(err))
		res.Failures = append(res.Failures, &LoadError{Archive: l.dir, Stage: StageDiscover, Err: err})
		l.metrics.RecordPluginFailure(string(StageDiscover))
		return res
	}
	if len(files) == 0 {
		l.status("No plugins found in the plugins directory.")
		return res
	}

	l.status(fmt.Sprintf("Found %d plugin(s). Loading...", len(files)))
	res.Archives = len(files)

	for _, file := range files {
		if ctx.Err() != nil {
			l.logger.Info("plugin load cancelled", zap.Error(ctx.Err()))
			break
		}
		l.loadArchive(ctx, file, injector, &res, fn)
	}

	if len(res.Failures) == 0 {
		l.status("All plugins loaded successfully.")
	} else {
		l.status(fmt.Sprintf("Plugins loaded with errors: %d loaded, %d failed.", len(res.Loaded), len(res.Failures)))
	}
	return res
}

func (l *Loader) loadArchive(ctx context.Context, file string, injector Injector, res *Result, fn func(*Loaded)) {
	base := filepath.Base(file)
	l.status("Loading plugin from: " + base)

	a, stage, err := openArchive(file)
	if err != nil {
		l.fail(res, &LoadError{Archive: base, Stage: stage, Err: err})
		return
	}

	m := a.manifest
	if !m.IsEnabled() || l.disabled[m.Name] {
		l.skip(res, m.Name)
		return
	}

	ac := newArchiveContext(a, l.logger.Named(m.Name))
	defer ac.release()

	for _, e := range m.Entries {
		lp, skipped, err := l.loadEntry(ctx, a, ac, e, injector)
		if err != nil {
			l.fail(res, err)
			continue
		}
		if lp == nil {
			l.skip(res, skipped)
			continue
		}
		res.Loaded = append(res.Loaded, lp)
		l.metrics.RecordPluginLoaded()
		l.status(fmt.Sprintf("Loaded plugin: %s v%s", lp.Name(), lp.Plugin.Version()))
		if fn != nil {
			fn(lp)
		}
	}
}

// loadEntry resolves and initializes one entry. A nil *Loaded with a nil
// error means the entry was skipped under the returned name.
func (l *Loader) loadEntry(ctx context.Context, a *archive, ac *archiveContext, e Entry, injector Injector) (*Loaded, string, *LoadError) {
	fail := func(stage Stage, err error) (*Loaded, string, *LoadError) {
		return nil, "", &LoadError{Archive: a.name, Entry: e.String(), Stage: stage, Err: err}
	}

	p, stage, err := l.resolve(ctx, a, ac, e)
	if err != nil {
		return fail(stage, err)
	}

	if l.disabled[p.Name()] {
		return nil, p.Name(), nil
	}

	host, err := l.initialize(ctx, p, injector)
	if err != nil {
		return fail(StageInitialize, err)
	}
	if err := host.commit(); err != nil {
		l.logger.Warn("plugin registrations partially rejected", zap.String("plugin", p.Name()), zap.Error(err))
	}

	lp := &Loaded{
		Plugin:   p,
		Archive:  a.name,
		Entry:    e,
		LoadedAt: time.Now(),
		host:     host,
		state:    StateInitialized,
	}
	if _, ok := p.(*luaPlugin); ok {
		ac.acquire()
		lp.ac = ac
	}
	l.logger.Info("plugin loaded",
		zap.String("plugin", p.Name()),
		zap.String("version", p.Version()),
		zap.String("archive", a.name),
		zap.Stringer("entry", e),
	)
	return lp, "", nil
}

// resolve turns an entry into a Plugin instance.
func (l *Loader) resolve(ctx context.Context, a *archive, ac *archiveContext, e Entry) (p Plugin, stage Stage, err error) {
	switch e.Kind {
	case EntryLua:
		rctx, cancel := l.bound(ctx)
		defer cancel()
		return resolveLua(rctx, a, ac, e)
	case EntryNative:
		return l.resolveNative(e)
	default:
		return nil, StageResolve, fmt.Errorf("%w: unknown entry kind %q", ErrNotInstantiable, e.Kind)
	}
}

func (l *Loader) resolveNative(e Entry) (p Plugin, stage Stage, err error) {
	factory, ok := l.factories.Lookup(e.ID)
	if !ok {
		return nil, StageResolve, fmt.Errorf("%w: %q", ErrUnknownFactory, e.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			p, stage, err = nil, StageResolve, fmt.Errorf("%w: factory panic: %v", ErrNotInstantiable, r)
		}
	}()

	v := factory()
	if v == nil {
		return nil, StageResolve, fmt.Errorf("%w: factory %q returned nil", ErrNotInstantiable, e.ID)
	}
	p, ok = v.(Plugin)
	if !ok {
		return nil, StageCapability, fmt.Errorf("%w: %T", ErrNotCapable, v)
	}
	return p, "", nil
}

// initialize runs p.Initialize under the init timeout. On timeout the host is
// revoked and a late successful Initialize is followed by Shutdown.
func (l *Loader) initialize(ctx context.Context, p Plugin, injector Injector) (*pluginHost, error) {
	initCtx, cancel := l.bound(ctx)
	defer cancel()

	logger := l.logger.Named(p.Name())
	host := newPluginHost(initCtx, p.Name(), injector, logger, l.status)

	done := make(chan error, 1)
	go func() {
		done <- callInitialize(p, host)
	}()

	select {
	case err := <-done:
		if err != nil {
			host.revoke()
		}
		return host, err
	case <-initCtx.Done():
		host.revoke()
		go func() {
			if err := <-done; err == nil {
				if err := callShutdown(p); err != nil {
					logger.Warn("shutdown after late initialize failed", zap.Error(err))
				}
			}
		}()
		if errors.Is(initCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrInitTimeout, l.initTimeout)
		}
		return nil, initCtx.Err()
	}
}

// bound applies the init timeout to ctx.
func (l *Loader) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.initTimeout > 0 {
		return context.WithTimeout(ctx, l.initTimeout)
	}
	return context.WithCancel(ctx)
}

func callInitialize(p Plugin, host Host) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initialize panic: %v", r)
		}
	}()
	return p.Initialize(host)
}

func callShutdown(p Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("shutdown panic: %v", r)
		}
	}()
	return p.Shutdown()
}

func (l *Loader) fail(res *Result, le *LoadError) {
	res.Failures = append(res.Failures, le)
	l.metrics.RecordPluginFailure(string(le.Stage))
	l.logger.Warn("plugin load failed",
		zap.String("archive", le.Archive),
		zap.String("entry", le.Entry),
		zap.String("stage", string(le.Stage)),
		zap.Error(le.Err),
	)
	l.status(fmt.Sprintf("Failed to load plugin from %s: %v", le.Archive, le.Err))
}

func (l *Loader) skip(res *Result, name string) {
	res.Skipped = append(res.Skipped, name)
	l.logger.Info("plugin disabled", zap.String("plugin", name))
	l.status("Skipping disabled plugin: " + name)
}
