package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/linkbrowser/internal/document"
	"github.com/dshills/linkbrowser/internal/injection"
)

func TestLoaderDefaults(t *testing.T) {
	loader := NewLoader()
	if loader.Dir() == "" {
		t.Error("Dir() should default to the user plugins directory")
	}
	if loader.initTimeout != DefaultInitTimeout {
		t.Errorf("initTimeout = %v, want %v", loader.initTimeout, DefaultInitTimeout)
	}
}

func TestLoaderCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "plugins")
	var log statusLog
	loader := NewLoader(WithDir(dir), WithStatus(log.add))

	res := loader.LoadAll(context.Background(), newRecordingInjector())

	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("plugins dir not created: %v", err)
	}
	if len(res.Loaded) != 0 || len(res.Failures) != 0 {
		t.Errorf("LoadAll() = %+v, want empty", res)
	}
	if !log.contains("Plugins directory does not exist. Creating at: " + dir) {
		t.Errorf("status = %v", log.all())
	}
	if !log.contains("No plugins found in the plugins directory.") {
		t.Errorf("status = %v", log.all())
	}
}

func TestLoaderDirCreateFailure(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(parent, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var log statusLog
	loader := NewLoader(WithDir(filepath.Join(parent, "plugins")), WithStatus(log.add))

	res := loader.LoadAll(context.Background(), newRecordingInjector())
	if len(res.Failures) != 1 || res.Failures[0].Stage != StageDiscover {
		t.Fatalf("Failures = %v, want one discover failure", res.Failures)
	}
	if !log.contains("Failed to create plugins directory.") {
		t.Errorf("status = %v", log.all())
	}
}

func TestLoaderDirReadFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plugins")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var log statusLog
	loader := NewLoader(WithDir(file), WithStatus(log.add))

	res := loader.LoadAll(context.Background(), newRecordingInjector())
	if len(res.Failures) != 1 || res.Failures[0].Stage != StageDiscover {
		t.Fatalf("Failures = %v, want one discover failure", res.Failures)
	}
	if !log.contains("Failed to read plugins directory.") {
		t.Errorf("status = %v", log.all())
	}
	if log.contains("Failed to create plugins directory.") {
		t.Errorf("status should not report a create failure: %v", log.all())
	}
}

func TestLoaderDiscoverFiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "b.zip", luaArchive("b", "1"))
	writeArchive(t, dir, "a.LBP", luaArchive("a", "1"))
	writeArchive(t, dir, "c.jar", luaArchive("c", "1"))
	if err := os.Mkdir(filepath.Join(dir, "d.zip"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := NewLoader(WithDir(dir)).Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("Discover() = %v, want 2 files", files)
	}
	if filepath.Base(files[0]) != "a.LBP" || filepath.Base(files[1]) != "b.zip" {
		t.Errorf("Discover() = %v, want sorted a.LBP, b.zip", files)
	}

	files, err = NewLoader(WithDir(dir), WithExtensions("jar")).Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "c.jar" {
		t.Errorf("Discover(jar) = %v", files)
	}
}

func TestLoaderIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "p1.zip", luaArchive("p1", "one()"))
	writeArchive(t, dir, "p2.zip", luaArchive("p2", "two()"))
	writeArchive(t, dir, "p3.zip", map[string]string{
		"init.lua": `error("broken on purpose")`,
	})
	writeArchive(t, dir, "p4.zip", luaArchive("p4", "four()"))
	writeArchive(t, dir, "p5.zip", luaArchive("p5", "five()"))

	var log statusLog
	inj := newRecordingInjector()
	loader := NewLoader(WithDir(dir), WithStatus(log.add))

	res := loader.LoadAll(context.Background(), inj)

	if len(res.Loaded) != 4 {
		t.Fatalf("Loaded = %d, want 4", len(res.Loaded))
	}
	if len(res.Failures) != 1 {
		t.Fatalf("Failures = %v, want 1", res.Failures)
	}
	if f := res.Failures[0]; f.Archive != "p3.zip" || f.Stage != StageResolve {
		t.Errorf("failure = %+v, want p3.zip at resolve", f)
	}

	want := []string{"p1", "p2", "p4", "p5"}
	for i, lp := range res.Loaded {
		if lp.Name() != want[i] {
			t.Errorf("Loaded[%d] = %q, want %q", i, lp.Name(), want[i])
		}
		if lp.State() != StateInitialized {
			t.Errorf("Loaded[%d] state = %v", i, lp.State())
		}
	}
	if scripts := inj.Scripts(); len(scripts) != 4 || scripts[2] != "four()" {
		t.Errorf("scripts = %v", scripts)
	}

	if !log.contains("Found 5 plugin(s). Loading...") {
		t.Errorf("status = %v", log.all())
	}
	if !log.contains("Loading plugin from: p3.zip") {
		t.Errorf("status = %v", log.all())
	}
	if log.contains("All plugins loaded successfully.") {
		t.Error("completion message should report failures")
	}
	if res.Err() == nil {
		t.Error("Result.Err() = nil, want failure")
	}
}

func TestLoaderIsolatesFailuresWithinArchive(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"plugin.json": `{"name": "five", "version": "1.0.0", "entries": [
  {"kind": "lua", "main": "p1.lua"},
  {"kind": "lua", "main": "p2.lua"},
  {"kind": "lua", "main": "p3.lua"},
  {"kind": "lua", "main": "p4.lua"},
  {"kind": "lua", "main": "p5.lua"}]}`,
		"p3.lua": `error("broken on purpose")`,
	}
	for _, n := range []string{"p1", "p2", "p4", "p5"} {
		files[n+".lua"] = `
return {
  name = "` + n + `",
  initialize = function(host) host.add_script("` + n + `") end,
  shutdown = function() end,
}`
	}
	writeArchive(t, dir, "five.zip", files)

	inj := newRecordingInjector()
	res := NewLoader(WithDir(dir)).LoadAll(context.Background(), inj)

	if len(res.Loaded) != 4 {
		t.Fatalf("Loaded = %d, want 4", len(res.Loaded))
	}
	if len(res.Failures) != 1 {
		t.Fatalf("Failures = %v, want 1", res.Failures)
	}
	if f := res.Failures[0]; f.Stage != StageResolve || f.Entry != "lua:p3.lua" {
		t.Errorf("failure = %+v, want lua:p3.lua at resolve", f)
	}

	want := []string{"p1", "p2", "p4", "p5"}
	for i, lp := range res.Loaded {
		if lp.Name() != want[i] {
			t.Errorf("Loaded[%d] = %q, want %q", i, lp.Name(), want[i])
		}
	}
	scripts := inj.Scripts()
	if len(scripts) != len(want) {
		t.Fatalf("scripts = %v, want %v", scripts, want)
	}
	for i := range want {
		if scripts[i] != want[i] {
			t.Errorf("scripts = %v, want %v", scripts, want)
			break
		}
	}
}

func TestLoaderAllSucceed(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "only.zip", luaArchive("only", "x()"))

	var log statusLog
	res := NewLoader(WithDir(dir), WithStatus(log.add)).LoadAll(context.Background(), newRecordingInjector())

	if len(res.Loaded) != 1 || res.Err() != nil {
		t.Fatalf("LoadAll() = %+v", res)
	}
	if !log.contains("All plugins loaded successfully.") {
		t.Errorf("status = %v", log.all())
	}
	if !log.contains("Loaded plugin: only v1.0.0") {
		t.Errorf("status = %v", log.all())
	}
}

func TestLoaderCapabilityCheck(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "half.zip", map[string]string{
		"init.lua": `return { name = "half", initialize = function() end }`,
	})
	writeArchive(t, dir, "scalar.zip", map[string]string{
		"init.lua": `return 42`,
	})

	res := NewLoader(WithDir(dir)).LoadAll(context.Background(), newRecordingInjector())
	if len(res.Failures) != 2 {
		t.Fatalf("Failures = %v, want 2", res.Failures)
	}
	if !errors.Is(res.Failures[0], ErrNotCapable) || res.Failures[0].Stage != StageCapability {
		t.Errorf("half: %v", res.Failures[0])
	}
	if !errors.Is(res.Failures[1], ErrNotInstantiable) {
		t.Errorf("scalar: %v", res.Failures[1])
	}
}

func TestLoaderPluginGlobal(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "globals.zip", map[string]string{
		"plugin.json": `{"name": "globals", "version": "1.0.0", "entries": [
  {"kind": "lua", "main": "a.lua"},
  {"kind": "lua", "main": "b.lua"}]}`,
		"a.lua": `
plugin = {
  name = "from-global",
  initialize = function(host) host.add_script("g()") end,
  shutdown = function() end,
}`,
		"b.lua": `local unused = 1`,
	})

	inj := newRecordingInjector()
	res := NewLoader(WithDir(dir)).LoadAll(context.Background(), inj)

	if len(res.Loaded) != 1 || res.Loaded[0].Name() != "from-global" {
		t.Fatalf("Loaded = %v, want from-global", res.Loaded)
	}
	if len(res.Failures) != 1 || !errors.Is(res.Failures[0], ErrNotInstantiable) {
		t.Fatalf("Failures = %v, want b.lua not instantiable", res.Failures)
	}
	if f := res.Failures[0]; f.Entry != "lua:b.lua" {
		t.Errorf("failure entry = %q, want lua:b.lua", f.Entry)
	}
}

func TestLoaderDisabled(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "off.zip", map[string]string{
		"plugin.json": `{"name": "off", "enabled": false}`,
		"init.lua":    `error("must not run")`,
	})
	writeArchive(t, dir, "muted.zip", luaArchive("muted", "m()"))
	writeArchive(t, dir, "on.zip", luaArchive("on", "o()"))

	var log statusLog
	inj := newRecordingInjector()
	res := NewLoader(WithDir(dir), WithDisabled("muted"), WithStatus(log.add)).LoadAll(context.Background(), inj)

	if len(res.Loaded) != 1 || res.Loaded[0].Name() != "on" {
		t.Fatalf("Loaded = %v, want only on", res.Loaded)
	}
	if len(res.Failures) != 0 {
		t.Errorf("Failures = %v", res.Failures)
	}
	if len(res.Skipped) != 2 {
		t.Errorf("Skipped = %v, want 2", res.Skipped)
	}
	if !log.contains("Skipping disabled plugin: off") || !log.contains("Skipping disabled plugin: muted") {
		t.Errorf("status = %v", log.all())
	}
	if scripts := inj.Scripts(); len(scripts) != 1 {
		t.Errorf("scripts = %v, want only the enabled plugin's", scripts)
	}
}

func TestLoaderMultipleEntriesShareState(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "pair.zip", map[string]string{
		"plugin.json": `{"name": "pair", "entries": [{"main": "a.lua"}, {"main": "b.lua"}]}`,
		"shared.lua":  `counter = (counter or 0) + 1; return counter`,
		"a.lua": `
local n = require("shared")
return { name = "a", initialize = function(h) h.add_script("a" .. n) end, shutdown = function() end }`,
		"b.lua": `
local n = require("shared")
return { name = "b", initialize = function(h) h.add_script("b" .. counter) end, shutdown = function() end }`,
	})

	inj := newRecordingInjector()
	res := NewLoader(WithDir(dir)).LoadAll(context.Background(), inj)
	if len(res.Loaded) != 2 {
		t.Fatalf("Loaded = %v, Failures = %v", res.Loaded, res.Failures)
	}
	// require caches the module, so the global is set once per archive state.
	scripts := inj.Scripts()
	if len(scripts) != 2 || scripts[0] != "a1" || scripts[1] != "b1" {
		t.Errorf("scripts = %v, want [a1 b1]", scripts)
	}
	if res.Loaded[0].ac != res.Loaded[1].ac {
		t.Error("entries of one archive should share a context")
	}
}

func TestLoaderArchivesAreIsolated(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "a.zip", map[string]string{
		"init.lua": `leak = "from a"; return { name = "a", initialize = function() end, shutdown = function() end }`,
	})
	writeArchive(t, dir, "b.zip", map[string]string{
		"init.lua": `
return { name = "b", initialize = function(h) h.add_script(tostring(leak)) end, shutdown = function() end }`,
	})

	inj := newRecordingInjector()
	res := NewLoader(WithDir(dir)).LoadAll(context.Background(), inj)
	if len(res.Loaded) != 2 {
		t.Fatalf("Loaded = %v, Failures = %v", res.Loaded, res.Failures)
	}
	if scripts := inj.Scripts(); len(scripts) != 1 || scripts[0] != "nil" {
		t.Errorf("scripts = %v, want [nil]", scripts)
	}
}

func TestLoaderNativeEntries(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "a.zip", nativeArchive("a", "good"))
	writeArchive(t, dir, "b.zip", nativeArchive("b", "missing"))
	writeArchive(t, dir, "c.zip", nativeArchive("c", "nil"))
	writeArchive(t, dir, "d.zip", nativeArchive("d", "wrong"))
	writeArchive(t, dir, "e.zip", nativeArchive("e", "panics"))

	good := &nativePlugin{name: "good", script: "g()"}
	factories := NewFactories()
	factories.Register("good", func() any { return good })
	factories.Register("nil", func() any { return nil })
	factories.Register("wrong", func() any { return "not a plugin" })
	factories.Register("panics", func() any { panic("factory exploded") })

	inj := newRecordingInjector()
	res := NewLoader(WithDir(dir), WithFactories(factories)).LoadAll(context.Background(), inj)

	if len(res.Loaded) != 1 || res.Loaded[0].Plugin != good {
		t.Fatalf("Loaded = %v", res.Loaded)
	}
	if len(res.Failures) != 4 {
		t.Fatalf("Failures = %v, want 4", res.Failures)
	}
	wants := []error{ErrUnknownFactory, ErrNotInstantiable, ErrNotCapable, ErrNotInstantiable}
	for i, want := range wants {
		if !errors.Is(res.Failures[i], want) {
			t.Errorf("Failures[%d] = %v, want %v", i, res.Failures[i], want)
		}
	}
}

func TestLoaderInitializeFailures(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "a.zip", nativeArchive("a", "err"))
	writeArchive(t, dir, "b.zip", nativeArchive("b", "panic"))
	writeArchive(t, dir, "c.zip", map[string]string{
		"init.lua": `
return {
  name = "c",
  initialize = function(h) h.add_script("c()"); return false, "not today" end,
  shutdown = function() end,
}`,
	})

	factories := NewFactories()
	factories.Register("err", func() any {
		return &nativePlugin{name: "err", script: "err()", initErr: errors.New("init failed")}
	})
	factories.Register("panic", func() any {
		return &nativePlugin{name: "panic", script: "panic()", initPanic: true}
	})

	inj := newRecordingInjector()
	res := NewLoader(WithDir(dir), WithFactories(factories)).LoadAll(context.Background(), inj)

	if len(res.Loaded) != 0 {
		t.Errorf("Loaded = %v, want none", res.Loaded)
	}
	if len(res.Failures) != 3 {
		t.Fatalf("Failures = %v, want 3", res.Failures)
	}
	for _, f := range res.Failures {
		if f.Stage != StageInitialize {
			t.Errorf("%v: stage = %q, want initialize", f, f.Stage)
		}
	}
	if scripts := inj.Scripts(); len(scripts) != 0 {
		t.Errorf("scripts = %v, failed plugins must not register", scripts)
	}
}

func TestLoaderInitTimeout(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "slow.zip", nativeArchive("slow", "slow"))
	writeArchive(t, dir, "spin.zip", map[string]string{
		"init.lua": `
return { name = "spin", initialize = function() while true do end end, shutdown = function() end }`,
	})
	writeArchive(t, dir, "zfast.zip", luaArchive("zfast", "fast()"))

	slow := &nativePlugin{name: "slow", script: "slow()", block: make(chan struct{})}
	factories := NewFactories()
	factories.Register("slow", func() any { return slow })

	inj := newRecordingInjector()
	loader := NewLoader(WithDir(dir), WithFactories(factories), WithInitTimeout(50*time.Millisecond))
	res := loader.LoadAll(context.Background(), inj)

	if len(res.Failures) != 2 {
		t.Fatalf("Failures = %v, want 2", res.Failures)
	}
	if !errors.Is(res.Failures[0], ErrInitTimeout) {
		t.Errorf("slow: %v, want ErrInitTimeout", res.Failures[0])
	}
	if len(res.Loaded) != 1 || res.Loaded[0].Name() != "zfast" {
		t.Errorf("Loaded = %v, want zfast", res.Loaded)
	}

	// A late Initialize is undone and never registers.
	close(slow.block)
	deadline := time.Now().Add(2 * time.Second)
	for slow.shutdownCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if slow.shutdownCount() != 1 {
		t.Errorf("late plugin shutdowns = %d, want 1", slow.shutdownCount())
	}
	if scripts := inj.Scripts(); len(scripts) != 1 || scripts[0] != "fast()" {
		t.Errorf("scripts = %v, want only fast()", scripts)
	}
}

func TestLoaderCancelled(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "a.zip", luaArchive("a", "a()"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewLoader(WithDir(dir)).LoadAll(ctx, newRecordingInjector())
	if len(res.Loaded) != 0 {
		t.Errorf("Loaded = %v, want none after cancel", res.Loaded)
	}
}

func TestLuaBridgeInDocument(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "echo.zip", map[string]string{
		"plugin.json": `{"name": "echo", "version": "0.1.0"}`,
		"lib/fmt.lua": `return { wrap = function(s) return "<" .. s .. ">" end }`,
		"init.lua": `
local f = require("lib.fmt")
return {
  name = "echo",
  initialize = function(host)
    host.add_bridge("echo", {
      kind = "lua",
      say = function(s) return f.wrap(s) end,
    })
    host.add_script("window.said = echo.say(document.title)")
  end,
  shutdown = function() end,
}`,
	})

	engine := document.NewEngine(document.WithFetcher(document.Pages{
		"page://a": `<html><head><title>hello</title></head></html>`,
	}))
	t.Cleanup(func() { engine.Close() })

	succeeded := make(chan struct{}, 4)
	engine.Subscribe(func(_, next document.NavigationState) {
		if next == document.StateSucceeded {
			succeeded <- struct{}{}
		}
	})

	reg := injection.New(engine)
	loader := NewLoader(WithDir(dir))
	res := loader.LoadAll(context.Background(), reg)
	if len(res.Loaded) != 1 {
		t.Fatalf("LoadAll() = %v", res.Failures)
	}

	if err := engine.Navigate("page://a"); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	select {
	case <-succeeded:
	case <-time.After(5 * time.Second):
		t.Fatal("navigation did not succeed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var said, kind any
	err := engine.Do(ctx, func() error {
		var err error
		if said, err = engine.ExecuteScript(`window.said`); err != nil {
			return err
		}
		kind, err = engine.ExecuteScript(`echo.kind`)
		return err
	})
	if err != nil {
		t.Fatalf("ExecuteScript() error = %v", err)
	}
	if said != "<hello>" {
		t.Errorf("said = %v, want <hello>", said)
	}
	if kind != "lua" {
		t.Errorf("echo.kind = %v, want lua", kind)
	}
}
