package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/linkbrowser/internal/config/loader"
)

// Config is the complete LinkBrowser configuration.
type Config struct {
	Plugins   PluginsConfig   `toml:"plugins"`
	Startup   StartupConfig   `toml:"startup"`
	Document  DocumentConfig  `toml:"document"`
	Downloads DownloadsConfig `toml:"downloads"`
	Logging   LoggingConfig   `toml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// PluginsConfig controls plugin discovery and lifecycle.
type PluginsConfig struct {
	Dir             string   `toml:"dir"`
	Extensions      []string `toml:"extensions"`
	InitTimeout     Duration `toml:"init_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	// Disabled lists plugin names that are skipped before Initialize.
	Disabled []string `toml:"disabled"`
}

// StartupConfig controls the splash screen and first page.
type StartupConfig struct {
	MinSplash Duration `toml:"min_splash"`
	HomePage  string   `toml:"home_page"`
}

// DocumentConfig controls page loading and scripting.
type DocumentConfig struct {
	ScriptTimeout Duration `toml:"script_timeout"`
	UserAgent     string   `toml:"user_agent"`
	Flash         bool     `toml:"flash"`
}

// DownloadsConfig controls where downloads are saved.
type DownloadsConfig struct {
	Dir string `toml:"dir"`
}

// LoggingConfig controls the application logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	File   string `toml:"file"`
	Format string `toml:"format"`
}

// MetricsConfig controls the debug HTTP endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Defaults.
const (
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) LinkEngine/1.0 LinkBrowser/Prototype rv:1.0"
	DefaultHomePage  = "link://open/about"
	appDir           = "~/LinkBrowser"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Plugins: PluginsConfig{
			Dir:             appDir + "/plugins",
			Extensions:      []string{".zip", ".lbp"},
			InitTimeout:     Duration(10 * time.Second),
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Startup: StartupConfig{
			MinSplash: Duration(3 * time.Second),
			HomePage:  DefaultHomePage,
		},
		Document: DocumentConfig{
			ScriptTimeout: Duration(5 * time.Second),
			UserAgent:     DefaultUserAgent,
			Flash:         true,
		},
		Downloads: DownloadsConfig{
			Dir: "~/Downloads",
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   appDir + "/linkbrowser.log",
			Format: "console",
		},
	}
}

// DefaultPath returns ~/LinkBrowser/config.toml.
func DefaultPath() string {
	return ExpandHome(appDir + "/config.toml")
}

// Loader builds a Config from defaults, a file and the environment.
type Loader struct {
	toml *loader.TOMLLoader
	env  *loader.EnvLoader
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithFS reads the config file from fsys.
func WithFS(fsys loader.FileSystem) LoaderOption {
	return func(l *Loader) {
		l.toml = loader.NewTOMLLoaderWithFS(fsys)
	}
}

// WithEnvLookup replaces os.LookupEnv for overrides.
func WithEnvLookup(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		l.env.WithLookup(fn)
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		toml: loader.NewTOMLLoader(),
		env:  newEnvLoader(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads path over the defaults, applies environment overrides,
// expands paths and validates. A missing file is not an error.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := l.toml.LoadInto(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, l.env.Load()); err != nil {
		return nil, err
	}
	cfg.ExpandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is NewLoader().Load(path).
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Save writes cfg to path as TOML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := loader.Encode(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}

// ExpandPaths replaces a leading ~ in every path setting.
func (c *Config) ExpandPaths() {
	c.Plugins.Dir = ExpandHome(c.Plugins.Dir)
	c.Downloads.Dir = ExpandHome(c.Downloads.Dir)
	c.Logging.File = ExpandHome(c.Logging.File)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"console", "json"}
)

// Validate checks every setting and joins all failures.
func (c *Config) Validate() error {
	var errs []error
	add := func(path, msg string, value any, code ValidationErrorCode) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: value, Code: code})
	}

	if strings.TrimSpace(c.Plugins.Dir) == "" {
		add("plugins.dir", "must not be empty", c.Plugins.Dir, ErrCodeRequiredMissing)
	}
	if len(c.Plugins.Extensions) == 0 {
		add("plugins.extensions", "must list at least one extension", c.Plugins.Extensions, ErrCodeRequiredMissing)
	}
	for _, ext := range c.Plugins.Extensions {
		if strings.Trim(strings.TrimSpace(ext), ".") == "" {
			add("plugins.extensions", "blank extension", ext, ErrCodeRequiredMissing)
		}
	}

	durations := []struct {
		path string
		d    Duration
	}{
		{"plugins.init_timeout", c.Plugins.InitTimeout},
		{"plugins.shutdown_timeout", c.Plugins.ShutdownTimeout},
		{"startup.min_splash", c.Startup.MinSplash},
		{"document.script_timeout", c.Document.ScriptTimeout},
	}
	for _, d := range durations {
		if d.d < 0 {
			add(d.path, "must not be negative", d.d, ErrCodeOutOfRange)
		}
	}

	if strings.TrimSpace(c.Downloads.Dir) == "" {
		add("downloads.dir", "must not be empty", c.Downloads.Dir, ErrCodeRequiredMissing)
	}
	if !oneOf(c.Logging.Level, logLevels) {
		add("logging.level", "must be one of "+strings.Join(logLevels, ", "), c.Logging.Level, ErrCodeInvalidEnum)
	}
	if !oneOf(c.Logging.Format, logFormats) {
		add("logging.format", "must be one of "+strings.Join(logFormats, ", "), c.Logging.Format, ErrCodeInvalidEnum)
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}
