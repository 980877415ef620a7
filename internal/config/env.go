package config

import (
	"errors"
	"time"

	"github.com/dshills/linkbrowser/internal/config/loader"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LINKBROWSER_"

// envMapping maps variable suffixes to setting keys.
var envMapping = map[string]string{
	"PLUGINS_DIR":        "plugins.dir",
	"PLUGINS_EXTENSIONS": "plugins.extensions",
	"PLUGINS_DISABLED":   "plugins.disabled",
	"INIT_TIMEOUT":       "plugins.init_timeout",
	"SHUTDOWN_TIMEOUT":   "plugins.shutdown_timeout",
	"MIN_SPLASH":         "startup.min_splash",
	"HOME_PAGE":          "startup.home_page",
	"SCRIPT_TIMEOUT":     "document.script_timeout",
	"USER_AGENT":         "document.user_agent",
	"FLASH":              "document.flash",
	"DOWNLOADS_DIR":      "downloads.dir",
	"LOG_LEVEL":          "logging.level",
	"LOG_FILE":           "logging.file",
	"LOG_FORMAT":         "logging.format",
	"METRICS_ADDR":       "metrics.addr",
}

func newEnvLoader() *loader.EnvLoader {
	return loader.NewEnvLoader(EnvPrefix, envMapping)
}

// EnvVars returns the supported environment variables.
func EnvVars() []string {
	return newEnvLoader().Vars()
}

// applyEnv sets each overridden key on cfg.
func applyEnv(cfg *Config, values map[string]string) error {
	var errs []error
	for key, raw := range values {
		if err := set(cfg, key, raw); err != nil {
			errs = append(errs, &ValidationError{
				Path:    key,
				Message: "environment override: " + err.Error(),
				Value:   raw,
				Code:    ErrCodeTypeMismatch,
			})
		}
	}
	return errors.Join(errs...)
}

// set assigns raw to the setting named key.
func set(cfg *Config, key, raw string) error {
	switch key {
	case "plugins.dir":
		cfg.Plugins.Dir = raw
	case "plugins.extensions":
		cfg.Plugins.Extensions = loader.ParseList(raw)
	case "plugins.disabled":
		cfg.Plugins.Disabled = loader.ParseList(raw)
	case "plugins.init_timeout":
		return setDuration(&cfg.Plugins.InitTimeout, raw)
	case "plugins.shutdown_timeout":
		return setDuration(&cfg.Plugins.ShutdownTimeout, raw)
	case "startup.min_splash":
		return setDuration(&cfg.Startup.MinSplash, raw)
	case "startup.home_page":
		cfg.Startup.HomePage = raw
	case "document.script_timeout":
		return setDuration(&cfg.Document.ScriptTimeout, raw)
	case "document.user_agent":
		cfg.Document.UserAgent = raw
	case "document.flash":
		v, ok := loader.ParseBool(raw)
		if !ok {
			return errors.New("not a boolean")
		}
		cfg.Document.Flash = v
	case "downloads.dir":
		cfg.Downloads.Dir = raw
	case "logging.level":
		cfg.Logging.Level = raw
	case "logging.file":
		cfg.Logging.File = raw
	case "logging.format":
		cfg.Logging.Format = raw
	case "metrics.addr":
		cfg.Metrics.Addr = raw
	default:
		return errors.New("unknown setting")
	}
	return nil
}

func setDuration(d *Duration, raw string) error {
	v, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
