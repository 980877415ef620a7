package loader

import (
	"os"
	"sort"
	"strings"
)

// EnvLoader reads environment variables mapped to configuration keys.
type EnvLoader struct {
	prefix  string            // e.g. "LINKBROWSER_"
	mapping map[string]string // env var suffix -> config key
	lookup  func(string) (string, bool)
}

// NewEnvLoader creates a loader for prefix + each mapping key. The prefix
// should include the trailing underscore.
func NewEnvLoader(prefix string, mapping map[string]string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: mapping,
		lookup:  os.LookupEnv,
	}
}

// WithLookup replaces os.LookupEnv.
func (l *EnvLoader) WithLookup(fn func(string) (string, bool)) *EnvLoader {
	l.lookup = fn
	return l
}

// Var returns the full variable name for a mapping key.
func (l *EnvLoader) Var(suffix string) string {
	return l.prefix + suffix
}

// Load returns config key -> raw value for every set variable. Empty
// values count as set.
func (l *EnvLoader) Load() map[string]string {
	out := make(map[string]string)
	for suffix, key := range l.mapping {
		if val, ok := l.lookup(l.Var(suffix)); ok {
			out[key] = val
		}
	}
	return out
}

// Vars returns the supported variable names, sorted.
func (l *EnvLoader) Vars() []string {
	vars := make([]string, 0, len(l.mapping))
	for suffix := range l.mapping {
		vars = append(vars, l.Var(suffix))
	}
	sort.Strings(vars)
	return vars
}

// ParseBool accepts true/false, yes/no, on/off and 1/0.
func ParseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, true
	case "false", "no", "off", "0":
		return false, true
	}
	return false, false
}

// ParseList splits a comma separated value, dropping blanks.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
