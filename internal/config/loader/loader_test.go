package loader

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

type sample struct {
	Name  string   `toml:"name"`
	Count int      `toml:"count"`
	Tags  []string `toml:"tags"`
}

func TestTOMLLoaderLoadInto(t *testing.T) {
	fsys := fstest.MapFS{
		"app.toml": {Data: []byte("name = \"lb\"\ntags = [\"a\", \"b\"]\n")},
	}

	v := sample{Count: 7}
	found, err := NewTOMLLoaderWithFS(fsys).LoadInto("app.toml", &v)
	if err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}
	if !found {
		t.Error("LoadInto() found = false")
	}
	if v.Name != "lb" || len(v.Tags) != 2 {
		t.Errorf("decoded = %+v", v)
	}
	if v.Count != 7 {
		t.Errorf("Count = %d, missing keys should keep existing values", v.Count)
	}
}

func TestTOMLLoaderMissingFile(t *testing.T) {
	var v sample
	found, err := NewTOMLLoaderWithFS(fstest.MapFS{}).LoadInto("none.toml", &v)
	if err != nil || found {
		t.Errorf("LoadInto() = %v, %v; want false, nil", found, err)
	}
}

func TestTOMLLoaderStrictness(t *testing.T) {
	data := []byte("name = \"x\"\nextra = 1\n")

	var v sample
	err := NewTOMLLoaderWithFS(fstest.MapFS{}).Decode("inline", data, &v)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Decode() error = %v, want *ParseError", err)
	}
	if pe.Line != 2 {
		t.Errorf("ParseError.Line = %d, want 2", pe.Line)
	}
	if !strings.Contains(pe.Error(), "extra") {
		t.Errorf("Error() = %q", pe.Error())
	}

	if err := NewTOMLLoaderWithFS(fstest.MapFS{}).Lenient().Decode("inline", data, &v); err != nil {
		t.Errorf("lenient Decode() error = %v", err)
	}
}

func TestParseErrorFormat(t *testing.T) {
	tests := []struct {
		err  *ParseError
		want string
	}{
		{&ParseError{Path: "a", Line: 3, Column: 4, Message: "m"}, "parse error in a at line 3, column 4: m"},
		{&ParseError{Path: "a", Line: 3, Message: "m"}, "parse error in a at line 3: m"},
		{&ParseError{Path: "a", Message: "m"}, "parse error in a: m"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestEncode(t *testing.T) {
	data, err := Encode(sample{Name: "lb", Count: 2})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var v sample
	if err := NewTOMLLoaderWithFS(fstest.MapFS{}).Decode("encoded", data, &v); err != nil {
		t.Fatalf("Decode(Encode()) error = %v", err)
	}
	if v.Name != "lb" || v.Count != 2 {
		t.Errorf("decoded = %+v", v)
	}
}

func TestEnvLoader(t *testing.T) {
	env := map[string]string{
		"APP_LEVEL": "debug",
		"APP_EMPTY": "",
		"OTHER_X":   "ignored",
	}
	l := NewEnvLoader("APP_", map[string]string{
		"LEVEL":   "logging.level",
		"EMPTY":   "logging.file",
		"MISSING": "metrics.addr",
	}).WithLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	got := l.Load()
	if len(got) != 2 || got["logging.level"] != "debug" {
		t.Errorf("Load() = %v", got)
	}
	if v, ok := got["logging.file"]; !ok || v != "" {
		t.Error("empty values should count as set")
	}

	vars := l.Vars()
	if strings.Join(vars, ",") != "APP_EMPTY,APP_LEVEL,APP_MISSING" {
		t.Errorf("Vars() = %v", vars)
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "YES", "on", "1"} {
		if v, ok := ParseBool(s); !ok || !v {
			t.Errorf("ParseBool(%q) = %v, %v", s, v, ok)
		}
	}
	for _, s := range []string{"false", "No", "off", "0"} {
		if v, ok := ParseBool(s); !ok || v {
			t.Errorf("ParseBool(%q) = %v, %v", s, v, ok)
		}
	}
	if _, ok := ParseBool("maybe"); ok {
		t.Error("ParseBool(maybe) should fail")
	}
}

func TestParseList(t *testing.T) {
	got := ParseList(" a, b ,,c ")
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("ParseList() = %q", got)
	}
	if ParseList("") != nil {
		t.Error("ParseList(\"\") should be nil")
	}
}
