package bridge

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// QuoteJS returns s as a JavaScript string literal.
func QuoteJS(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// CallExpr builds a call expression fn(args...) with JSON-encoded arguments.
func CallExpr(fn string, args ...any) (string, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		if str, ok := arg.(string); ok {
			parts[i] = QuoteJS(str)
			continue
		}
		b, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
		parts[i] = string(b)
	}
	return fn + "(" + strings.Join(parts, ", ") + ")", nil
}

// StatusScript sets the document's status text when the page defines
// window.updateStatus.
func StatusScript(text string) string {
	call, _ := CallExpr("window.updateStatus", text)
	return `if (typeof window.updateStatus === "function") { ` + call + `; }`
}

// FileNameFromURL returns the last path segment of raw, or "unnamed".
func FileNameFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "unnamed"
	}
	name := path.Base(u.Path)
	switch name {
	case "", ".", "/":
		return "unnamed"
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if strings.ContainsAny(name, `/\`) || strings.TrimSpace(name) == "" {
		return "unnamed"
	}
	return name
}

// ArgString coerces a value exported from script to a string. nil and
// undefined become "".
func ArgString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(v)
	}
}
