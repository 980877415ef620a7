package browser

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Internal URL routes.
const (
	SchemeInternal = "link"

	RouteAbout    = "link://open/about"
	RouteSettings = "link://open/settings"
	RouteGitHub   = "link://open/github"
	RouteFlashOn  = "link://settings/flash/on"
	RouteFlashOff = "link://settings/flash/off"

	// AboutURL and SettingsURL are the documents the open routes load.
	AboutURL    = "link://about"
	SettingsURL = "link://settings"

	// GitHubURL is the project home page.
	GitHubURL = "https://github.com/Kobi401/Link"

	// BlankURL is loaded for empty input.
	BlankURL = "about:blank"
)

var (
	schemePattern   = regexp.MustCompile(`(?i)^(https?|file|ftp|link)://[^\s/$.?#].[^\s]*$`)
	downloadPattern = regexp.MustCompile(`\.[a-z0-9]{2,5}$`)
)

// pageExtensions are path extensions that name documents rather than files.
var pageExtensions = map[string]bool{
	".html":  true,
	".htm":   true,
	".xhtml": true,
	".php":   true,
	".asp":   true,
	".aspx":  true,
	".jsp":   true,
	".cgi":   true,
}

// NormalizeURL returns raw as a loadable URL. Empty input becomes
// about:blank and input without a recognized scheme gets http://. about:
// and file:// URLs pass through as is.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return BlankURL
	case strings.HasPrefix(raw, "about:"), strings.HasPrefix(strings.ToLower(raw), "file://"):
		return raw
	case schemePattern.MatchString(raw):
		return raw
	default:
		return "http://" + raw
	}
}

// IsInternal reports whether raw uses the link:// scheme.
func IsInternal(raw string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), SchemeInternal+"://")
}

// IsLikelyDownload reports whether raw points at a file rather than a page.
// Only the URL path is inspected, so a bare host such as example.com is
// never a download.
func IsLikelyDownload(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == SchemeInternal {
		return false
	}
	p := strings.ToLower(u.Path)
	if p == "" || strings.HasSuffix(p, "/") {
		return false
	}
	if pageExtensions[path.Ext(p)] {
		return false
	}
	return downloadPattern.MatchString(path.Base(p))
}

// Resolve returns ref resolved against base. Unparsable input is returned
// unchanged.
func Resolve(base, ref string) string {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return r.String()
	}
	return b.ResolveReference(r).String()
}
