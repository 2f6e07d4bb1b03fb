package common

import (
	"net/url"
	"path"
	"strings"
)

// imageExtensions marks hrefs that point straight at an image file.
var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {}, ".svg": {},
}

// NormalizeURL is the identity used by the ledger, the page dumps and the
// graph: surrounding space trimmed, fragment and query string dropped.
func NormalizeURL(rawURL string) string {
	u := strings.TrimSpace(rawURL)
	if i := strings.Index(u, "#"); i >= 0 {
		u = u[:i]
	}
	if i := strings.Index(u, "?"); i >= 0 {
		u = u[:i]
	}
	return u
}

// IsImageLink reports whether the URL path ends in an image extension.
func IsImageLink(rawURL string) bool {
	p := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		p = parsed.Path
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// ResolveURL resolves ref against base. It returns "" when either fails to parse.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}

// HostAllowed reports whether rawURL's host equals, or is a subdomain of,
// one of the allowed domains. An empty list allows everything.
func HostAllowed(rawURL string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range allowed {
		d = strings.ToLower(strings.TrimPrefix(d, "."))
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
