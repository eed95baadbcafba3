package leadership

import (
	"fmt"
	"net/url"
	"strings"
)

// EnsureScheme prefixes bare hosts with https:// and trims whitespace.
func EnsureScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}
	return raw
}

// CanonicalizeURL reduces a URL to scheme+host+path: the fragment and query
// are dropped, scheme and host are lower-cased, default ports and trailing
// slashes are removed.
func CanonicalizeURL(raw string) (string, error) {
	u, err := url.Parse(EnsureScheme(raw))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return canonical(u), nil
}

// ResolveURL resolves href against base and canonicalizes the result.
func ResolveURL(base *url.URL, href string) (string, *url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", nil, fmt.Errorf("parse href: %w", err)
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", nil, fmt.Errorf("unsupported scheme %q", abs.Scheme)
	}
	out := canonical(abs)
	parsed, err := url.Parse(out)
	if err != nil {
		return "", nil, fmt.Errorf("parse canonical url: %w", err)
	}
	return out, parsed, nil
}

func canonical(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	host := strings.ToLower(u.Host)
	if scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" {
		host = strings.TrimSuffix(host, ":443")
	}
	path := u.EscapedPath()
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "/" {
		path = ""
	}
	return scheme + "://" + host + path
}

// SameHost compares hostnames case-insensitively, ignoring a leading www.
func SameHost(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(
		strings.TrimPrefix(strings.ToLower(a.Hostname()), "www."),
		strings.TrimPrefix(strings.ToLower(b.Hostname()), "www."),
	)
}

// HostOf returns the lower-cased hostname of raw, or "" when unparsable.
func HostOf(raw string) string {
	u, err := url.Parse(EnsureScheme(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
