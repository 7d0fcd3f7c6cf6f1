package storage

import "strings"

// CDNResolver rewrites storage paths onto the configured CDN origin.
// A zero-value resolver (empty base) falls back to returning the path
// unchanged so deployments without a CDN still get usable URLs.
type CDNResolver struct {
	base string
}

// NewCDNResolver creates a resolver for the given CDN base URL,
// e.g. "https://cdn.example.com".
func NewCDNResolver(baseURL string) *CDNResolver {
	return &CDNResolver{base: strings.TrimRight(baseURL, "/")}
}

// CDNURL joins path onto the CDN origin with exactly one slash.
// Leading slashes on path are stripped so "/a/b.png" and "a/b.png"
// resolve identically. The path is not re-encoded.
func (r *CDNResolver) CDNURL(path string) string {
	path = strings.TrimLeft(path, "/")
	if r.base == "" {
		return path
	}
	return r.base + "/" + path
}
