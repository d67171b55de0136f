package pipeline

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var slugSanitizer = regexp.MustCompile(`[^a-z0-9._-]+`)

// NormalizeURL standardizes a URL so the collected set stays free of
// duplicates. It lowercases the scheme and host, removes default ports and
// fragments, and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// SlugFor derives the deterministic cache key for a vendor product URL.
// Trek product paths carry the numeric product id as the final segment and
// the model as the third-from-last, and the sizing endpoint later needs that
// id, so both are kept in the slug. Every other vendor uses the last path
// segment.
func SlugFor(vendor Vendor, rawURL string) (string, error) {
	if vendor != VendorTrek {
		return Slug(rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 3 {
		return Slug(rawURL)
	}
	model := segments[len(segments)-3]
	pid := segments[len(segments)-1]
	slug := strings.ToLower(model + "__" + pid)
	slug = slugSanitizer.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-"), nil
}

// ProductID extracts the vendor product id embedded in a Trek slug. Returns
// false when the slug carries none.
func ProductID(slug string) (string, bool) {
	i := strings.LastIndex(slug, "__")
	if i < 0 || i+2 >= len(slug) {
		return "", false
	}
	return slug[i+2:], true
}

// Slug derives the deterministic cache key for a product URL: the last
// non-empty path segment, lowercased, with the .html suffix stripped. Cache
// lookups therefore never need network access.
func Slug(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := ""
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			last = segments[i]
			break
		}
	}
	if last == "" {
		return "", fmt.Errorf("no path segment in %q", rawURL)
	}
	last = strings.ToLower(strings.TrimSuffix(last, ".html"))
	last = slugSanitizer.ReplaceAllString(last, "-")
	last = strings.Trim(last, "-")
	if last == "" {
		return "", fmt.Errorf("slug collapsed to empty for %q", rawURL)
	}
	return last, nil
}
