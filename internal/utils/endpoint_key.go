package utils

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CanonicalKey derives the stable endpoint identity used as the join key
// across the findings log, the dossier and the aggregation cache.
//
// The key has the form "METHOD scheme://host/path[?sorted-query]".
// Two requests that address the same logical endpoint must produce
// byte-identical keys, so the codec normalizes everything that varies
// without changing the endpoint: method and host casing, default ports,
// surrounding whitespace, query parameter ordering. Query parameters
// already present on rawURL are merged with the explicit query argument;
// a nil query behaves exactly like an empty one.
//
// The function is pure and total: no I/O, errors only for inputs that
// cannot name an endpoint at all (empty method, relative or unparsable
// URL).
func CanonicalKey(method, rawURL string, query url.Values) (string, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return "", fmt.Errorf("canonical key: method is required")
	}

	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("canonical key: parsing url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("canonical key: url must be absolute, got %q", rawURL)
	}

	scheme := strings.ToLower(parsed.Scheme)
	host := normalizeHost(scheme, parsed.Host)

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	merged := parsed.Query()
	for k, vs := range query {
		merged[k] = append(merged[k], vs...)
	}

	key := method + " " + scheme + "://" + host + path
	if enc := encodeSortedQuery(merged); enc != "" {
		key += "?" + enc
	}
	return key, nil
}

// MustCanonicalKey is CanonicalKey for fixtures and tests where the
// inputs are known-good.
func MustCanonicalKey(method, rawURL string, query url.Values) string {
	key, err := CanonicalKey(method, rawURL, query)
	if err != nil {
		panic(err)
	}
	return key
}

// normalizeHost lowercases the host and strips the scheme's default port.
func normalizeHost(scheme, host string) string {
	host = strings.ToLower(host)
	switch scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}
	return host
}

// encodeSortedQuery encodes values with byte-sorted keys and, within each
// key, byte-sorted values, so parameter order never leaks into the key.
func encodeSortedQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// SplitKey breaks a canonical key back into method and URL. Used when a
// caller queues raw "METHOD url" strings and the coordinator needs to
// probe the endpoint behind the key.
func SplitKey(key string) (method, rawURL string, err error) {
	parts := strings.SplitN(key, " ", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("canonical key: malformed key %q", key)
	}
	return parts[0], parts[1], nil
}
