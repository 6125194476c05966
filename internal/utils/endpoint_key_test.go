package utils

import (
	"net/url"
	"testing"
)

func TestCanonicalKey(t *testing.T) {
	testCases := []struct {
		method   string
		url      string
		query    url.Values
		expected string
		desc     string
	}{
		{
			"get",
			"https://example.com/api/users",
			nil,
			"GET https://example.com/api/users",
			"lowercase method is uppercased",
		},
		{
			"GET",
			"HTTPS://EXAMPLE.COM/api/users",
			nil,
			"GET https://example.com/api/users",
			"scheme and host are lowercased",
		},
		{
			"GET",
			"https://example.com:443/api/users",
			nil,
			"GET https://example.com/api/users",
			"default https port is stripped",
		},
		{
			"GET",
			"http://example.com:80/",
			nil,
			"GET http://example.com/",
			"default http port is stripped",
		},
		{
			"GET",
			"http://example.com:8080/",
			nil,
			"GET http://example.com:8080/",
			"non-default port is preserved",
		},
		{
			"GET",
			"https://example.com",
			nil,
			"GET https://example.com/",
			"empty path becomes /",
		},
		{
			"  post ",
			"  https://example.com/login ",
			nil,
			"POST https://example.com/login",
			"surrounding whitespace is ignored",
		},
		{
			"GET",
			"https://example.com/search?b=2&a=1",
			nil,
			"GET https://example.com/search?a=1&b=2",
			"query keys are sorted",
		},
		{
			"GET",
			"https://example.com/search?a=1",
			url.Values{"b": {"2"}},
			"GET https://example.com/search?a=1&b=2",
			"explicit query merges with url query",
		},
		{
			"GET",
			"https://example.com/search",
			url.Values{},
			"GET https://example.com/search",
			"explicitly empty query equals no query",
		},
		{
			"GET",
			"https://example.com/search?tag=b&tag=a",
			nil,
			"GET https://example.com/search?tag=a&tag=b",
			"repeated values are sorted within a key",
		},
	}

	for _, tc := range testCases {
		got, err := CanonicalKey(tc.method, tc.url, tc.query)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.desc, err)
			continue
		}
		if got != tc.expected {
			t.Errorf("%s: got %q, expected %q", tc.desc, got, tc.expected)
		}
	}
}

func TestCanonicalKeyEquivalence(t *testing.T) {
	// All of these address the same logical endpoint and must collapse
	// to one key.
	variants := []struct {
		method string
		url    string
		query  url.Values
	}{
		{"GET", "https://api.example.com/v1/items?page=1&sort=asc", nil},
		{"get", "https://API.EXAMPLE.COM:443/v1/items?sort=asc&page=1", nil},
		{"Get", "https://api.example.com/v1/items", url.Values{"sort": {"asc"}, "page": {"1"}}},
		{"GET ", " https://api.example.com/v1/items?page=1 ", url.Values{"sort": {"asc"}}},
	}

	first := MustCanonicalKey(variants[0].method, variants[0].url, variants[0].query)
	for i, v := range variants[1:] {
		got := MustCanonicalKey(v.method, v.url, v.query)
		if got != first {
			t.Errorf("variant %d: got %q, expected %q", i+1, got, first)
		}
	}
}

func TestCanonicalKeyErrors(t *testing.T) {
	testCases := []struct {
		method string
		url    string
		desc   string
	}{
		{"", "https://example.com/", "empty method"},
		{"GET", "/relative/path", "relative url"},
		{"GET", "://bad", "unparsable url"},
	}

	for _, tc := range testCases {
		if _, err := CanonicalKey(tc.method, tc.url, nil); err == nil {
			t.Errorf("%s: expected error, got none", tc.desc)
		}
	}
}

func TestSplitKey(t *testing.T) {
	method, rawURL, err := SplitKey("GET https://example.com/api/users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != "GET" || rawURL != "https://example.com/api/users" {
		t.Errorf("got (%q, %q)", method, rawURL)
	}

	if _, _, err := SplitKey("no-space"); err == nil {
		t.Error("expected error for malformed key")
	}
}
