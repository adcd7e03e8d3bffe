package cache

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestKey(t *testing.T) {
	tests := []struct {
		method string
		raw    string
		want   string
	}{
		{"get", "HTTP://Example.COM:80/index.html#top", "GET http://example.com/index.html"},
		{"", "https://example.com:443/a?b=1", "GET https://example.com/a?b=1"},
		{"POST", "https://example.com:8443/api/x", "POST https://example.com:8443/api/x"},
		{"GET", "https://example.com", "GET https://example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, RequestKey(tt.method, u))
		})
	}
}

func TestHashKeyIsStable(t *testing.T) {
	assert.Equal(t, HashKey("GET http://a/"), HashKey("GET http://a/"))
	assert.NotEqual(t, HashKey("GET http://a/"), HashKey("GET http://b/"))
	assert.Len(t, HashKey("x"), 32)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "finpwa:partitions", GenerateKey("finpwa", "partitions"))
	assert.Equal(t, "partitions", GenerateKey("", "partitions"))
}

func TestSameOrigin(t *testing.T) {
	parse := func(s string) *url.URL {
		u, err := url.Parse(s)
		require.NoError(t, err)
		return u
	}
	tests := []struct {
		a, b string
		want bool
	}{
		{"http://app:80/x", "http://app", true},
		{"https://APP.example.com/", "https://app.example.com:443", true},
		{"http://app:8080/", "http://app", false},
		{"https://app/", "http://app", false},
		{"http://other/", "http://app", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SameOrigin(parse(tt.a), parse(tt.b)), "%s vs %s", tt.a, tt.b)
	}
	assert.False(t, SameOrigin(nil, parse("http://app")))
}
