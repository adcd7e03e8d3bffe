package cache

import (
	"crypto/md5"
	"encoding/hex"
	"net"
	"net/url"
	"strings"
)

// GenerateKey namespaces id under prefix.
func GenerateKey(prefix, id string) string {
	if prefix == "" {
		return id
	}
	return prefix + ":" + id
}

// HashKey is the fixed-length hash field under which a request key is
// stored, so arbitrarily long URLs never become Redis field names.
func HashKey(key string) string {
	hasher := md5.New()
	hasher.Write([]byte(key))
	return hex.EncodeToString(hasher.Sum(nil))
}

// NormalizeURL lower-cases scheme and host, drops the default port and the fragment.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Fragment = ""
	n.RawFragment = ""

	host := strings.ToLower(n.Host)
	if h, port, err := net.SplitHostPort(host); err == nil {
		if (n.Scheme == "http" && port == "80") || (n.Scheme == "https" && port == "443") {
			host = h
			if strings.Contains(h, ":") {
				host = "[" + h + "]"
			}
		}
	}
	n.Host = host
	if n.Path == "" && n.Host != "" {
		n.Path = "/"
	}
	return n.String()
}

// SameOrigin reports whether a and b share scheme, host and port, with
// default ports made explicit.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && hostPort(a) == hostPort(b)
}

func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return net.JoinHostPort(strings.ToLower(u.Hostname()), port)
}

// RequestKey is the identity of a cached request: method plus normalized URL.
func RequestKey(method string, u *url.URL) string {
	if method == "" {
		method = "GET"
	}
	return strings.ToUpper(method) + " " + NormalizeURL(u)
}
