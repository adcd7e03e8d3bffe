package models

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
)

// Fetch modes as reported by Sec-Fetch-Mode.
const (
	ModeNavigate   = "navigate"
	ModeCORS       = "cors"
	ModeNoCORS     = "no-cors"
	ModeSameOrigin = "same-origin"
)

// Request destinations as reported by Sec-Fetch-Dest.
const (
	DestDocument = "document"
	DestStyle    = "style"
	DestScript   = "script"
	DestImage    = "image"
	DestFont     = "font"
)

// Request is an intercepted fetch. URL is always absolute.
type Request struct {
	Method      string
	URL         *url.URL
	Header      http.Header
	Mode        string
	Destination string
	Body        []byte
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *Request) Clone() *Request {
	c := *r
	if r.URL != nil {
		u := *r.URL
		c.URL = &u
	}
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = bytes.Clone(r.Body)
	}
	return &c
}

// Accepts reports whether the Accept header lists the media type.
func (r *Request) Accepts(mediaType string) bool {
	for _, v := range r.Header.Values("Accept") {
		if strings.Contains(strings.ToLower(v), mediaType) {
			return true
		}
	}
	return false
}

// Source tags where a response came from.
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceOffline     Source = "offline"
	SourcePassthrough Source = "passthrough"
)

// SourceHeader carries the Source on responses written by the gateway.
const SourceHeader = "X-SW-Source"

type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Source Source
}

// OK mirrors Response.ok: a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// RequestClass is the routing class of a request.
type RequestClass string

const (
	ClassNavigation RequestClass = "navigation"
	ClassAPI        RequestClass = "api"
	ClassStatic     RequestClass = "static"
	ClassOther      RequestClass = "other"
)

// Strategy is the caching strategy applied to a request.
type Strategy string

const (
	StrategyNetworkFirst         Strategy = "network-first"
	StrategyCacheFirst           Strategy = "cache-first"
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
	StrategyNetworkOnly          Strategy = "network-only"
)
