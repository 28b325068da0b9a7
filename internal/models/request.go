package models

import (
	"net/http"
	"strings"
)

// Request is the gateway's immutable view of an inbound call.
type Request struct {
	Method    string
	Host      string
	// Path as received, still percent-encoded ("/files/a%2Fb"). Route keys,
	// cache keys and the upstream URL are all built from it.
	Path      string
	RawQuery  string
	Header    http.Header
	Body      []byte
	Origin    string
	ClientIP  string
	RequestID string
}

// Returns the query string with its leading '?', or "" when there is none
func (r *Request) Search() string {
	if r.RawQuery == "" {
		return ""
	}
	return "?" + r.RawQuery
}

// Reports whether any path segment equals segment
func (r *Request) HasPathSegment(segment string) bool {
	if segment == "" {
		return false
	}
	for _, part := range strings.Split(r.Path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
