package models

import (
	"encoding/json"
	"net/http"
)

type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Upstream base URL that produced the response, empty for cache hits and
	// gateway generated responses. Never sent to clients.
	Backend string
	// Cache marker as reported in X-Cache ("HIT", "MISS" or "")
	CacheStatus string
}

// ErrorBody is the JSON shape of every gateway generated error
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewResponse(status int) *Response {
	return &Response{
		Status: status,
		Header: make(http.Header),
	}
}

func NewErrorResponse(status int, errText, message string) *Response {
	resp := NewResponse(status)
	body, _ := json.Marshal(ErrorBody{Error: errText, Message: message})
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = body
	return resp
}

// Returns a deep copy so header edits never leak into shared values
func (r *Response) Clone() *Response {
	out := &Response{
		Status:      r.Status,
		Header:      r.Header.Clone(),
		Backend:     r.Backend,
		CacheStatus: r.CacheStatus,
	}
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

func (r *Response) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}
