package cache

import (
	"net/http"
	"strings"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/models"
)

// Entry is a response as persisted in the shared store. It is written once
// and only replaced by expiry or by a later successful GET for the same key.
type Entry struct {
	Body     []byte            `json:"body"`
	Status   int               `json:"status"`
	Headers  map[string]string `json:"headers"`
	StoredAt int64             `json:"storedAt"` // unix milliseconds
}

func newEntry(resp *models.Response, at time.Time) *Entry {
	headers := make(map[string]string, len(resp.Header))
	for name, values := range resp.Header {
		// Cookies are per client and cannot be folded into one value
		if http.CanonicalHeaderKey(name) == "Set-Cookie" {
			continue
		}
		// Other multi-value headers are folded into one comma-separated value
		headers[name] = strings.Join(values, ", ")
	}

	return &Entry{
		Body:     resp.Body,
		Status:   resp.Status,
		Headers:  headers,
		StoredAt: at.UnixMilli(),
	}
}

// Age is the time elapsed since the entry was stored, never negative
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(time.UnixMilli(e.StoredAt))
	if age < 0 {
		return 0
	}
	return age
}

// Response rebuilds the stored response with its original status, headers
// and body.
func (e *Entry) Response() *models.Response {
	resp := models.NewResponse(e.Status)
	for name, value := range e.Headers {
		resp.Header[http.CanonicalHeaderKey(name)] = []string{value}
	}
	resp.Body = append([]byte(nil), e.Body...)
	return resp
}
