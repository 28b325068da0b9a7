package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aman-churiwal/edge-gateway/internal/logger"
	"github.com/aman-churiwal/edge-gateway/internal/models"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"
)

// Hop-by-hop headers, removed in both directions
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder sends a request to one backend and buffers the whole answer so
// it can be transformed and cached. It never retries.
type Forwarder struct {
	client *http.Client
	logger *zap.Logger
}

// A nil client gets a default one with no timeout that does not follow
// redirects, so 3xx answers are relayed to the caller as they are.
func NewForwarder(client *http.Client, log *zap.Logger) *Forwarder {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	return &Forwarder{
		client: client,
		logger: logger.OrNop(log),
	}
}

// Forward sends req to backend with the same method, path, query and body.
// Any status code is a valid answer; only transport failures are errors.
func (f *Forwarder) Forward(ctx context.Context, backend string, req *models.Request) (*models.Response, error) {
	target, err := TargetURL(backend, req)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	out, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	out.Header = OutboundHeaders(req)

	resp, err := f.client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", backend, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream %s: %w", backend, err)
	}

	result := &models.Response{
		Status:  resp.StatusCode,
		Header:  resp.Header.Clone(),
		Body:    data,
		Backend: backend,
	}
	if result.Header == nil {
		result.Header = make(http.Header)
	}
	removeHopHeaders(result.Header)
	// Recomputed by the writer from the buffered body
	result.Header.Del("Content-Length")

	f.logger.Debug("Upstream responded",
		zap.String("backend", backend),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
	)

	return result, nil
}

// TargetURL joins the backend base URL with the escaped request path and the
// raw query, both passed through unchanged.
func TargetURL(backend string, req *models.Request) (string, error) {
	base, err := url.Parse(backend)
	if err != nil {
		return "", fmt.Errorf("invalid backend %q: %w", backend, err)
	}

	escaped := strings.TrimRight(base.EscapedPath(), "/") + req.Path
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", req.Path, err)
	}

	// RawPath keeps encoded separators such as %2F intact upstream
	u := *base
	u.Path = decoded
	u.RawPath = escaped
	u.RawQuery = req.RawQuery
	return u.String(), nil
}

// OutboundHeaders copies the client headers minus hop-by-hop ones and adds
// the forwarding headers carrying the real client address.
func OutboundHeaders(req *models.Request) http.Header {
	h := req.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	removeHopHeaders(h)
	h.Del("Host")

	if req.ClientIP != "" {
		if prior := req.Header.Values("X-Forwarded-For"); len(prior) > 0 {
			h.Set("X-Forwarded-For", strings.Join(prior, ", ")+", "+req.ClientIP)
		} else {
			h.Set("X-Forwarded-For", req.ClientIP)
		}
		h.Set("X-Real-IP", req.ClientIP)
	}
	h.Set("X-Forwarded-Proto", "https")
	if req.RequestID != "" {
		h.Set("X-Request-ID", req.RequestID)
	}
	if req.Host != "" {
		h.Set("X-Forwarded-Host", req.Host)
	}

	return h
}

func removeHopHeaders(h http.Header) {
	// Headers named in Connection are hop-by-hop as well
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if httpguts.ValidHeaderFieldName(name) {
				h.Del(name)
			}
		}
	}

	for _, name := range hopHeaders {
		h.Del(name)
	}
}
