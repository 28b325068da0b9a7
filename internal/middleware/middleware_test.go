package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = c.GetString(RequestIDKey)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRecovery_ReturnsJSON500(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := gin.New()
	r.Use(RequestID(), Recovery(zap.New(core)))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","message":"The gateway could not complete the request"}`, w.Body.String())
	require.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) {
		c.Set(CacheStatusKey, "HIT")
		c.Status(http.StatusOK)
	})
	r.GET("/limited", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, p := range []string{"/ok", "/limited", "/fail"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "HIT", entries[0].ContextMap()["cache"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, int64(502), entries[2].ContextMap()["status"])
}

type memorySink struct {
	mu      sync.Mutex
	batches [][]models.RequestLog
	err     error
}

func (m *memorySink) CreateBatch(_ context.Context, logs []models.RequestLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]models.RequestLog(nil), logs...))
	return m.err
}

func (m *memorySink) all() []models.RequestLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RequestLog
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func TestRequestLogger_RecordsDispatchDetails(t *testing.T) {
	sink := &memorySink{}
	writer := NewRequestLogWriter(sink, 10, 100, time.Hour, nil)

	r := gin.New()
	r.Use(RequestID(), RequestLogger(writer))
	r.NoRoute(func(c *gin.Context) {
		c.Set(RouteKeyKey, "GET /api/documents")
		c.Set(BackendKey, "http://a:3001")
		c.Set(CacheStatusKey, "MISS")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/documents?page=2", nil)
	req.Header.Set("User-Agent", "test-agent")
	r.ServeHTTP(httptest.NewRecorder(), req)

	// closing flushes the partial batch
	writer.Close()

	logs := sink.all()
	require.Len(t, logs, 1)
	assert.Equal(t, "GET /api/documents", logs[0].RouteKey)
	assert.Equal(t, "/api/documents", logs[0].Path)
	assert.Equal(t, "http://a:3001", logs[0].BackendServer)
	assert.Equal(t, "MISS", logs[0].CacheStatus)
	assert.Equal(t, 200, logs[0].StatusCode)
	assert.Equal(t, "test-agent", logs[0].UserAgent)
	assert.NotEmpty(t, logs[0].RequestID)
}

func TestRequestLogWriter_BatchesBySize(t *testing.T) {
	sink := &memorySink{}
	writer := NewRequestLogWriter(sink, 10, 2, time.Hour, nil)

	for i := 0; i < 5; i++ {
		require.True(t, writer.Enqueue(models.RequestLog{StatusCode: 200}))
	}
	writer.Close()

	require.Len(t, sink.batches, 3)
	assert.Len(t, sink.batches[0], 2)
	assert.Len(t, sink.batches[2], 1)

	// a second close is harmless
	writer.Close()
}

func TestRequestLogWriter_FlushesOnInterval(t *testing.T) {
	sink := &memorySink{}
	writer := NewRequestLogWriter(sink, 10, 100, 10*time.Millisecond, nil)
	defer writer.Close()

	writer.Enqueue(models.RequestLog{StatusCode: 204})

	assert.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRequestLogWriter_InsertFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := &memorySink{err: errors.New("db down")}
	writer := NewRequestLogWriter(sink, 10, 1, time.Hour, zap.New(core))

	writer.Enqueue(models.RequestLog{})
	writer.Close()

	assert.Equal(t, 1, logs.FilterMessage("Failed to insert request logs").Len())
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestRequireAdmin(t *testing.T) {
	const secret = "test-secret"
	r := gin.New()
	r.GET("/admin/x", RequireAdmin(secret), func(c *gin.Context) { c.Status(http.StatusOK) })

	exp := time.Now().Add(time.Hour).Unix()
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", jwt.MapClaims{"role": "admin", "exp": exp}), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, secret, jwt.MapClaims{"role": "admin", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"not admin", "Bearer " + signToken(t, secret, jwt.MapClaims{"role": "viewer", "exp": exp}), http.StatusForbidden},
		{"admin", "Bearer " + signToken(t, secret, jwt.MapClaims{"role": "admin", "sub": "ops", "exp": exp}), http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRequestLogWriter_DropsAfterClose(t *testing.T) {
	writer := NewRequestLogWriter(&memorySink{}, 1, 1, time.Hour, nil)
	writer.Close()

	assert.False(t, writer.Enqueue(models.RequestLog{}))
}
