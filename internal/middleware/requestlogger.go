package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/logger"
	"github.com/aman-churiwal/edge-gateway/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Persists request logs in batches
type LogSink interface {
	CreateBatch(ctx context.Context, logs []models.RequestLog) error
}

// RequestLogWriter queues request logs and inserts them in batches from a
// single background worker. A full queue drops entries instead of blocking
// the request.
type RequestLogWriter struct {
	sink      LogSink
	logger    *zap.Logger
	entries   chan models.RequestLog
	batchSize int
	flush     time.Duration
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewRequestLogWriter(sink LogSink, bufferSize, batchSize int, flushInterval time.Duration, log *zap.Logger) *RequestLogWriter {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	w := &RequestLogWriter{
		sink:      sink,
		logger:    logger.OrNop(log),
		entries:   make(chan models.RequestLog, bufferSize),
		batchSize: batchSize,
		flush:     flushInterval,
		done:      make(chan struct{}),
	}

	go w.run()
	return w
}

func (w *RequestLogWriter) run() {
	defer close(w.done)

	batch := make([]models.RequestLog, 0, w.batchSize)
	ticker := time.NewTicker(w.flush)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				w.insert(batch)
				return
			}
			batch = append(batch, entry)

			// Insert when batch is full
			if len(batch) >= w.batchSize {
				w.insert(batch)
				batch = make([]models.RequestLog, 0, w.batchSize)
			}
		case <-ticker.C:
			// Periodically insert remaining logs
			if len(batch) > 0 {
				w.insert(batch)
				batch = make([]models.RequestLog, 0, w.batchSize)
			}
		}
	}
}

func (w *RequestLogWriter) insert(batch []models.RequestLog) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.sink.CreateBatch(ctx, batch); err != nil {
		w.logger.Error("Failed to insert request logs",
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
	}
}

// Enqueue never blocks. Entries arriving after Close are dropped.
func (w *RequestLogWriter) Enqueue(entry models.RequestLog) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}

	select {
	case w.entries <- entry:
		return true
	default:
		w.logger.Warn("Request log queue full, dropping entry",
			zap.String("request_id", entry.RequestID),
		)
		return false
	}
}

// Close flushes queued entries and stops the worker
func (w *RequestLogWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.entries)
	w.mu.Unlock()

	<-w.done
}

// Records every request handled by the engine
func RequestLogger(w *RequestLogWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		w.Enqueue(models.RequestLog{
			Timestamp:      start.UTC(),
			RequestID:      c.GetString(RequestIDKey),
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			RouteKey:       c.GetString(RouteKeyKey),
			StatusCode:     c.Writer.Status(),
			ResponseTimeMs: int(time.Since(start).Milliseconds()),
			IPAddress:      c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			BackendServer:  c.GetString(BackendKey),
			CacheStatus:    c.GetString(CacheStatusKey),
		})
	}
}
