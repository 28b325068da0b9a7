package service

import (
	"context"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/models"
	"github.com/aman-churiwal/edge-gateway/internal/repository"
)

// The queries the analytics service runs against the request log
type RequestLogReader interface {
	FindByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]models.RequestLog, error)
	FindByStatusCode(ctx context.Context, statusCode int, from, to time.Time, limit, offset int) ([]models.RequestLog, error)
	CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error)
	GetAverageResponseTime(ctx context.Context, from, to time.Time) (float64, error)
	CountByStatusCodeRange(ctx context.Context, minStatusCode, maxStatusCode int, from, to time.Time) (int64, error)
	CountByCacheStatus(ctx context.Context, cacheStatus string, from, to time.Time) (int64, error)
	GetTopRoutes(ctx context.Context, from, to time.Time, limit int) ([]repository.RouteCount, error)
	DeleteOldLogs(ctx context.Context, before time.Time) (int64, error)
}

type AnalyticsService struct {
	repository RequestLogReader
}

func NewAnalyticsService(repo RequestLogReader) *AnalyticsService {
	return &AnalyticsService{repository: repo}
}

// Holds analytics summary data
type AnalyticsSummary struct {
	From            time.Time               `json:"from"`
	To              time.Time               `json:"to"`
	TotalRequests   int64                   `json:"total_requests"`
	AvgResponseTime float64                 `json:"avg_response_time_ms"`
	ErrorRate       float64                 `json:"error_rate"`
	SuccessRate     float64                 `json:"success_rate"`
	ClientErrorRate float64                 `json:"client_error_rate"`
	ServerErrorRate float64                 `json:"server_error_rate"`
	RateLimited     int64                   `json:"rate_limited"`
	CacheHits       int64                   `json:"cache_hits"`
	CacheMisses     int64                   `json:"cache_misses"`
	CacheHitRate    float64                 `json:"cache_hit_rate"`
	TopRoutes       []repository.RouteCount `json:"top_routes"`
}

// Retrieves analytics summary for a time range
func (s *AnalyticsService) GetSummary(ctx context.Context, from, to time.Time) (*AnalyticsSummary, error) {
	summary := &AnalyticsSummary{From: from, To: to, TopRoutes: []repository.RouteCount{}}

	totalRequests, err := s.repository.CountByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.TotalRequests = totalRequests

	if totalRequests == 0 {
		return summary, nil
	}

	avgResponseTime, err := s.repository.GetAverageResponseTime(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.AvgResponseTime = avgResponseTime

	clientErrors, err := s.repository.CountByStatusCodeRange(ctx, 400, 499, from, to)
	if err != nil {
		return nil, err
	}

	serverErrors, err := s.repository.CountByStatusCodeRange(ctx, 500, 599, from, to)
	if err != nil {
		return nil, err
	}

	rateLimited, err := s.repository.CountByStatusCodeRange(ctx, 429, 429, from, to)
	if err != nil {
		return nil, err
	}
	summary.RateLimited = rateLimited

	totalErrors := clientErrors + serverErrors
	summary.ErrorRate = percent(totalErrors, totalRequests)
	summary.SuccessRate = 100 - summary.ErrorRate
	summary.ClientErrorRate = percent(clientErrors, totalRequests)
	summary.ServerErrorRate = percent(serverErrors, totalRequests)

	hits, err := s.repository.CountByCacheStatus(ctx, "HIT", from, to)
	if err != nil {
		return nil, err
	}
	misses, err := s.repository.CountByCacheStatus(ctx, "MISS", from, to)
	if err != nil {
		return nil, err
	}
	summary.CacheHits = hits
	summary.CacheMisses = misses
	summary.CacheHitRate = percent(hits, hits+misses)

	topRoutes, err := s.repository.GetTopRoutes(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}
	if topRoutes != nil {
		summary.TopRoutes = topRoutes
	}

	return summary, nil
}

// Retrieves request logs with pagination and an optional status filter
func (s *AnalyticsService) GetLogs(ctx context.Context, from, to time.Time, statusCode *int, limit, offset int) ([]models.RequestLog, error) {
	var (
		logs []models.RequestLog
		err  error
	)

	if statusCode != nil {
		logs, err = s.repository.FindByStatusCode(ctx, *statusCode, from, to, limit, offset)
	} else {
		logs, err = s.repository.FindByTimeRange(ctx, from, to, limit, offset)
	}
	if err != nil {
		return nil, err
	}

	if logs == nil {
		logs = []models.RequestLog{}
	}
	return logs, nil
}

// Deletes logs older than specified retention period
func (s *AnalyticsService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutOffDate := time.Now().AddDate(0, 0, -retentionDays)
	return s.repository.DeleteOldLogs(ctx, cutOffDate)
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
