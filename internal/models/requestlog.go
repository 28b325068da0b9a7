package models

import "time"

// Represents a request that went through the gateway
type RequestLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	RequestID      string    `gorm:"index" json:"request_id"`
	Method         string    `json:"method"`
	Path           string    `gorm:"index" json:"path"`
	RouteKey       string    `gorm:"index" json:"route_key"`
	StatusCode     int       `gorm:"index" json:"status_code"`
	ResponseTimeMs int       `json:"response_time_ms"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	BackendServer  string    `json:"backend_server,omitempty"`
	CacheStatus    string    `json:"cache_status,omitempty"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}
