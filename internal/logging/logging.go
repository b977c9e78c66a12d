package logging

import (
	"io"
	"os"
	"time"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger based on configuration
func Setup(cfg *config.LoggingConfig, env string) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer
	if cfg.Format == "json" || env == "production" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "analytics-dashboard").
		Logger()
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger is a Gin middleware for structured request logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= 500 {
			event = log.Error()
		} else if status >= 400 {
			event = log.Warn()
		}

		event.
			Str("request_id", c.GetString("request_id")).
			Str("user_id", c.GetString("user_id")).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}

// ReportLogEntry describes one analytics report served to a caller
type ReportLogEntry struct {
	RequestID string
	UserID    string
	Report    string
	ScopeID   string
	Status    int
}

// LogReport logs a served report at debug level
func LogReport(entry *ReportLogEntry) {
	log.Debug().
		Str("request_id", entry.RequestID).
		Str("user_id", entry.UserID).
		Str("report", entry.Report).
		Str("scope_id", entry.ScopeID).
		Int("status", entry.Status).
		Msg("Report served")
}

// LogAccessDenied logs a guard denial surfaced to a caller
func LogAccessDenied(requestID, userID, scope, target string) {
	log.Warn().
		Str("request_id", requestID).
		Str("user_id", userID).
		Str("scope", scope).
		Str("target", target).
		Msg("Access denied")
}

// LogSecurityEvent logs security-related events
func LogSecurityEvent(eventType, userID, clientIP, details string) {
	log.Warn().
		Str("event_type", eventType).
		Str("user_id", userID).
		Str("client_ip", clientIP).
		Str("details", details).
		Msg("Security event")
}

// LogError logs an error with context
func LogError(err error, requestID, component, operation string) {
	log.Error().
		Err(err).
		Str("request_id", requestID).
		Str("component", component).
		Str("operation", operation).
		Msg("Error occurred")
}

// SanitizeForLog truncates untrusted strings before logging
func SanitizeForLog(data string, maxLen int) string {
	if len(data) > maxLen {
		return data[:maxLen] + "...[truncated]"
	}
	return data
}
