package logger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// QueryLogConfig controls which statements reach the log.
type QueryLogConfig struct {
	Level         string
	SlowThreshold time.Duration
}

// QueryLogger routes gorm output through the context logger so statements
// carry the request, delivery and cabinet ids of the caller.
type QueryLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func NewQueryLogger(cfg QueryLogConfig) *QueryLogger {
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	return &QueryLogger{
		level:         parseQueryLevel(cfg.Level),
		slowThreshold: slow,
	}
}

func parseQueryLevel(raw string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "silent", "off":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		FromContext(ctx).Info(msg, zap.String("component", "store"), zap.Any("data", data))
	}
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		FromContext(ctx).Warn(msg, zap.String("component", "store"), zap.Any("data", data))
	}
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		FromContext(ctx).Error(msg, zap.String("component", "store"), zap.Any("data", data))
	}
}

// Trace logs failed and slow statements. Not-found lookups are expected on
// every first webhook for a cabinet and are never reported.
func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := elapsed > l.slowThreshold

	switch {
	case failed && l.level >= gormlogger.Error:
	case slow && l.level >= gormlogger.Warn:
	case l.level >= gormlogger.Info:
	default:
		return
	}

	sql, rows := fc()
	stmt := describeStatement(sql)
	fields := []zap.Field{
		zap.String("component", "store"),
		zap.String("operation", stmt.operation),
		zap.String("table", stmt.table),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}

	log := FromContext(ctx)
	switch {
	case failed:
		log.Error("query failed", append(fields, zap.String("sql", strings.TrimSpace(sql)), zap.Error(err))...)
	case slow:
		log.Warn("slow query", append(fields, zap.String("sql", strings.TrimSpace(sql)))...)
	default:
		log.Debug("query", fields...)
	}
}

// ParamsFilter keeps bound values out of the log. They hold patient data
// and processor ids.
func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...any) (string, []any) {
	return sql, nil
}

type statement struct {
	operation string
	table     string
}

var tablePattern = regexp.MustCompile(`(?i)\b(?:from|into|update|join)\s+"?([a-z_][a-z0-9_]*)"?`)

func describeStatement(sql string) statement {
	out := statement{operation: "UNKNOWN", table: "unknown"}
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		if token == "SELECT" || token == "INSERT" || token == "UPDATE" || token == "DELETE" {
			out.operation = token
			break
		}
	}
	if m := tablePattern.FindStringSubmatch(sql); len(m) == 2 {
		out.table = strings.ToLower(m[1])
	}
	return out
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
