package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGinMiddlewareLogsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observeGlobal(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(err error) (string, string) { return "entitlement_exhausted", "quota" },
	}))
	r.POST("/api/patients", func(c *gin.Context) {
		c.Set("cabinet_id", "42")
		_ = c.Error(errors.New("quota exceeded"))
		c.Status(http.StatusPaymentRequired)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/patients", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, "req-123", rec.Header().Get(headerRequestID))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	require.Equal(t, "/api/patients", fields["route"])
	require.Equal(t, "42", fields["cabinet_id"])
	require.Equal(t, "entitlement_exhausted", fields["error_type"])
	require.Equal(t, "req-123", fields["request_id"])
}

func TestRequestIDFromRejectsGarbage(t *testing.T) {
	require.Equal(t, "abc-1", requestIDFrom("abc-1"))
	require.NotEqual(t, "has space", requestIDFrom("has space"))
	require.Len(t, requestIDFrom(strings.Repeat("x", 100)), 36)
	require.Len(t, requestIDFrom(""), 36)
}

func TestRequestLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, requestLevel("/health", 500, ""))
	require.Equal(t, zapcore.ErrorLevel, requestLevel("/webhook", 500, ""))
	require.Equal(t, zapcore.WarnLevel, requestLevel("/api/patients/:id", 404, "not_found"))
	require.Equal(t, zapcore.InfoLevel, requestLevel("/api/patients", 201, ""))
}
