package server

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/cabinet/internal/auth/domain"
	"github.com/smallbiznis/cabinet/internal/authorization"
	obscontext "github.com/smallbiznis/cabinet/internal/observability/context"
	"github.com/smallbiznis/cabinet/internal/observability/logger"
	"github.com/smallbiznis/cabinet/pkg/tenantctx"
	"go.uber.org/zap"
)

const (
	HeaderCabinet       = "X-Cabinet-ID"
	contextPrincipalKey = "principal"
	contextCabinetIDKey = "cabinet_id"
)

const resourcePatients = "patients"

// AuthRequired resolves the session cookie to an active user.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextPrincipalKey, principal)
		ctx := obscontext.WithActor(c.Request.Context(), "user", principal.User.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// TenantScope pins the request to the caller's cabinet. Super admins may
// target any cabinet through X-Cabinet-ID and otherwise read unscoped.
func (s *Server) TenantScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		user := principal.User

		scope := tenantctx.Scope{UserID: user.ID, Role: user.Role}
		switch {
		case user.Role == authdomain.RoleSuperAdmin:
			if raw := strings.TrimSpace(c.GetHeader(HeaderCabinet)); raw != "" {
				cabinetID, err := snowflake.ParseString(raw)
				if err != nil || cabinetID == 0 {
					AbortWithError(c, newValidationError("X-Cabinet-ID", "invalid_cabinet_id", "invalid cabinet id"))
					return
				}
				scope.CabinetID = cabinetID
			}
		case user.CabinetID != nil && *user.CabinetID != 0:
			scope.CabinetID = *user.CabinetID
		default:
			AbortWithError(c, ErrCabinetRequired)
			return
		}

		ctx := tenantctx.WithScope(c.Request.Context(), scope)
		if scope.CabinetID != 0 {
			ctx = obscontext.WithCabinetID(ctx, scope.CabinetID.String())
			c.Set(contextCabinetIDKey, scope.CabinetID.String())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) RequirePermission(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, ok := tenantctx.FromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		err := s.authzSvc.Authorize(c.Request.Context(), authorization.Subject{
			UserID:    scope.UserID,
			Role:      scope.Role,
			CabinetID: scope.CabinetID,
		}, object, action)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// RequireQuota rejects creations that would exceed the cabinet's plan.
func (s *Server) RequireQuota(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cabinetID, ok := tenantctx.CabinetID(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrCabinetRequired)
			return
		}

		switch resource {
		case resourcePatients:
			if err := s.entitlementSvc.CheckPatientQuota(c.Request.Context(), cabinetID); err != nil {
				logger.FromContext(c.Request.Context()).Info("entitlement denied",
					zap.String("resource", resource),
					zap.Error(err),
				)
				AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}

// RateLimit applies the per-cabinet token bucket. Redis errors fail open.
func (s *Server) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cabinetID, ok := tenantctx.CabinetID(ctx)
		if !ok {
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		result, err := s.limiter.Allow(ctx, cabinetID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			recordRateLimitDenied(ctx, s, endpoint, cabinetID.String())
			AbortWithError(c, ErrRateLimited)
			return
		}

		recordRateLimitAllowed(ctx, s, endpoint, cabinetID.String())
		c.Next()
	}
}

func recordRateLimitAllowed(ctx context.Context, s *Server, endpoint, cabinetID string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordRateLimitAllowed(ctx, cabinetID, endpoint)
}

func recordRateLimitDenied(ctx context.Context, s *Server, endpoint, cabinetID string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordRateLimitDenied(ctx, cabinetID, endpoint, "cabinet-rate")
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}

func principalFromContext(c *gin.Context) (*authdomain.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*authdomain.Principal)
	if !ok || principal == nil || principal.User == nil {
		return nil, false
	}
	return principal, true
}
