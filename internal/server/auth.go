package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/cabinet/internal/auth/domain"
	"github.com/smallbiznis/cabinet/internal/auth/password"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type sessionView struct {
	UserID      string     `json:"user_id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role"`
	CabinetID   string     `json:"cabinet_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func newSessionView(user *authdomain.User, expiresAt *time.Time) sessionView {
	view := sessionView{
		UserID:      user.ID.String(),
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		ExpiresAt:   expiresAt,
	}
	if user.CabinetID != nil {
		view.CabinetID = user.CabinetID.String()
	}
	return view
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)
	c.JSON(http.StatusOK, newSessionView(result.User, &result.ExpiresAt))
}

func (s *Server) Logout(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.authsvc.Logout(c.Request.Context(), token); err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var expiresAt *time.Time
	if principal.Session != nil {
		expiresAt = &principal.Session.ExpiresAt
	}
	c.JSON(http.StatusOK, newSessionView(principal.User, expiresAt))
}

func (s *Server) ChangePassword(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := password.Validate(req.NewPassword); err != nil {
		AbortWithError(c, newValidationError("new_password", "weak_password", fmt.Sprintf("password must be at least %d characters", password.MinLength)))
		return
	}

	var keep snowflake.ID
	if principal.Session != nil {
		keep = principal.Session.ID
	}
	if err := s.authsvc.ChangePassword(c.Request.Context(), principal.User.ID.String(), req.NewPassword, keep); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
