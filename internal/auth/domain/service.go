package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	// Authenticate resolves a raw session token to its active user.
	Authenticate(ctx context.Context, rawToken string) (*Principal, error)
	// ChangePassword replaces the password and revokes every other session
	// of the user. keepSession stays valid.
	ChangePassword(ctx context.Context, userID string, newPassword string, keepSession snowflake.ID) error
}

type CreateUserRequest struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
	CabinetID   snowflake.ID
}

type LoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	User      *User
	RawToken  string
	ExpiresAt time.Time
	SessionID snowflake.ID
}

// Principal is the authenticated caller of one request.
type Principal struct {
	User    *User
	Session *Session
}
