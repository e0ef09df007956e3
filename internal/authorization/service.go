package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Subject is the caller being authorized inside one cabinet.
type Subject struct {
	UserID    snowflake.ID
	Role      string
	CabinetID snowflake.ID
}

type Service interface {
	Authorize(ctx context.Context, subject Subject, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidTenant = errors.New("invalid_cabinet")
)
