package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cabinet/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T) Service {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if sqlDB, err := conn.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{Log: zaptest.NewLogger(t), Enforcer: enforcer})
}

func TestAuthorizeRoles(t *testing.T) {
	svc := newService(t)
	cabinetID := snowflake.ID(100)

	tests := []struct {
		name   string
		role   string
		object string
		action string
		want   error
	}{
		{"owner creates patients", "owner", ObjectPatient, ActionPatientCreate, nil},
		{"owner reads status", "owner", ObjectSubscription, ActionSubscriptionView, nil},
		{"practitioner deletes patients", "practitioner", ObjectPatient, ActionPatientDelete, nil},
		{"assistant creates patients", "assistant", ObjectPatient, ActionPatientCreate, nil},
		{"assistant cannot delete patients", "assistant", ObjectPatient, ActionPatientDelete, ErrForbidden},
		{"owner cannot register cabinets", "owner", ObjectCabinet, ActionCabinetCreate, ErrForbidden},
		{"super admin can do anything", "super_admin", ObjectCabinet, ActionCabinetCreate, nil},
		{"unknown role", "janitor", ObjectPatient, ActionPatientView, ErrInvalidActor},
		{"empty action", "owner", ObjectPatient, "", ErrInvalidAction},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Authorize(context.Background(), Subject{
				UserID:    snowflake.ID(i + 1),
				Role:      tt.role,
				CabinetID: cabinetID,
			}, tt.object, tt.action)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAuthorizeRequiresCabinetForTenantRoles(t *testing.T) {
	svc := newService(t)

	err := svc.Authorize(context.Background(), Subject{UserID: 1, Role: "owner"}, ObjectPatient, ActionPatientView)
	assert.ErrorIs(t, err, ErrInvalidTenant)

	err = svc.Authorize(context.Background(), Subject{UserID: 2, Role: "super_admin"}, ObjectCabinet, ActionCabinetCreate)
	assert.NoError(t, err)
}

func TestRoleChangeTakesEffect(t *testing.T) {
	svc := newService(t)
	subject := Subject{UserID: 7, Role: "practitioner", CabinetID: 100}

	require.NoError(t, svc.Authorize(context.Background(), subject, ObjectPatient, ActionPatientDelete))

	subject.Role = "assistant"
	err := svc.Authorize(context.Background(), subject, ObjectPatient, ActionPatientDelete)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSeedIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	_, err = NewEnforcer(conn)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	policies, err := enforcer.GetFilteredPolicy(0, "role:owner")
	require.NoError(t, err)
	assert.Len(t, policies, 7)
}
