package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/cabinet/internal/clock"
	patientdomain "github.com/smallbiznis/cabinet/internal/patient/domain"
	"github.com/smallbiznis/cabinet/internal/patient/service"
	"github.com/smallbiznis/cabinet/internal/testutil"
	"github.com/smallbiznis/cabinet/pkg/db/pagination"
	"github.com/smallbiznis/cabinet/pkg/repository"
	"github.com/smallbiznis/cabinet/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPatientsAreIsolatedPerCabinet(t *testing.T) {
	conn := testutil.OpenDB(t)
	node := testutil.Node(t)
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	svc := service.NewService(service.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(now),
	})

	cabinetA := testutil.SeedCabinet(t, conn, node, "cabinet-a", now.AddDate(0, 0, 7), 50)
	cabinetB := testutil.SeedCabinet(t, conn, node, "cabinet-b", now.AddDate(0, 0, 7), 50)
	ctxA := tenantctx.WithScope(context.Background(), tenantctx.Scope{CabinetID: cabinetA.ID, Role: "owner"})
	ctxB := tenantctx.WithScope(context.Background(), tenantctx.Scope{CabinetID: cabinetB.ID, Role: "owner"})

	created, err := svc.Create(ctxA, patientdomain.CreateRequest{
		FirstName: " Jeanne ",
		LastName:  "Martin",
		Email:     "Jeanne.Martin@example.com",
		BirthDate: "1984-02-11",
	})
	require.NoError(t, err)
	assert.Equal(t, cabinetA.ID, created.CabinetID)
	assert.Equal(t, "Jeanne", created.FirstName)
	assert.Equal(t, "jeanne.martin@example.com", created.Email)

	got, err := svc.Get(ctxA, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.Get(ctxB, created.ID.String())
	assert.ErrorIs(t, err, patientdomain.ErrNotFound)

	list, err := svc.List(ctxB, patientdomain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Patients)

	assert.ErrorIs(t, svc.Delete(ctxB, created.ID.String()), patientdomain.ErrNotFound)

	admin := tenantctx.WithScope(context.Background(), tenantctx.Scope{Role: tenantctx.RoleSuperAdmin})
	got, err = svc.Get(admin, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, cabinetA.ID, got.CabinetID)

	require.NoError(t, svc.Delete(ctxA, created.ID.String()))
	count, err := svc.Count(context.Background(), cabinetA.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPatientRequiresScope(t *testing.T) {
	conn := testutil.OpenDB(t)
	svc := service.NewService(service.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Clock: clock.SystemClock{},
	})

	_, err := svc.Create(context.Background(), patientdomain.CreateRequest{FirstName: "A", LastName: "B"})
	assert.ErrorIs(t, err, repository.ErrMissingScope)

	_, err = svc.List(context.Background(), patientdomain.ListRequest{})
	assert.ErrorIs(t, err, repository.ErrMissingScope)
}

func TestPatientValidation(t *testing.T) {
	conn := testutil.OpenDB(t)
	node := testutil.Node(t)
	svc := service.NewService(service.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.SystemClock{},
	})
	cabinet := testutil.SeedCabinet(t, conn, node, "cabinet-v", time.Now().AddDate(0, 0, 7), 50)
	ctx := tenantctx.WithScope(context.Background(), tenantctx.Scope{CabinetID: cabinet.ID, Role: "owner"})

	tests := []struct {
		name string
		req  patientdomain.CreateRequest
	}{
		{"missing last name", patientdomain.CreateRequest{FirstName: "Ana"}},
		{"bad email", patientdomain.CreateRequest{FirstName: "Ana", LastName: "Lopez", Email: "nope"}},
		{"bad birth date", patientdomain.CreateRequest{FirstName: "Ana", LastName: "Lopez", BirthDate: "11/02/1984"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			assert.ErrorIs(t, err, patientdomain.ErrInvalidPatient)
		})
	}

	_, err := svc.Get(ctx, "not-an-id")
	assert.ErrorIs(t, err, patientdomain.ErrInvalidID)
}

func TestPatientListPaginates(t *testing.T) {
	conn := testutil.OpenDB(t)
	node := testutil.Node(t)
	fake := clock.NewFakeClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	svc := service.NewService(service.Params{DB: conn, Log: zap.NewNop(), GenID: node, Clock: fake})
	cabinet := testutil.SeedCabinet(t, conn, node, "cabinet-p", fake.Now().AddDate(0, 0, 7), -1)
	ctx := tenantctx.WithScope(context.Background(), tenantctx.Scope{CabinetID: cabinet.ID, Role: "owner"})

	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		_, err := svc.Create(ctx, patientdomain.CreateRequest{FirstName: name, LastName: "Test"})
		require.NoError(t, err)
		fake.Advance(time.Second)
	}

	first, err := svc.List(ctx, patientdomain.ListRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Patients, 2)
	assert.True(t, first.PageInfo.HasMore)
	assert.Equal(t, "Charlie", first.Patients[0].FirstName)

	second, err := svc.List(ctx, patientdomain.ListRequest{Pagination: pagination.Pagination{
		PageSize:  2,
		PageToken: first.PageInfo.NextPageToken,
	}})
	require.NoError(t, err)
	require.Len(t, second.Patients, 1)
	assert.False(t, second.PageInfo.HasMore)
	assert.Equal(t, "Alpha", second.Patients[0].FirstName)
}
