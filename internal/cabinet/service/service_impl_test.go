package service_test

import (
	"context"
	"testing"
	"time"

	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	"github.com/smallbiznis/cabinet/internal/cabinet/repository"
	"github.com/smallbiznis/cabinet/internal/cabinet/service"
	"github.com/smallbiznis/cabinet/internal/clock"
	"github.com/smallbiznis/cabinet/internal/config"
	"github.com/smallbiznis/cabinet/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var registeredAt = time.Date(2026, 4, 1, 10, 30, 0, 0, time.UTC)

func newService(t *testing.T) cabinetdomain.Service {
	t.Helper()

	conn := testutil.OpenDB(t)
	return service.NewService(service.Params{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  testutil.Node(t),
		Clock:  clock.NewFakeClock(registeredAt),
		Repo:   repository.Provide(),
		Config: config.Config{TrialDays: 14, TrialMaxPatients: 50},
	})
}

func intPtr(v int) *int { return &v }

func TestCreateOpensTrial(t *testing.T) {
	svc := newService(t)

	cabinet, err := svc.Create(context.Background(), cabinetdomain.CreateRequest{Name: "  Cabinet Dr. Müller "})
	require.NoError(t, err)
	assert.Equal(t, "Cabinet Dr. Müller", cabinet.Name)
	assert.Equal(t, "cabinet-dr-muller", cabinet.Slug)
	assert.True(t, cabinet.IsActive)
	assert.True(t, cabinet.IsTrialActive)
	assert.Equal(t, 50, cabinet.MaxPatients)
	require.NotNil(t, cabinet.TrialEndDate)
	assert.Equal(t, registeredAt.AddDate(0, 0, 14), *cabinet.TrialEndDate)
}

func TestCreateWithoutTrial(t *testing.T) {
	svc := newService(t)

	cabinet, err := svc.Create(context.Background(), cabinetdomain.CreateRequest{
		Name:        "Cabinet Sans Essai",
		TrialDays:   intPtr(0),
		MaxPatients: intPtr(cabinetdomain.UnlimitedPatients),
	})
	require.NoError(t, err)
	assert.False(t, cabinet.IsTrialActive)
	assert.Equal(t, cabinetdomain.UnlimitedPatients, cabinet.MaxPatients)
}

func TestCreateDisambiguatesSlug(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, cabinetdomain.CreateRequest{Name: "Cabinet Central"})
	require.NoError(t, err)
	second, err := svc.Create(ctx, cabinetdomain.CreateRequest{Name: "Cabinet Central"})
	require.NoError(t, err)

	assert.Equal(t, "cabinet-central", first.Slug)
	assert.NotEqual(t, first.Slug, second.Slug)
	assert.Contains(t, second.Slug, "cabinet-central-")
}

func TestCreateValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, cabinetdomain.CreateRequest{Name: "   "})
	assert.ErrorIs(t, err, cabinetdomain.ErrInvalidName)

	_, err = svc.Create(ctx, cabinetdomain.CreateRequest{Name: "x", TrialDays: intPtr(-3)})
	assert.ErrorIs(t, err, cabinetdomain.ErrInvalidTrialDays)

	_, err = svc.Create(ctx, cabinetdomain.CreateRequest{Name: "x", MaxPatients: intPtr(-2)})
	assert.ErrorIs(t, err, cabinetdomain.ErrInvalidMaxPatients)
}

func TestUpdateAndGet(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, cabinetdomain.CreateRequest{Name: "Cabinet Nord"})
	require.NoError(t, err)

	inactive := false
	updated, err := svc.Update(ctx, created.ID.String(), cabinetdomain.UpdateRequest{
		IsActive:    &inactive,
		MaxPatients: intPtr(120),
	})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 120, updated.MaxPatients)

	_, err = svc.Get(ctx, "not-an-id")
	assert.ErrorIs(t, err, cabinetdomain.ErrInvalidID)

	_, err = svc.Update(ctx, "123456789", cabinetdomain.UpdateRequest{MaxPatients: intPtr(5)})
	assert.ErrorIs(t, err, cabinetdomain.ErrNotFound)
}
