package service_test

import (
	"context"
	"testing"
	"time"

	cabinetrepo "github.com/smallbiznis/cabinet/internal/cabinet/repository"
	"github.com/smallbiznis/cabinet/internal/clock"
	entitlementdomain "github.com/smallbiznis/cabinet/internal/entitlement/domain"
	"github.com/smallbiznis/cabinet/internal/entitlement/service"
	patientdomain "github.com/smallbiznis/cabinet/internal/patient/domain"
	patientservice "github.com/smallbiznis/cabinet/internal/patient/service"
	planrepo "github.com/smallbiznis/cabinet/internal/plan/repository"
	subscriptiondomain "github.com/smallbiznis/cabinet/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/cabinet/internal/subscription/repository"
	"github.com/smallbiznis/cabinet/internal/testutil"
	"github.com/smallbiznis/cabinet/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPatientQuotaFollowsPlan(t *testing.T) {
	ctx := context.Background()
	conn := testutil.OpenDB(t)
	node := testutil.Node(t)
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)

	cabinet := testutil.SeedCabinet(t, conn, node, "cabinet-q", now.AddDate(0, 0, -1), 50)
	plan := testutil.SeedPlan(t, conn, node, "mini", 3)

	start := now.AddDate(0, 0, -1)
	end := now.AddDate(0, 0, 29)
	lastEvent := now
	require.NoError(t, conn.Create(&subscriptiondomain.Subscription{
		ID:                 node.Generate(),
		CabinetID:          cabinet.ID,
		PlanID:             plan.ID,
		ExternalID:         "sub_q",
		Status:             subscriptiondomain.StatusActive,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		LastEventAt:        &lastEvent,
		CreatedAt:          now,
		UpdatedAt:          now,
	}).Error)

	patients := patientservice.NewService(patientservice.Params{DB: conn, Log: zap.NewNop(), GenID: node, Clock: fake})
	svc := service.NewService(service.Params{
		DB:          conn,
		Log:         zap.NewNop(),
		Clock:       fake,
		CabinetRepo: cabinetrepo.Provide(),
		SubRepo:     subscriptionrepo.Provide(),
		PlanRepo:    planrepo.Provide(),
		Patients:    patients,
	})

	scoped := tenantctx.WithScope(ctx, tenantctx.Scope{CabinetID: cabinet.ID, Role: "owner"})
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.CheckPatientQuota(ctx, cabinet.ID))
		_, err := patients.Create(scoped, patientdomain.CreateRequest{FirstName: "P", LastName: "Q"})
		require.NoError(t, err)
	}

	err := svc.CheckPatientQuota(ctx, cabinet.ID)
	assert.ErrorIs(t, err, entitlementdomain.ErrQuotaExceeded)

	require.NoError(t, conn.Exec("UPDATE plans SET max_patients = -1 WHERE id = ?", plan.ID).Error)
	assert.NoError(t, svc.CheckPatientQuota(ctx, cabinet.ID))

	ent, err := svc.Get(ctx, cabinet.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlementdomain.StatusActive, ent.Status)
	assert.True(t, ent.Unlimited())
	assert.Equal(t, "mini", ent.PlanName)
}

func TestExpiredCabinetCannotCreate(t *testing.T) {
	ctx := context.Background()
	conn := testutil.OpenDB(t)
	node := testutil.Node(t)
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)
	cabinet := testutil.SeedCabinet(t, conn, node, "cabinet-x", now.AddDate(0, 0, 7), 50)

	svc := service.NewService(service.Params{
		DB:          conn,
		Log:         zap.NewNop(),
		Clock:       fake,
		CabinetRepo: cabinetrepo.Provide(),
		SubRepo:     subscriptionrepo.Provide(),
		PlanRepo:    planrepo.Provide(),
		Patients:    patientservice.NewService(patientservice.Params{DB: conn, Log: zap.NewNop(), GenID: node, Clock: fake}),
	})

	ent, err := svc.Get(ctx, cabinet.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlementdomain.StatusTrialing, ent.Status)
	assert.Equal(t, 7, ent.DaysLeft)
	assert.NoError(t, svc.CheckPatientQuota(ctx, cabinet.ID))

	fake.Advance(8 * 24 * time.Hour)
	ent, err = svc.Get(ctx, cabinet.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlementdomain.StatusExpired, ent.Status)
	assert.ErrorIs(t, svc.CheckPatientQuota(ctx, cabinet.ID), entitlementdomain.ErrQuotaExceeded)

	_, err = svc.Get(ctx, node.Generate())
	assert.ErrorIs(t, err, entitlementdomain.ErrCabinetNotFound)
}
