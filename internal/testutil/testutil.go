// Package testutil wires the pieces shared by package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	"github.com/smallbiznis/cabinet/internal/migration"
	plandomain "github.com/smallbiznis/cabinet/internal/plan/domain"
	"github.com/smallbiznis/cabinet/pkg/db"
	"gorm.io/gorm"
)

// OpenDB returns a migrated in-memory database closed at test cleanup.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := migration.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	// One connection keeps shared-cache transactions from locking each other.
	if sqlDB, err := conn.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func Node(t *testing.T) *snowflake.Node {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// SeedCabinet inserts an active cabinet whose trial ends at trialEnd.
func SeedCabinet(t *testing.T, conn *gorm.DB, node *snowflake.Node, name string, trialEnd time.Time, maxPatients int) *cabinetdomain.Cabinet {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	end := trialEnd.UTC().Truncate(time.Second)
	start := end.AddDate(0, 0, -14)
	cabinet := &cabinetdomain.Cabinet{
		ID:             node.Generate(),
		Name:           name,
		Slug:           name,
		IsActive:       true,
		TrialStartDate: &start,
		TrialEndDate:   &end,
		MaxPatients:    maxPatients,
		IsTrialActive:  true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := conn.Create(cabinet).Error; err != nil {
		t.Fatalf("seed cabinet: %v", err)
	}
	return cabinet
}

func SeedPlan(t *testing.T, conn *gorm.DB, node *snowflake.Node, name string, maxPatients int, features ...string) *plandomain.Plan {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	plan := &plandomain.Plan{
		ID:          node.Generate(),
		Name:        name,
		DisplayName: name,
		Currency:    "eur",
		MaxPatients: maxPatients,
		Features:    features,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if plan.Features == nil {
		plan.Features = []string{}
	}
	if err := conn.Create(plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}
