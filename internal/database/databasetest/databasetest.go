// Package databasetest opens the Postgres database used by storage tests.
package databasetest

import (
	"context"
	"os"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"gorm.io/gorm"

	"github.com/butvinm-itmo/highload-sub001/internal/config"
	"github.com/butvinm-itmo/highload-sub001/internal/database"
)

// Open connects to TEST_DATABASE_DSN and skips the test when it is unset.
// Each migrate function runs before the handle is returned.
func Open(t *testing.T, migrate ...func(context.Context, *gorm.DB) error) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	logger, _ := test.NewNullLogger()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	for _, m := range migrate {
		if err := m(ctx, db); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	return db
}
