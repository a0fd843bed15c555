package model

import (
	"context"
	"fmt"

	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/pkg/db"
	"github.com/thep200/dothub-crawler/pkg/log"
)

// Model carries the dependencies shared by the catalog tables. It is never
// persisted.
type Model struct {
	Config   *cfg.Config  `json:"-" gorm:"-"`
	Logger   log.Logger   `json:"-" gorm:"-"`
	Database *db.Database `json:"-" gorm:"-"`
}

// Tables lists the catalog tables in dependency order.
func Tables() []interface{} {
	return []interface{}{&Repository{}, &Configuration{}, &RepositoryConfiguration{}}
}

// Migrate creates the catalog tables when they are missing. It is safe to
// run on every ingestion.
func Migrate(ctx context.Context, database *db.Database) error {
	conn, err := database.Session(ctx)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	if err := conn.SetupJoinTable(&Repository{}, "Configurations", &RepositoryConfiguration{}); err != nil {
		return fmt.Errorf("setup repository_configurations: %w", err)
	}
	if err := database.Migrate(ctx, Tables()...); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	return nil
}
