package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/pkg/db"
	"github.com/thep200/dothub-crawler/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RepositoryConfiguration links a repository to one of its detected tags.
// The pair is the primary key, so a link exists at most once.
type RepositoryConfiguration struct {
	RepositoryID    uint `json:"repository_id" gorm:"column:repository_id;primaryKey;autoIncrement:false"`
	ConfigurationID uint `json:"configuration_id" gorm:"column:configuration_id;primaryKey;autoIncrement:false"`
}

func (rc *RepositoryConfiguration) TableName() string {
	return "repository_configurations"
}

// Tagger writes repository/tag links.
type Tagger struct {
	Model
	configurations *Configuration
}

func NewTagger(config *cfg.Config, logger log.Logger, database *db.Database) (*Tagger, error) {
	configurations, err := NewConfiguration(config, logger, database)
	if err != nil {
		return nil, err
	}
	return &Tagger{
		Model: Model{
			Config:   config,
			Logger:   logger,
			Database: database,
		},
		configurations: configurations,
	}, nil
}

// Link ensures the tag exists and links it to the repository stored under
// url. Both steps share one transaction. A url that was never stored yields
// ErrRepositoryNotFound and writes nothing. linked reports whether a new
// link row was written.
func (t *Tagger) Link(ctx context.Context, url, tag string) (linked bool, err error) {
	conn, err := t.Database.Session(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get database connection: %w", err)
	}

	err = conn.Transaction(func(tx *gorm.DB) error {
		var repo Repository
		err := tx.Select("id").Where("url = ?", url).Take(&repo).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrRepositoryNotFound, url)
		}
		if err != nil {
			return fmt.Errorf("lookup repository %s: %w", url, err)
		}

		configurationID, err := t.configurations.Ensure(ctx, tx, tag)
		if err != nil {
			return err
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&RepositoryConfiguration{
			RepositoryID:    repo.ID,
			ConfigurationID: configurationID,
		})
		if result.Error != nil {
			return fmt.Errorf("link %s to %s: %w", tag, url, result.Error)
		}
		linked = result.RowsAffected > 0
		return nil
	})
	return linked, err
}

func (t *Tagger) Count(ctx context.Context) (int64, error) {
	conn, err := t.Database.Session(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get database connection: %w", err)
	}
	var n int64
	err = conn.Model(&RepositoryConfiguration{}).Count(&n).Error
	return n, err
}
