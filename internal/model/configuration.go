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

const MaxConfigurationNameLength = 100

var ErrConfigurationNotFound = errors.New("configuration not found")

// Configuration is a detected tool tag such as "neovim" or "tmux".
type Configuration struct {
	Model
	ID   uint   `json:"id" gorm:"column:id;primaryKey"`
	Name string `json:"name" gorm:"column:name;type:varchar(100);not null;uniqueIndex"`
}

func NewConfiguration(config *cfg.Config, logger log.Logger, database *db.Database) (*Configuration, error) {
	configuration := &Configuration{
		Model: Model{
			Config:   config,
			Logger:   logger,
			Database: database,
		},
	}
	return configuration, nil
}

func (c *Configuration) TableName() string {
	return "configurations"
}

// Ensure inserts name when it is new and returns its id either way.
func (c *Configuration) Ensure(ctx context.Context, tx *gorm.DB, name string) (uint, error) {
	if name == "" || len(name) > MaxConfigurationNameLength {
		return 0, fmt.Errorf("invalid configuration name %q", name)
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&Configuration{Name: name}).Error; err != nil {
		return 0, fmt.Errorf("insert configuration %s: %w", name, err)
	}

	var row Configuration
	err := tx.WithContext(ctx).Select("id").Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrConfigurationNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup configuration %s: %w", name, err)
	}
	return row.ID, nil
}

// Names returns the tag vocabulary seen so far, alphabetically.
func (c *Configuration) Names(ctx context.Context) ([]string, error) {
	conn, err := c.Database.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	names := make([]string, 0)
	err = conn.Model(&Configuration{}).Order("name").Pluck("name", &names).Error
	return names, err
}

func (c *Configuration) Count(ctx context.Context) (int64, error) {
	conn, err := c.Database.Session(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get database connection: %w", err)
	}
	var n int64
	err = conn.Model(&Configuration{}).Count(&n).Error
	return n, err
}
