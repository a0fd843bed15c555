package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/pkg/db"
	"github.com/thep200/dothub-crawler/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MaxUrlLength   = 512
	MaxOwnerLength = 250
)

var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrInvalidRepository  = errors.New("invalid repository")
)

type Repository struct {
	Model
	ID             uint            `json:"id" gorm:"column:id;primaryKey"`
	Url            string          `json:"url" gorm:"column:url;type:varchar(512);not null;uniqueIndex"`
	Owner          string          `json:"owner" gorm:"column:owner;type:varchar(255);not null"`
	Description    *string         `json:"description" gorm:"column:description;type:text"`
	Stars          int             `json:"stars" gorm:"column:stars;not null;default:0"`
	LastUpdated    *time.Time      `json:"last_updated" gorm:"column:last_updated"`
	Configurations []Configuration `json:"configurations,omitempty" gorm:"many2many:repository_configurations"`
}

func NewRepository(config *cfg.Config, logger log.Logger, database *db.Database) (*Repository, error) {
	repository := &Repository{
		Model: Model{
			Config:   config,
			Logger:   logger,
			Database: database,
		},
	}
	return repository, nil
}

func (r *Repository) TableName() string {
	return "repositories"
}

// Upsert inserts the repository keyed by url or, when the url is already
// known, overwrites owner, description, stars and last_updated. It returns
// the row id, which never changes once assigned.
func (r *Repository) Upsert(ctx context.Context, url, owner string, description *string, stars int, lastUpdated *time.Time) (uint, error) {
	if url == "" || len(url) > MaxUrlLength {
		return 0, fmt.Errorf("%w: url %q", ErrInvalidRepository, url)
	}
	if stars < 0 {
		stars = 0
	}

	conn, err := r.Database.Session(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get database connection: %w", err)
	}

	newRepo := &Repository{
		Url:         url,
		Owner:       TruncateString(owner, MaxOwnerLength),
		Description: description,
		Stars:       stars,
		LastUpdated: lastUpdated,
	}
	if err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner", "description", "stars", "last_updated"}),
	}).Omit(clause.Associations).Create(newRepo).Error; err != nil {
		return 0, fmt.Errorf("upsert repository %s: %w", url, err)
	}

	// The id reported by the insert is not reliable on conflict for every
	// driver, so resolve it by the natural key.
	return r.IDByUrl(ctx, url)
}

// IDByUrl resolves a repository id, returning ErrRepositoryNotFound when the
// url has never been stored.
func (r *Repository) IDByUrl(ctx context.Context, url string) (uint, error) {
	conn, err := r.Database.Session(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get database connection: %w", err)
	}

	var row Repository
	err = conn.Select("id").Where("url = ?", url).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrRepositoryNotFound, url)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup repository %s: %w", url, err)
	}
	return row.ID, nil
}

func (r *Repository) FindByUrl(ctx context.Context, url string) (*Repository, error) {
	conn, err := r.Database.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	var row Repository
	err = conn.Preload("Configurations", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("configurations.name")
	}).Where("url = ?", url).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, url)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	conn, err := r.Database.Session(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get database connection: %w", err)
	}
	var n int64
	err = conn.Model(&Repository{}).Count(&n).Error
	return n, err
}
