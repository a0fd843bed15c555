package model

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

const DefaultPerPage = 30

type Filter struct {
	Page           int
	PerPage        int
	Configurations []string
}

type Page struct {
	Total        int64        `json:"total_repositories"`
	TotalPages   int          `json:"total_pages"`
	CurrentPage  int          `json:"current_page"`
	Repositories []Repository `json:"repositories"`
}

func (f Filter) normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 100 {
		f.PerPage = DefaultPerPage
	}
	return f
}

// List returns one page of repositories ordered by stars. When the filter
// names configurations, a repository matches if it carries any of them.
func (r *Repository) List(ctx context.Context, filter Filter) (*Page, error) {
	filter = filter.normalize()
	conn, err := r.Database.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	scope := func() *gorm.DB {
		q := conn.Model(&Repository{})
		if len(filter.Configurations) > 0 {
			tagged := conn.Table("repository_configurations").
				Select("repository_configurations.repository_id").
				Joins("JOIN configurations ON configurations.id = repository_configurations.configuration_id").
				Where("configurations.name IN ?", filter.Configurations)
			q = q.Where("repositories.id IN (?)", tagged)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count repositories: %w", err)
	}

	rows := make([]Repository, 0, filter.PerPage)
	err = scope().
		Preload("Configurations", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("configurations.name")
		}).
		Order("repositories.stars DESC").
		Order("repositories.id").
		Limit(filter.PerPage).
		Offset((filter.Page - 1) * filter.PerPage).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}

	return &Page{
		Total:        total,
		TotalPages:   int((total + int64(filter.PerPage) - 1) / int64(filter.PerPage)),
		CurrentPage:  filter.Page,
		Repositories: rows,
	}, nil
}
