// internal/adapter/storage/project_store.go

package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"metromap/internal/domain/layer"
)

//go:embed schema.sql
var schema string

// ProjectStore reads and writes the development registry in Postgres
type ProjectStore struct {
	db *pgxpool.Pool
}

// NewProjectStore creates a new project store
func NewProjectStore(db *pgxpool.Pool) *ProjectStore {
	return &ProjectStore{
		db: db,
	}
}

// Migrate creates the development_projects table if it is missing
func (s *ProjectStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("error creating development_projects: %w", err)
	}
	return nil
}

// CountProjects returns the number of stored projects
func (s *ProjectStore) CountProjects(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM development_projects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting projects: %w", err)
	}
	return n, nil
}

// SaveProjects upserts projects by name in one transaction, keeping their order
func (s *ProjectStore) SaveProjects(ctx context.Context, projects []layer.DevelopmentProject) error {
	query := `
		INSERT INTO development_projects (
			name, status, category, description, address, lat, lng,
			image_url, timeline_start, timeline_completion, investment, sort_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (name) DO UPDATE
		SET
			status = $2,
			category = $3,
			description = $4,
			address = $5,
			lat = $6,
			lng = $7,
			image_url = $8,
			timeline_start = $9,
			timeline_completion = $10,
			investment = $11,
			sort_order = $12,
			updated_at = now()
	`

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i, p := range projects {
		batch.Queue(query,
			p.Name, p.Status, p.Category, p.Description, p.Address, p.Latitude, p.Longitude,
			nullable(p.ImageURL), nullable(p.TimelineStart), nullable(p.TimelineCompletion),
			nullable(p.Investment), i,
		)
	}
	results := tx.SendBatch(ctx, batch)
	for range projects {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("error saving project: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("error closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing projects: %w", err)
	}
	return nil
}

// ListProjects implements layer.ProjectStore
func (s *ProjectStore) ListProjects(ctx context.Context) ([]layer.DevelopmentProject, error) {
	query := `
		SELECT
			name, status, category, description, address, lat, lng,
			image_url, timeline_start, timeline_completion, investment
		FROM development_projects
		ORDER BY sort_order, name
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var projects []layer.DevelopmentProject
	for rows.Next() {
		var p layer.DevelopmentProject
		var imageURL, start, completion, investment *string

		err := rows.Scan(
			&p.Name,
			&p.Status,
			&p.Category,
			&p.Description,
			&p.Address,
			&p.Latitude,
			&p.Longitude,
			&imageURL,
			&start,
			&completion,
			&investment,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning project: %w", err)
		}

		p.ImageURL = deref(imageURL)
		p.TimelineStart = deref(start)
		p.TimelineCompletion = deref(completion)
		p.Investment = deref(investment)
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// SeedProjects fills an empty registry from seed and reports how many rows were written
func (s *ProjectStore) SeedProjects(ctx context.Context, seed layer.ProjectStore) (int, error) {
	n, err := s.CountProjects(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	projects, err := seed.ListProjects(ctx)
	if err != nil {
		return 0, fmt.Errorf("error loading seed projects: %w", err)
	}
	if err := s.SaveProjects(ctx, projects); err != nil {
		return 0, err
	}
	return len(projects), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
