package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/custimport/internal/domain"
)

type templateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository wires a mapping template repository backed by pgxpool.
func NewTemplateRepository(pool *pgxpool.Pool) TemplateRepository {
	return &templateRepository{pool: pool}
}

func (r *templateRepository) Create(ctx context.Context, template domain.MappingTemplate) error {
	config, err := json.Marshal(template.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal template config: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO mapping_templates (id, tenant_id, name, config, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		template.ID, template.TenantID, template.Name, config, template.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("template %q: %w", template.Name, domain.ErrDuplicateTemplate)
		}
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *templateRepository) Get(ctx context.Context, tenantID, templateID uuid.UUID) (domain.MappingTemplate, error) {
	var (
		template domain.MappingTemplate
		config   []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, config, created_at
		 FROM mapping_templates WHERE tenant_id = $1 AND id = $2`,
		tenantID, templateID,
	).Scan(&template.ID, &template.TenantID, &template.Name, &config, &template.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MappingTemplate{}, fmt.Errorf("template %s: %w", templateID, domain.ErrNotFound)
		}
		return domain.MappingTemplate{}, fmt.Errorf("failed to get template: %w", err)
	}
	if err := json.Unmarshal(config, &template.Config); err != nil {
		return domain.MappingTemplate{}, fmt.Errorf("failed to unmarshal template config: %w", err)
	}
	return template, nil
}

func (r *templateRepository) List(ctx context.Context, tenantID uuid.UUID) ([]domain.MappingTemplate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, name, config, created_at
		 FROM mapping_templates WHERE tenant_id = $1 ORDER BY name`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := []domain.MappingTemplate{}
	for rows.Next() {
		var (
			template domain.MappingTemplate
			config   []byte
		)
		if err := rows.Scan(&template.ID, &template.TenantID, &template.Name, &config, &template.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if err := json.Unmarshal(config, &template.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template config: %w", err)
		}
		templates = append(templates, template)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}
	return templates, nil
}

func (r *templateRepository) Delete(ctx context.Context, tenantID, templateID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM mapping_templates WHERE tenant_id = $1 AND id = $2`,
		tenantID, templateID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("template %s: %w", templateID, domain.ErrNotFound)
	}
	return nil
}
