package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"signalpipe/internal/types"
)

// TemplateRepository provides read access to the notification_templates
// table. Templates are administrator-managed and read-only to the pipeline.
type TemplateRepository struct {
	db DBTX
}

// NewTemplateRepository creates a TemplateRepository backed by the given
// database connection.
func NewTemplateRepository(db DBTX) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetTemplate fetches a template by ID. A missing template is a hook-level
// configuration error surfaced as not_found_template.
func (r *TemplateRepository) GetTemplate(ctx context.Context, templateID string) (*types.NotificationTemplate, error) {
	t := &types.NotificationTemplate{}
	err := r.db.QueryRow(ctx,
		`SELECT id, channel, subject, content_html, content_text
		 FROM notification_templates WHERE id = $1`,
		templateID,
	).Scan(&t.ID, &t.Channel, &t.Subject, &t.ContentHTML, &t.ContentText)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundTemplate,
			fmt.Sprintf("template %s not found", templateID), err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get template", err)
	}
	return t, nil
}
