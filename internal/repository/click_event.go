package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pulseboard/pulseboard/internal/model"
)

// ClickEventRepository provides database access for click events.
type ClickEventRepository struct {
	repo *Repository
}

// NewClickEventRepository creates a new ClickEventRepository.
func NewClickEventRepository(repo *Repository) *ClickEventRepository {
	return &ClickEventRepository{repo: repo}
}

// BulkInsert inserts multiple click events with idempotency via ON CONFLICT DO NOTHING.
func (r *ClickEventRepository) BulkInsert(ctx context.Context, events []*model.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO click_events (
			id, event_id, org_id, project_id, account_id, link_id,
			referrer, user_agent, device_class, identity_key, clicked_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, event := range events {
		batch.Queue(query,
			event.ID,
			event.EventID,
			event.OrgID,
			event.ProjectID,
			event.AccountID,
			event.LinkID,
			nullableString(event.Referrer),
			nullableString(event.UserAgent),
			event.DeviceClass,
			event.IdentityKey,
			event.Timestamp,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	// Check for errors in batch execution
	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// ListRecent returns the latest limit click events of scope, oldest first.
// Distinct counts over older events are therefore approximate once a scope
// exceeds the limit.
func (r *ClickEventRepository) ListRecent(ctx context.Context, scope model.Scope, limit int) ([]model.ClickEvent, error) {
	query := `
		SELECT id, event_id, link_id, COALESCE(referrer, ''), COALESCE(user_agent, ''),
			device_class, identity_key, clicked_at, created_at
		FROM click_events
		WHERE org_id = $1
			AND ($2 = '' OR project_id = $2)
			AND ($3 = '' OR account_id = $3)
		ORDER BY clicked_at DESC, id DESC
		LIMIT $4
	`

	rows, err := r.repo.pool.Query(ctx, query, scope.OrgID, scope.ProjectID, scope.AccountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query click events: %w", err)
	}
	defer rows.Close()

	var events []model.ClickEvent
	for rows.Next() {
		event := model.ClickEvent{
			OrgID:     scope.OrgID,
			ProjectID: scope.ProjectID,
			AccountID: scope.AccountID,
		}
		if err := rows.Scan(
			&event.ID, &event.EventID, &event.LinkID, &event.Referrer, &event.UserAgent,
			&event.DeviceClass, &event.IdentityKey, &event.Timestamp, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan click event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate click events: %w", err)
	}

	reverse(events)
	return events, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// nullableString returns nil for empty strings.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
