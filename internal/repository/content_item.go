package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pulseboard/pulseboard/internal/model"
)

// ContentItemRepository provides database access for content items and
// their counter snapshots.
type ContentItemRepository struct {
	repo *Repository
}

// NewContentItemRepository creates a new ContentItemRepository.
func NewContentItemRepository(repo *Repository) *ContentItemRepository {
	return &ContentItemRepository{repo: repo}
}

// ListByScope returns every content item visible to scope with all of its
// snapshots in ingestion order. Empty project or account ids match all.
func (r *ContentItemRepository) ListByScope(ctx context.Context, scope model.Scope) ([]model.ContentItem, error) {
	query := `
		SELECT id, creator_handle, platform, created_at,
			views, likes, comments, shares, saves
		FROM content_items
		WHERE org_id = $1
			AND ($2 = '' OR project_id = $2)
			AND ($3 = '' OR account_id = $3)
		ORDER BY created_at, id
	`

	rows, err := r.repo.pool.Query(ctx, query, scope.OrgID, scope.ProjectID, scope.AccountID)
	if err != nil {
		return nil, fmt.Errorf("query content items: %w", err)
	}
	defer rows.Close()

	var items []model.ContentItem
	for rows.Next() {
		var item model.ContentItem
		var platform string
		if err := rows.Scan(
			&item.ID, &item.CreatorHandle, &platform, &item.CreatedAt,
			&item.Current.Views, &item.Current.Likes, &item.Current.Comments,
			&item.Current.Shares, &item.Current.Saves,
		); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		item.Platform = model.Platform(platform)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content items: %w", err)
	}
	if len(items) == 0 {
		return items, nil
	}

	snaps, err := r.listSnapshots(ctx, itemIDs(items))
	if err != nil {
		return nil, err
	}

	return attachSnapshots(items, snaps), nil
}

func (r *ContentItemRepository) listSnapshots(ctx context.Context, ids []string) ([]model.Snapshot, error) {
	query := `
		SELECT item_id, captured_at, is_initial,
			views, likes, comments, shares, saves
		FROM content_snapshots
		WHERE item_id = ANY($1)
		ORDER BY id
	`

	rows, err := r.repo.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		var s model.Snapshot
		if err := rows.Scan(
			&s.ItemID, &s.CapturedAt, &s.IsInitial,
			&s.Views, &s.Likes, &s.Comments, &s.Shares, &s.Saves,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return snaps, nil
}

// Save upserts an item under scope and appends its snapshots.
func (r *ContentItemRepository) Save(ctx context.Context, scope model.Scope, item model.ContentItem) error {
	batch := &pgx.Batch{}

	batch.Queue(`
		INSERT INTO content_items (
			id, org_id, project_id, account_id, creator_handle, platform,
			views, likes, comments, shares, saves, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (id) DO UPDATE SET
			views = EXCLUDED.views,
			likes = EXCLUDED.likes,
			comments = EXCLUDED.comments,
			shares = EXCLUDED.shares,
			saves = EXCLUDED.saves,
			updated_at = NOW()
	`,
		item.ID, scope.OrgID, scope.ProjectID, scope.AccountID,
		item.CreatorHandle, string(item.Platform),
		item.Current.Views, item.Current.Likes, item.Current.Comments,
		item.Current.Shares, item.Current.Saves, item.CreatedAt,
	)

	for _, s := range item.Snapshots {
		batch.Queue(`
			INSERT INTO content_snapshots (
				item_id, captured_at, is_initial, views, likes, comments, shares, saves
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			item.ID, s.CapturedAt, s.IsInitial,
			s.Views, s.Likes, s.Comments, s.Shares, s.Saves,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save content item %s statement %d: %w", item.ID, i, err)
		}
	}

	return nil
}

func itemIDs(items []model.ContentItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

// attachSnapshots groups snapshots onto their items, keeping the order they
// arrive in. Snapshots of unknown items are dropped.
func attachSnapshots(items []model.ContentItem, snaps []model.Snapshot) []model.ContentItem {
	index := make(map[string]int, len(items))
	for i, item := range items {
		index[item.ID] = i
	}

	for _, s := range snaps {
		i, ok := index[s.ItemID]
		if !ok {
			continue
		}
		items[i].Snapshots = append(items[i].Snapshots, s)
	}

	return items
}
