//go:build integration

package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulseboard/pulseboard/internal/model"
	"github.com/pulseboard/pulseboard/internal/testutil"
)

func TestIntegrationContentItems_ListByScope(t *testing.T) {
	ctx, repo := newRepositoryTestEnv(t)
	items := NewContentItemRepository(repo)

	scope := model.Scope{OrgID: testutil.UniqueID("org"), ProjectID: "prj-1"}
	other := model.Scope{OrgID: scope.OrgID, ProjectID: "prj-2"}
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	first := testutil.NewContentItem(testutil.UniqueID("item"), "alice", base,
		testutil.NewSnapshot(base, model.Counters{Views: 10}, true),
		testutil.NewSnapshot(base.Add(time.Hour), model.Counters{Views: 30}, false),
		testutil.NewSnapshot(base.Add(time.Hour), model.Counters{Views: 35}, false),
	)
	second := testutil.NewContentItem(testutil.UniqueID("item"), "bob", base.Add(24*time.Hour))

	if err := items.Save(ctx, scope, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := items.Save(ctx, other, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, err := items.ListByScope(ctx, scope)
	if err != nil {
		t.Fatalf("ListByScope: %v", err)
	}
	if len(got) != 1 || got[0].ID != first.ID {
		t.Fatalf("ListByScope = %+v, want only %s", got, first.ID)
	}
	if len(got[0].Snapshots) != 3 {
		t.Fatalf("snapshots = %d, want 3", len(got[0].Snapshots))
	}
	if got[0].Snapshots[2].Views != 35 {
		t.Errorf("last snapshot views = %d, want 35 (ingestion order)", got[0].Snapshots[2].Views)
	}
	if !got[0].Snapshots[0].IsInitial {
		t.Error("first snapshot should keep its initial flag")
	}

	all, err := items.ListByScope(ctx, model.Scope{OrgID: scope.OrgID})
	if err != nil {
		t.Fatalf("ListByScope org: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("org-wide items = %d, want 2", len(all))
	}
}

func TestIntegrationClickEvents_BulkInsertAndListRecent(t *testing.T) {
	ctx, repo := newRepositoryTestEnv(t)
	clicks := NewClickEventRepository(repo)

	scope := model.Scope{OrgID: testutil.UniqueID("org")}
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	events := make([]*model.ClickEvent, 0, 3)
	for i := 0; i < 3; i++ {
		e := testutil.NewClickEvent(scope, "link-1", base.Add(time.Duration(i)*time.Minute))
		events = append(events, &e)
	}

	if err := clicks.BulkInsert(ctx, events); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	// Replays are ignored.
	if err := clicks.BulkInsert(ctx, events[:1]); err != nil {
		t.Fatalf("BulkInsert replay: %v", err)
	}

	got, err := clicks.ListRecent(ctx, scope, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListRecent = %d events, want 2", len(got))
	}
	if !got[0].Timestamp.Equal(events[1].Timestamp) || !got[1].Timestamp.Equal(events[2].Timestamp) {
		t.Errorf("ListRecent should return the latest events oldest first, got %s, %s",
			got[0].Timestamp, got[1].Timestamp)
	}
}

func TestIntegrationMigrate_Idempotent(t *testing.T) {
	ctx, repo := newRepositoryTestEnv(t)

	if err := repo.Migrate(ctx, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("second migrate should not fail: %v", err)
	}
}

func newRepositoryTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, pool); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, NewWithPool(pool)
}
