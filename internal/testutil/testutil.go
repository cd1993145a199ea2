package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pulseboard/pulseboard/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema applies every down migration newest first, then every up
// migration oldest first.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}
	dir := filepath.Join(root, "internal", "repository", "migrations")

	downs, err := migrationFiles(dir, ".down.sql")
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))

	ups, err := migrationFiles(dir, ".up.sql")
	if err != nil {
		return err
	}

	for _, path := range append(downs, ups...) {
		sql, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", filepath.Base(path), err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", filepath.Base(path), err)
		}
	}

	return nil
}

func migrationFiles(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewContentItem creates a TikTok item with the given snapshots. The live
// counters are copied from the last snapshot.
func NewContentItem(id, creator string, createdAt time.Time, snaps ...model.Snapshot) model.ContentItem {
	item := model.ContentItem{
		ID:            id,
		CreatorHandle: creator,
		Platform:      model.PlatformTikTok,
		CreatedAt:     createdAt,
		Snapshots:     snaps,
	}
	for i := range item.Snapshots {
		item.Snapshots[i].ItemID = id
	}
	if len(snaps) > 0 {
		item.Current = snaps[len(snaps)-1].Counters
	}
	return item
}

// NewSnapshot creates a snapshot captured at t.
func NewSnapshot(t time.Time, counters model.Counters, initial bool) model.Snapshot {
	return model.Snapshot{CapturedAt: t, IsInitial: initial, Counters: counters}
}

// NewClickEvent creates a desktop click on linkID under scope.
func NewClickEvent(scope model.Scope, linkID string, ts time.Time) model.ClickEvent {
	sum := sha256.Sum256([]byte("test-agent|desktop"))
	return model.ClickEvent{
		ID:          UniqueID("evt"),
		EventID:     UniqueID("stream"),
		OrgID:       scope.OrgID,
		ProjectID:   scope.ProjectID,
		AccountID:   scope.AccountID,
		LinkID:      linkID,
		UserAgent:   "test-agent",
		DeviceClass: "desktop",
		IdentityKey: hex.EncodeToString(sum[:])[:16],
		Timestamp:   ts,
	}
}

var idSeq atomic.Int64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idSeq.Add(1))
}
