package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/model"
)

// ConsumerGroup is the stream consumer group shared by all click workers.
const ConsumerGroup = "click_ingest_workers"

// deadLetterMaxLen caps the dead-letter stream.
const deadLetterMaxLen = 10000

// Repository persists click events. BulkInsert must skip events whose
// EventID is already stored so that redelivered messages are harmless.
type Repository interface {
	BulkInsert(ctx context.Context, events []*model.ClickEvent) error
}

// WorkerConfig tunes a Worker. Zero fields take the defaults below.
type WorkerConfig struct {
	ConsumerID    string
	BatchSize     int           // default 500
	Block         time.Duration // XREADGROUP block, default 5s
	MaxAttempts   int           // insert attempts per batch, default 3
	RetryBackoff  time.Duration // doubled per attempt, default 1s
	ClaimEvery    time.Duration // default 10s
	ClaimIdle     time.Duration // default 30s
	DepthEvery    time.Duration // queue depth refresh, default 5s
	ErrorCooldown time.Duration // pause after a failed step, default 1s
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.ConsumerID == "" {
		c.ConsumerID = NewConsumerID()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.ClaimEvery <= 0 {
		c.ClaimEvery = 10 * time.Second
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = 30 * time.Second
	}
	if c.DepthEvery <= 0 {
		c.DepthEvery = 5 * time.Second
	}
	if c.ErrorCooldown <= 0 {
		c.ErrorCooldown = time.Second
	}
	return c
}

// NewConsumerID names this process inside the consumer group.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "pulseboard"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), strings.ToLower(ulid.Make().String()))
}

// Worker drains the click stream into the click event store. Messages are
// acknowledged only after their batch is stored or dead-lettered, so a
// crash replays them through XAUTOCLAIM.
type Worker struct {
	redis   *redis.Client
	repo    Repository
	logger  *slog.Logger
	metrics metrics.Recorder
	cfg     WorkerConfig

	claimCursor string
	lastClaim   time.Time
	lastDepth   time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// batch is one read from the stream. ids covers every message read,
// including those that were dead-lettered instead of decoded.
type batch struct {
	ids    []string
	events []*model.ClickEvent
}

// poison describes why a message cannot be stored.
type poison struct {
	reason string
	detail string
}

// NewWorker creates a click worker.
func NewWorker(client *redis.Client, repo Repository, logger *slog.Logger, recorder metrics.Recorder, cfg WorkerConfig) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	cfg = cfg.withDefaults()
	return &Worker{
		redis:       client,
		repo:        repo,
		logger:      logger.With("component", "analytics.worker", "consumer_id", cfg.ConsumerID),
		metrics:     recorder,
		cfg:         cfg,
		claimCursor: "0-0",
	}
}

// Run consumes until ctx is cancelled or Shutdown is called. A Worker can
// only be run once.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped != nil {
		w.mu.Unlock()
		return errors.New("click worker already started")
	}
	w.stopped = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.stopped)

	if err := w.ensureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}
	w.logger.Info("click worker started", "batch_size", w.cfg.BatchSize)

	for ctx.Err() == nil {
		err := w.step(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		w.logger.Error("click worker step failed", "error", err)
		if !sleepCtx(ctx, w.cfg.ErrorCooldown) {
			break
		}
	}

	w.logger.Info("click worker stopped")
	return nil
}

// Shutdown stops a running worker and waits for the current batch to finish
// or for ctx to expire.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	cancel, stopped := w.cancel, w.stopped
	w.mu.Unlock()

	if stopped == nil {
		return nil
	}
	cancel()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		w.logger.Warn("click worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) ensureGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

// step handles one batch: stale pending messages first, new messages
// otherwise.
func (w *Worker) step(ctx context.Context) error {
	now := time.Now()
	if due(&w.lastDepth, w.cfg.DepthEvery, now) {
		w.refreshDepth(ctx)
	}

	var msgs []redis.XMessage
	if due(&w.lastClaim, w.cfg.ClaimEvery, now) {
		claimed, err := w.claimStale(ctx)
		if err != nil {
			w.logger.Warn("failed to claim stale messages", "error", err)
		}
		msgs = claimed
	}
	if len(msgs) == 0 {
		read, err := w.read(ctx)
		if err != nil {
			return err
		}
		msgs = read
	}
	if len(msgs) == 0 {
		return nil
	}

	b := w.decode(ctx, msgs)
	if len(b.events) > 0 {
		if err := w.store(ctx, b.events); err != nil {
			// Left pending for redelivery.
			return err
		}
	}
	return w.ack(ctx, b.ids)
}

func (w *Worker) read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.cfg.ConsumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.cfg.BatchSize),
		Block:    w.cfg.Block,
	}).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("xreadgroup: %w", err)
	case len(streams) == 0:
		return nil, nil
	}
	return streams[0].Messages, nil
}

func (w *Worker) claimStale(ctx context.Context) ([]redis.XMessage, error) {
	msgs, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.cfg.ConsumerID,
		MinIdle:  w.cfg.ClaimIdle,
		Start:    w.claimCursor,
		Count:    int64(w.cfg.BatchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		w.claimCursor = next
	}
	if len(msgs) > 0 {
		w.logger.Info("claimed stale click messages", "count", len(msgs))
	}
	return msgs, nil
}

func (w *Worker) refreshDepth(ctx context.Context) {
	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetClickQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

// decode turns stream messages into click events. Undecodable messages are
// dead-lettered and still acknowledged with the rest of the batch.
func (w *Worker) decode(ctx context.Context, msgs []redis.XMessage) batch {
	b := batch{
		ids:    make([]string, 0, len(msgs)),
		events: make([]*model.ClickEvent, 0, len(msgs)),
	}
	for _, msg := range msgs {
		b.ids = append(b.ids, msg.ID)
		event, bad := decodeMessage(msg)
		if bad != nil {
			w.deadLetter(ctx, msg, *bad)
			continue
		}
		b.events = append(b.events, event)
	}
	return b
}

func decodeMessage(msg redis.XMessage) (*model.ClickEvent, *poison) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, &poison{"invalid_format", "payload field missing or not a string"}
	}

	var p ClickEventPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, &poison{"unmarshal_error", err.Error()}
	}
	if err := ValidateClickEventPayload(p); err != nil {
		return nil, &poison{"validation_error", err.Error()}
	}

	return &model.ClickEvent{
		ID:          ulid.Make().String(),
		EventID:     msg.ID,
		OrgID:       p.OrgID,
		ProjectID:   p.ProjectID,
		AccountID:   p.AccountID,
		LinkID:      p.LinkID,
		Referrer:    p.Referrer,
		UserAgent:   p.UserAgent,
		DeviceClass: p.DeviceClass,
		IdentityKey: p.IdentityKey,
		Timestamp:   time.UnixMilli(p.ClickedAt).UTC(),
	}, nil
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, why poison) {
	w.logger.Warn("dead-lettering click message",
		"message_id", msg.ID,
		"reason", why.reason,
		"detail", why.detail,
	)

	raw, _ := msg.Values["payload"].(string)
	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		Values: map[string]any{
			"original_id":      msg.ID,
			"original_stream":  StreamKey,
			"reason":           why.reason,
			"detail":           why.detail,
			"payload":          raw,
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("failed to write dead-letter entry", "message_id", msg.ID, "error", err)
	}
	w.metrics.IncClickEventProcessed("dead_lettered")
}

// store inserts events, retrying with exponential backoff. The last
// attempt's error is returned.
func (w *Worker) store(ctx context.Context, events []*model.ClickEvent) error {
	var err error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		if err = w.repo.BulkInsert(ctx, events); err == nil {
			w.observe(events, time.Since(start))
			return nil
		}
		if attempt == w.cfg.MaxAttempts {
			break
		}

		backoff := w.cfg.RetryBackoff << (attempt - 1)
		w.logger.Warn("click batch insert failed, retrying",
			"attempt", attempt,
			"batch_size", len(events),
			"backoff", backoff.String(),
			"error", err,
		)
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
	}

	w.logger.Error("click batch left pending",
		"batch_size", len(events),
		"first_event_id", events[0].EventID,
		"error", err,
	)
	for range events {
		w.metrics.IncClickEventProcessed("failed")
	}
	return fmt.Errorf("bulk insert: %w", err)
}

func (w *Worker) observe(events []*model.ClickEvent, took time.Duration) {
	w.logger.Debug("click batch stored", "events", len(events), "duration", took.String())
	w.metrics.ObserveClickBatchSize(len(events))
	w.metrics.ObserveClickBatchDuration(took)
	now := time.Now()
	for _, e := range events {
		w.metrics.IncClickEventProcessed("success")
		w.metrics.ObserveClickIngestLag(now.Sub(e.Timestamp))
	}
}

func (w *Worker) ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// due reports whether every has elapsed since *last and, if so, moves
// *last to now.
func due(last *time.Time, every time.Duration, now time.Time) bool {
	if !last.IsZero() && now.Sub(*last) < every {
		return false
	}
	*last = now
	return true
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
