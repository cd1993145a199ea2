// Package analytics provides click event capture and processing.
package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulseboard/pulseboard/internal/metrics"
)

const (
	// StreamKey is the Redis stream for click events.
	StreamKey = "stream:click_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:click_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Device classes recognised for click events.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// ClickEventPayload is the compressed event format for Redis stream.
type ClickEventPayload struct {
	LinkID      string `json:"lid"`           // link_id
	OrgID       string `json:"org"`           // org_id
	ProjectID   string `json:"prj,omitempty"` // project_id
	AccountID   string `json:"acc,omitempty"` // account_id
	Referrer    string `json:"r,omitempty"`   // referrer (sanitized)
	UserAgent   string `json:"ua,omitempty"`  // user_agent (truncated)
	DeviceClass string `json:"dc"`            // device_class
	IdentityKey string `json:"ik"`            // identity_key
	ClickedAt   int64  `json:"t"`             // Unix milliseconds
}

// Publisher enqueues click events to Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new analytics event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "analytics.publisher"),
		metrics: recorder,
	}
}

// Publish adds a click event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event ClickEventPayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		p.metrics.IncClickEventPublished("dropped")
		return "", fmt.Errorf("xadd: %w", err)
	}

	p.metrics.IncClickEventPublished("success")
	p.logger.Debug("click event published",
		"link_id", event.LinkID,
		"org_id", event.OrgID,
		"stream_id", result,
	)
	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned.
func (p *Publisher) PublishAsync(event ClickEventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		if _, err := p.Publish(ctx, event); err != nil {
			p.logger.Warn("failed to publish click event",
				"link_id", event.LinkID,
				"error", err,
			)
		}
	}()
}

// GenerateIdentityKey derives the coarse identity used for distinct counting.
// It is SHA256(userAgent + "|" + deviceClass) truncated to 16 hex chars and
// never includes the client IP.
func GenerateIdentityKey(userAgent, deviceClass string) string {
	hash := sha256.Sum256([]byte(userAgent + "|" + deviceClass))
	return hex.EncodeToString(hash[:])[:identityKeyLength]
}

// ClassifyDevice maps a user agent onto a device class.
func ClassifyDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return DeviceUnknown
	case containsAny(ua, "bot", "crawler", "spider", "curl/", "wget/", "headless"):
		return DeviceBot
	case containsAny(ua, "ipad", "tablet", "kindle", "playbook"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return DeviceTablet
	case containsAny(ua, "mobile", "iphone", "ipod", "windows phone", "opera mini"):
		return DeviceMobile
	case containsAny(ua, "windows", "macintosh", "mac os x", "x11", "linux", "cros"):
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}

// NormalizeDeviceClass returns a known device class, classifying the user
// agent when the supplied class is empty.
func NormalizeDeviceClass(deviceClass, userAgent string) string {
	dc := strings.ToLower(strings.TrimSpace(deviceClass))
	if dc == "" {
		return ClassifyDevice(userAgent)
	}
	return dc
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// SanitizeReferrer cleans and truncates the referrer URL.
// Strips query parameters and fragments for privacy.
func SanitizeReferrer(ref string) string {
	if ref == "" {
		return ""
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""

	sanitized := parsed.String()
	if len(sanitized) > maxMetaLength {
		return sanitized[:maxMetaLength]
	}
	return sanitized
}

// TruncateUserAgent truncates user agent to max 500 chars.
func TruncateUserAgent(ua string) string {
	if len(ua) > maxMetaLength {
		return ua[:maxMetaLength]
	}
	return ua
}
