// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import "time"

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ClickRequest is the body of POST /api/v1/clicks.
type ClickRequest struct {
	LinkID      string     `json:"link_id"`
	UserAgent   string     `json:"user_agent,omitempty"`
	DeviceClass string     `json:"device_class,omitempty"`
	Referrer    string     `json:"referrer,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

// ClickAcceptedResponse acknowledges a queued click.
type ClickAcceptedResponse struct {
	Status      string `json:"status"`
	StreamID    string `json:"stream_id"`
	DeviceClass string `json:"device_class"`
	IdentityKey string `json:"identity_key"`
}

// PresetResponse describes one date-filter preset.
type PresetResponse struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Kind        string `json:"kind"`
	Comparison  bool   `json:"comparison"`
	Granularity string `json:"granularity"`
	Default     bool   `json:"default,omitempty"`
}

// PresetListResponse lists the available presets.
type PresetListResponse struct {
	Data []PresetResponse `json:"data"`
}
