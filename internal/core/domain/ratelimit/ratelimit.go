package ratelimit

import (
	"math"
	"time"
)

// Class names an independently limited operation class.
type Class string

const (
	ClassGeneral      Class = "general"
	ClassInvalidation Class = "invalidation"
	ClassWarming      Class = "warming"
)

// CountMode decides which requests are recorded against the quota.
type CountMode string

const (
	CountAll        CountMode = "all"
	CountSuccessful CountMode = "successful"
	CountFailed     CountMode = "failed"
)

func (m CountMode) Valid() bool {
	switch m {
	case CountAll, CountSuccessful, CountFailed:
		return true
	default:
		return false
	}
}

// Window is the persisted fixed-window state for one client.
type Window struct {
	Count     int       `msgpack:"c" json:"count"`
	Limit     int       `msgpack:"l" json:"limit"`
	Start     time.Time `msgpack:"s" json:"window_start"`
	ResetAt   time.Time `msgpack:"r" json:"reset_at"`
	WindowDur int64     `msgpack:"w" json:"window_ms"`
}

// Expired reports whether the window must be replaced at now.
func (w *Window) Expired(now time.Time) bool {
	return !now.Before(w.ResetAt)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	// RetryAfter is only set on rejection.
	RetryAfter time.Duration `json:"retry_after"`
	// FailOpen marks a decision taken while the window store was unavailable.
	FailOpen bool `json:"fail_open,omitempty"`
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// ClientIdentity carries every signal that can identify a caller.
type ClientIdentity struct {
	APIKey        string
	UserID        string
	RemoteAddress string
}
