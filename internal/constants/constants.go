// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Recognition constants
const (
	// DefaultWindowDuration is how long one observation window collects frames
	DefaultWindowDuration = 20 * time.Second

	// DefaultMinFrames is the minimum count an identity needs to be finalized
	DefaultMinFrames = 3

	// DefaultTolerance is the maximum cosine distance (exclusive) for a face match.
	// Lower values = stricter matching
	DefaultTolerance = 0.4

	// DefaultFrameInterval paces frames read from a recorded stream
	DefaultFrameInterval = 100 * time.Millisecond
)

// Notification constants
const (
	// EventChannelBuffer is the per-listener buffer of the event broadcaster
	EventChannelBuffer = 100

	// DefaultRedisChannel is the pub/sub channel punch events are published to
	DefaultRedisChannel = "attendance:punches"

	// NotifyTimeout bounds a single external notification
	NotifyTimeout = 2 * time.Second

	// NotifyQueueSize is how many events wait for Redis before new ones are dropped
	NotifyQueueSize = 256
)

// Retry constants
const (
	// ConflictRetryDelay is the first backoff delay after a lost compare-and-swap
	ConflictRetryDelay = 10 * time.Millisecond

	// InitRetryAttempts is how often the daily initializer is attempted at startup
	InitRetryAttempts = 5

	// InitRetryDelay is the first backoff delay of the daily initializer
	InitRetryDelay = 500 * time.Millisecond

	// InitRetryMaxDelay caps the daily initializer backoff
	InitRetryMaxDelay = 10 * time.Second

	// DayRolloverCheckInterval is how often a running server checks for a new calendar day
	DayRolloverCheckInterval = time.Minute
)

// API constants
const (
	// MaxRecognitionFrames bounds the frames accepted by one recognition request
	MaxRecognitionFrames = 10000

	// MaxRequestBodyBytes bounds JSON request bodies
	MaxRequestBodyBytes = 8 << 20

	// SSEKeepAlive is the interval of SSE comment pings
	SSEKeepAlive = 30 * time.Second
)
