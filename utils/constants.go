package utils

import "time"

// ContextKey is the type used for request-scoped context values
type ContextKey string

// Context keys set by handlers when building a request context
const (
	RequestIDKey  ContextKey = "request_id"
	UserAgentKey  ContextKey = "user_agent"
	IPAddressKey  ContextKey = "ip_address"
	EndpointKey   ContextKey = "endpoint"
	TimeoutKey    ContextKey = "timeout"
	CancelFuncKey ContextKey = "cancel_func"
)

// Redirect and tracking defaults
const (
	// DefaultShortCodeLength is used when no length is configured
	DefaultShortCodeLength = 5

	// MinShortCodeLength is the smallest code length the generator accepts
	MinShortCodeLength = 4

	// DefaultRedirectCacheTTL is the redirect decision cache lifetime
	DefaultRedirectCacheTTL = 30 * time.Second

	// DefaultVisitsCountSlots is the number of sharded counter slots per short URL
	DefaultVisitsCountSlots = 16
)
