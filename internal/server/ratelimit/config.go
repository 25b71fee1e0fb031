package ratelimit

import (
	"net/http"
	"time"

	"github.com/jonathan/closing-engine/internal/config"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	IdleTimeout     time.Duration // buckets unused for this long are dropped
	Whitelist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// NewConfig builds the limiter configuration from the engine settings.
// Batch execution gets its own hourly tier; every other route shares the
// per-minute default.
func NewConfig(s config.RateLimitConfig) *Config {
	whitelist := make(map[string]bool, len(s.Whitelist))
	for _, ip := range s.Whitelist {
		whitelist[ip] = true
	}

	var endpoints []EndpointConfig
	if s.ExecutePerHour > 0 {
		endpoints = append(endpoints, EndpointConfig{
			Path:   "/processes/execute",
			Method: http.MethodPost,
			Limit:  s.ExecutePerHour,
			Window: time.Hour,
			Burst:  max(1, s.ExecutePerHour/10),
		})
	}
	// Login is cheap to call but expensive to brute force.
	endpoints = append(endpoints, EndpointConfig{
		Path:   "/auth/login",
		Method: http.MethodPost,
		Limit:  20,
		Window: time.Minute,
		Burst:  5,
	})

	return &Config{
		Enabled:         s.Enabled,
		DefaultLimit:    s.ReadPerMinute,
		DefaultWindow:   time.Minute,
		IdleTimeout:     s.IdleTimeout,
		Whitelist:       whitelist,
		EndpointConfigs: endpoints,
	}
}
