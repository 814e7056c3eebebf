package config

import "time"

// Default configuration values.
const (
	DefaultEndpoint       = "/api/v1/chat/completions"
	DefaultTimeout        = 120 * time.Second
	DefaultRetryBackoff   = 500 * time.Millisecond
	DefaultMaxConcurrency = 8
	DefaultUserCount      = 3
	DefaultExportDir      = "export"

	// MinConcurrency and MaxConcurrency bound max_concurrency.
	MinConcurrency = 1
	MaxConcurrency = 8
)

// defaultValues is the lowest configuration layer.
func defaultValues() map[string]any {
	return map[string]any{
		"endpoint":        DefaultEndpoint,
		"timeout":         DefaultTimeout.String(),
		"max_retries":     0,
		"retry_backoff":   DefaultRetryBackoff.String(),
		"max_concurrency": DefaultMaxConcurrency,
		"user_count":      DefaultUserCount,
		"export_dir":      DefaultExportDir,
		"verbose":         false,
	}
}

// DefaultHeaders are sent with every request unless the file replaces them.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
	}
}

// DefaultBody is the built-in request-body template.
func DefaultBody() map[string]any {
	return map[string]any{
		"stream": false,
	}
}

// ClampConcurrency coerces n into [MinConcurrency, MaxConcurrency].
func ClampConcurrency(n int) int {
	return min(max(n, MinConcurrency), MaxConcurrency)
}
