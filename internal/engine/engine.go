// Package engine runs batches of chat-completion calls.
//
// A run loads users and prompts, resolves the configuration, expands the
// job set and dispatches it on a bounded pool with one sequential worker per
// user. Results are exported as they arrive by a single aggregator that also
// owns the run counters, and the run ends with a summary file.
package engine

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Engine executes runs. One Engine may execute many runs, sequentially or
// concurrently.
type Engine struct {
	logger     *slog.Logger
	httpClient *http.Client
	now        func() time.Time
	newUID     func() string
}

// Config holds engine configuration.
type Config struct {
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// HTTPClient is used for upstream calls (optional)
	HTTPClient *http.Client
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		logger:     logger,
		httpClient: cfg.HTTPClient,
		now:        time.Now,
		newUID:     uuid.NewString,
	}
}
