// Package server exposes batch runs over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/chatbatch/internal/config"
	"github.com/leapstack-labs/chatbatch/internal/engine"
	"github.com/leapstack-labs/chatbatch/pkg/core"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8090"

// Runner executes one batch run.
type Runner interface {
	Run(ctx context.Context, cfg *config.Config, req engine.Request) (*core.RunSummary, error)
}

// Server is the HTTP trigger for batch runs. At most one run executes at a
// time.
type Server struct {
	runner     Runner
	load       func() (*config.Config, error)
	configFile string
	addr       string
	watch      bool
	logger     *slog.Logger

	busy atomic.Bool

	// ctx is the parent of every run; cancelled when Serve stops.
	ctx context.Context

	mu     sync.Mutex
	cached *config.Config
}

// Config holds configuration for the server.
type Config struct {
	Runner Runner
	// LoadConfig reads the configuration. It is called once per run, or
	// once per change of ConfigFile when Watch is set.
	LoadConfig func() (*config.Config, error)
	// ConfigFile is the file watched for changes.
	ConfigFile string
	Addr       string
	Watch      bool
	Logger     *slog.Logger
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		runner:     cfg.Runner,
		load:       cfg.LoadConfig,
		configFile: cfg.ConfigFile,
		addr:       addr,
		watch:      cfg.Watch && cfg.ConfigFile != "",
		logger:     logger,
		ctx:        context.Background(),
	}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/config", s.handleConfig)
	r.Post("/api/run", s.handleRun)
	r.Post("/api/run_batch", s.handleRun)
	return r
}

// Serve listens on the configured address and blocks until ctx is
// cancelled. A run in progress at shutdown stops dispatching new jobs and
// drains before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)
	s.ctx = egctx

	s.logger.Info("starting server", "addr", ln.Addr().String(), "watch", s.watch)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch {
		eg.Go(func() error {
			return s.watchConfig(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// snapshot returns the configuration for one run. With watching enabled the
// last good load is reused until the file changes.
func (s *Server) snapshot() (*config.Config, error) {
	if s.load == nil {
		return nil, errors.New("no configuration loader")
	}
	if !s.watch {
		return s.load()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		c := *s.cached
		return &c, nil
	}
	cfg, err := s.load()
	if err != nil {
		return nil, err
	}
	s.cached = cfg
	c := *cfg
	return &c, nil
}

// reload drops the cached configuration and loads it again.
func (s *Server) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil

	cfg, err := s.load()
	if err != nil {
		s.logger.Error("config reload failed", "file", s.configFile, "error", err)
		return
	}
	s.cached = cfg
	s.logger.Info("config reloaded", "file", s.configFile)
}

// watchConfig reloads the configuration when its file is written or
// replaced. Runs already started keep the configuration they began with.
func (s *Server) watchConfig(ctx context.Context) error {
	watcher, abs, err := s.newConfigWatcher()
	if err != nil {
		s.logger.Error("failed to watch config file", "file", s.configFile, "error", err)
		<-ctx.Done()
		return nil
	}
	return s.watchLoop(ctx, watcher, abs)
}

// newConfigWatcher registers a watch on the directory of the config file
// and returns it with the file's absolute path.
func (s *Server) newConfigWatcher() (*fsnotify.Watcher, string, error) {
	abs, err := filepath.Abs(s.configFile)
	if err != nil {
		return nil, "", err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, "", err
	}
	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, "", err
	}
	return watcher, abs, nil
}

// watchLoop reloads the configuration on events for abs until ctx is done.
// It closes watcher on return.
func (s *Server) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, abs string) error {
	defer func() { _ = watcher.Close() }()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, s.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}
