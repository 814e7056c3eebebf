package cli

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/leapstack-labs/chatbatch/internal/config"
)

// newLogger builds the process logger: text records on stderr, Debug and up
// when verbose, Info otherwise. With log_dir set, records are also appended
// to <log_dir>/batch_YYYYMMDD_HHMMSS.log. The returned func closes that file.
func newLogger(stderr io.Writer, cfg *config.Config) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	w := stderr
	closer := func() {}
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, nil, &config.Error{Source: "log_dir", Err: err}
		}
		path := filepath.Join(cfg.LogDir, "batch_"+time.Now().Format("20060102_150405")+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, &config.Error{Source: "log_dir", Err: err}
		}
		w = io.MultiWriter(stderr, f)
		closer = func() { _ = f.Close() }
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer, nil
}
