package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/chatbatch/internal/config"
	"github.com/leapstack-labs/chatbatch/internal/engine"
	"github.com/leapstack-labs/chatbatch/internal/server"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Addr  string
	Watch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP run trigger",
		Long: `Start an HTTP server that runs batches on request.

Endpoints:
  POST /api/run      start a run; optional JSON body {users_file, prompts_file, override}
  POST /api/run_batch alias of /api/run
  GET  /api/config   effective configuration, secrets masked
  GET  /healthz      liveness

Only one run executes at a time; a second request gets 409 Conflict.
The configuration is loaded for every run. With --watch it is loaded once and
reloaded whenever the config file changes; a run keeps the configuration it
started with.`,
		Example: `  chatbatch serve --addr :8090
  curl -X POST localhost:8090/api/run -d '{"override":{"temperature":0.6}}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", server.DefaultAddr, "Listen address")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Reload the config file when it changes")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cc, err := GetCommandContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configFile := cc.Cfg.File
	srv := server.New(server.Config{
		Runner: engine.New(engine.Config{Logger: cc.logger()}),
		LoadConfig: func() (*config.Config, error) {
			return config.Load(cc.ConfigFile, cc.Flags)
		},
		ConfigFile: configFile,
		Addr:       opts.Addr,
		Watch:      opts.Watch,
		Logger:     cc.logger(),
	})
	return srv.Serve(ctx)
}
