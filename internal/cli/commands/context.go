package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/leapstack-labs/chatbatch/internal/config"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Output OutputMode

	// ConfigFile and Flags let long-running commands load the
	// configuration again the same way the root command did.
	ConfigFile string
	Flags      *pflag.FlagSet
}

type commandContextKey struct{}

// WithCommandContext stores cc in ctx.
func WithCommandContext(ctx context.Context, cc *CommandContext) context.Context {
	return context.WithValue(ctx, commandContextKey{}, cc)
}

// GetCommandContext returns the CommandContext stored by the root command.
func GetCommandContext(ctx context.Context) (*CommandContext, error) {
	if ctx != nil {
		if cc, ok := ctx.Value(commandContextKey{}).(*CommandContext); ok && cc.Cfg != nil {
			return cc, nil
		}
	}
	return nil, errors.New("configuration not loaded")
}

// logger returns cc's logger, or a discarding one.
func (cc *CommandContext) logger() *slog.Logger {
	if cc.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return cc.Logger
}
