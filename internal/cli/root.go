// Package cli provides the command-line interface for chatbatch.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/chatbatch/internal/cli/commands"
	"github.com/leapstack-labs/chatbatch/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile    string
		outputFlag string
		closeLog   = func() {}
	)

	rootCmd := &cobra.Command{
		Use:   "chatbatch",
		Short: "chatbatch - batch runner for chat-completion APIs",
		Long: `chatbatch sends every prompt of a prompt set, for every user of a user list,
to a chat-completion API once per configured model and chat mode.

Users and prompts are read from XLSX or CSV files. Every call's result is
written to its own file under the export directory, and each run ends with a
summary file.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help, completion and version
			switch cmd.Name() {
			case "help", "completion", "__complete", "version":
				return nil
			}

			mode, err := commands.ParseOutputMode(outputFlag)
			if err != nil {
				return err
			}

			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger, closer, err := newLogger(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}
			closeLog = closer

			if cfg.File != "" {
				logger.Debug("using config file", "file", cfg.File)
			}

			cmd.SetContext(commands.WithCommandContext(cmd.Context(), &commands.CommandContext{
				Cfg:        cfg,
				Logger:     logger,
				Output:     mode,
				ConfigFile: cfgFile,
				Flags:      cmd.Flags(),
			}))
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			closeLog()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./chatbatch.yaml)")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.StringVarP(&outputFlag, "output", "o", "", "Output format (auto|text|json)")

	// Configuration overrides shared by run, serve and config
	pf.String("base-url", "", "Base URL of the chat-completion API")
	pf.String("endpoint", "", "Endpoint path appended to the base URL")
	pf.Duration("timeout", 0, "Timeout of a single API call")
	pf.Int("max-retries", 0, "Retries of a call after transient failures")
	pf.Int("max-concurrency", 0, "Users served concurrently (1-8)")
	pf.String("users", "", "Users file (XLSX or CSV)")
	pf.Int("user-count", 0, "Generated users when no users file is given")
	pf.String("prompts", "", "Prompts file (XLSX or CSV)")
	pf.String("sheet", "", "Only read prompts from this sheet")
	pf.String("export-dir", "", "Export directory")
	pf.String("log-dir", "", "Also write logs to a file in this directory")
	pf.StringSlice("models", nil, "Comma-separated models")
	pf.StringSlice("chat-modes", nil, "Comma-separated chat modes")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(commands.VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	}))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for chatbatch.

Bash:
  $ source <(chatbatch completion bash)

Zsh:
  $ chatbatch completion zsh > "${fpath[1]}/_chatbatch"

Fish:
  $ chatbatch completion fish | source

PowerShell:
  PS> chatbatch completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}
