package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/chatbatch/internal/engine"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Override   string
	JSONOutput bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a batch of chat-completion calls",
		Long: `Run every prompt for every user against every configured model and chat mode.

Each user's calls run one after another; up to max_concurrency users run at
once. Results are written under the export directory, one file per call,
followed by a run summary. Failed calls are counted, they do not stop the run.
Interrupting the run stops new calls from starting and waits for calls in
flight.`,
		Example: `  # Run with the users and prompts named in chatbatch.yaml
  chatbatch run

  # Pick input files and models on the command line
  chatbatch run --users users.xlsx --prompts prompts.csv --models gpt-4o,qwen2

  # Override request-body fields for every call
  chatbatch run --override '{"model_name":"x","temperature":0.6}'

  # Print the summary as JSON
  chatbatch run --json`,
		Aliases: []string{"batch"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Override, "override", "", "JSON object merged over every request body")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Print the summary as JSON")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cc, err := GetCommandContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(engine.Config{Logger: cc.logger()})
	summary, err := eng.Run(ctx, cc.Cfg, engine.Request{Override: opts.Override})
	if err != nil {
		return err
	}

	mode := cc.Output
	if opts.JSONOutput {
		mode = OutputJSON
	}
	return renderSummary(cmd.OutOrStdout(), mode, summary)
}
