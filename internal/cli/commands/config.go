package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/chatbatch/internal/config"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Print the configuration after merging defaults, the config file,
CHATBATCH_* environment variables and command-line flags.

Header values that look like credentials are masked.`,
		Example: `  chatbatch config
  chatbatch config -o json
  chatbatch config --validate`,
		Aliases: []string{"show-config"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := GetCommandContext(cmd.Context())
			if err != nil {
				return err
			}

			var url string
			rc, err := config.Resolve(cc.Cfg, "")
			switch {
			case err == nil:
				url = rc.URL
			case validate:
				return err
			default:
				cc.logger().Warn("configuration is incomplete", "error", err)
			}
			return renderConfig(cmd.OutOrStdout(), cc.Output, cc.Cfg, url)
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "Fail if the configuration cannot be resolved")
	return cmd
}
