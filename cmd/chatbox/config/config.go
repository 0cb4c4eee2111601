// Package configcmder provides the config command for managing persistent
// chatbox configuration stored in the .chatbox/ directory.
package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatbox/pkg/cliui"
	"github.com/papercomputeco/chatbox/pkg/config"
)

const configLongDesc string = `Manage persistent chatbox configuration.

Configuration is stored as config.toml in the .chatbox/ directory and provides
default values for command flags. CLI flags and environment variables always
take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  proxy.listen, proxy.metrics,
  backend.chat_url, backend.base_url, backend.mode,
  backend.timeout, backend.max_retries, backend.retry_backoff,
  log.format, log.file

Use subcommands to get, set, or list configuration values:
  chatbox config set <key> <value>    Set a configuration value
  chatbox config get <key>            Get a configuration value
  chatbox config list                 List all configuration values

Examples:
  chatbox config set backend.base_url http://ai:8000
  chatbox config set backend.timeout 10s
  chatbox config get backend.mode
  chatbox config list`

const configShortDesc string = "Manage persistent chatbox configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
