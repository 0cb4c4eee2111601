// Package chatboxcmder
package chatboxcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/chatbox/cmd/chatbox/config"
	initcmder "github.com/papercomputeco/chatbox/cmd/chatbox/init"
	servecmder "github.com/papercomputeco/chatbox/cmd/chatbox/serve"
	versioncmder "github.com/papercomputeco/chatbox/cmd/version"
)

const chatboxLongDesc string = `Chatbox is a validating proxy in front of an AI chat service.

Run the proxy using:
  chatbox serve                Run the proxy server
  chatbox serve --watch-config Reload the backend address when config.toml changes

Manage configuration using:
  chatbox init                 Create a .chatbox/ directory with a config preset
  chatbox config list          List all configuration values`

const chatboxShortDesc string = "Chatbox - AI chat proxy"

func NewChatboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatbox",
		Short:         chatboxShortDesc,
		Long:          chatboxLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .chatbox/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
