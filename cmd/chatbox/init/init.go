// Package initcmder provides the init command for creating a .chatbox/
// directory seeded with a config preset.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatbox/pkg/cliui"
	"github.com/papercomputeco/chatbox/pkg/config"
	"github.com/papercomputeco/chatbox/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .chatbox/ directory in the current working directory.

Creates a local .chatbox/ directory that takes precedence over the default
~/.chatbox/ directory, and writes a config.toml from the chosen preset.
An existing config.toml is left in place unless --force is given.

Presets:
  development   AI service on http://127.0.0.1:8000, pretty logs
  production    AI service on http://ai:8000, JSON logs

Examples:
  chatbox init
  chatbox init --preset production
  chatbox init --config-dir /etc/chatbox --preset production --force`

const initShortDesc string = "Initialize a local .chatbox/ directory"

type initCommander struct {
	preset string
	force  bool
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.OutOrStdout(), configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.preset, "preset", "p", "development",
		fmt.Sprintf("Config preset (%s)", strings.Join(config.ValidPresetNames(), ", ")))
	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Overwrite an existing config.toml")

	return cmd
}

func (c *initCommander) run(w io.Writer, configDir string) error {
	cfg, err := config.PresetConfig(c.preset)
	if err != nil {
		return err
	}

	dir, err := dotdir.NewManager().Init(configDir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(path); err == nil && !c.force {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
		return nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	msg := fmt.Sprintf("Writing %s preset to %s", c.preset, path)
	return cliui.Step(w, msg, func() error {
		return cfger.SaveConfig(cfg)
	})
}
