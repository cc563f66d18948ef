package cli

import (
	"github.com/spf13/cobra"

	"github.com/baaaaaaaka/calltrace/internal/config"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

type rootOptions struct {
	configPath string
}

func Execute() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "calltrace",
		Short:         "Inspect GPTScript call-frame traces as a tree",
		SilenceErrors: false,
		SilenceUsage:  true,
		Version:       buildVersion(),
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Override config file path (default: OS user config dir)")

	cmd.AddCommand(
		newTreeCmd(opts),
		newSummaryCmd(opts),
		newForestCmd(opts),
		newViewCmd(opts),
		newRecentCmd(opts),
		newConfigCmd(opts),
	)

	return cmd
}

func buildVersion() string {
	v := version
	if commit != "" {
		v += " (" + commit + ")"
	}
	if date != "" {
		v += " " + date
	}
	return v
}

// loadConfig reads the settings file. A broken file falls back to defaults
// so read-only commands keep working.
func loadConfig(cmd *cobra.Command, root *rootOptions) (*config.Store, config.Config) {
	store, err := config.NewStore(root.configPath)
	if err != nil {
		warnf(cmd, "config unavailable: %v", err)
		return nil, config.Default()
	}
	cfg, err := store.Load()
	if err != nil {
		warnf(cmd, "config unreadable, using defaults: %v", err)
		return store, config.Default()
	}
	return store, cfg
}
