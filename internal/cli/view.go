package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/baaaaaaaka/calltrace/internal/callframe"
	"github.com/baaaaaaaka/calltrace/internal/config"
	"github.com/baaaaaaaka/calltrace/internal/tui"
)

var runViewer = tui.Run

var isInteractive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func newViewCmd(root *rootOptions) *cobra.Command {
	var follow bool
	var interval time.Duration
	var expand bool
	var sentinel string

	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "Browse a trace in a terminal UI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isInteractive() {
				return errors.New("view needs an interactive terminal; use `calltrace tree` instead")
			}
			store, cfg := loadConfig(cmd, root)
			if cmd.Flags().Changed("sentinel") {
				if err := cfg.Set("sentinelPolicy", sentinel); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("expand") {
				cfg.ExpandAll = expand
			}
			if !cmd.Flags().Changed("interval") {
				interval = cfg.Interval()
			} else if interval < config.MinRefreshInterval {
				return fmt.Errorf("--interval must be at least %s, got %s", config.MinRefreshInterval, interval)
			}

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err != nil {
				return err
			}
			return runView(cmd, store, cfg, path, follow, interval)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Reload the trace whenever the file changes")
	cmd.Flags().DurationVar(&interval, "interval", config.DefaultRefreshInterval, "Polling interval for --follow")
	cmd.Flags().BoolVar(&expand, "expand", false, "Start with every section expanded (default from config)")
	cmd.Flags().StringVar(&sentinel, "sentinel", "", "Gateway provider frames to drop: all|finished (default from config)")
	return cmd
}

func runView(cmd *cobra.Command, store *config.Store, cfg config.Config, path string, follow bool, interval time.Duration) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stats, err := runViewer(ctx, tui.Options{
		Source: path,
		Load: func(context.Context) (callframe.LoadResult, error) {
			return callframe.LoadFile(path)
		},
		Changed: func() (time.Time, error) {
			info, err := os.Stat(path)
			if err != nil {
				return time.Time{}, err
			}
			return info.ModTime(), nil
		},
		Follow:       follow,
		Interval:     interval,
		Policy:       cfg.Policy(),
		ExpandAll:    cfg.ExpandAll,
		PreviewChars: cfg.Preview(),
		Version:      version,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if store != nil {
		if uerr := store.Update(func(c *config.Config) error {
			c.RecordRecent(config.RecentTrace{Path: path, Frames: stats.Frames, OpenedAt: time.Now()}, config.DefaultMaxRecent)
			return nil
		}); uerr != nil {
			warnf(cmd, "record recent trace: %v", uerr)
		}
	}
	return nil
}

func newRecentCmd(root *rootOptions) *cobra.Command {
	var clearAll bool
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List traces recently opened in the viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := config.NewStore(root.configPath)
			if err != nil {
				return err
			}
			if clearAll {
				return store.Update(func(c *config.Config) error {
					c.Recent = nil
					return nil
				})
			}
			cfg, err := store.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(cfg.Recent) == 0 {
				_, _ = fmt.Fprintln(out, "No recent traces.")
				return nil
			}
			for _, r := range cfg.Recent {
				_, _ = fmt.Fprintf(out, "%s\t%d frames\t%s\n", r.OpenedAt.Local().Format("2006-01-02 15:04"), r.Frames, r.Path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Forget every recent trace")
	return cmd
}
