package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/baaaaaaaka/calltrace/internal/callframe"
	"github.com/baaaaaaaka/calltrace/internal/config"
)

const stdinArg = "-"

type traceFlags struct {
	sentinel string
	expand   bool
	color    string
	preview  int
}

func (f *traceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sentinel, "sentinel", "", "Gateway provider frames to drop: all|finished (default from config)")
	cmd.Flags().BoolVar(&f.expand, "expand", false, "Expand every section (default from config)")
	cmd.Flags().StringVar(&f.color, "color", "", "Colorize output: auto|always|never (default from config)")
	cmd.Flags().IntVar(&f.preview, "preview", 0, "Preview length for message titles (default from config)")
}

// resolve merges explicitly set flags over the stored config.
func (f *traceFlags) resolve(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	if cmd.Flags().Changed("sentinel") {
		if err := cfg.Set("sentinelPolicy", f.sentinel); err != nil {
			return cfg, err
		}
	}
	if cmd.Flags().Changed("expand") {
		cfg.ExpandAll = f.expand
	}
	if cmd.Flags().Changed("color") {
		if err := cfg.Set("color", f.color); err != nil {
			return cfg, err
		}
	}
	if cmd.Flags().Changed("preview") {
		if err := cfg.Set("previewChars", fmt.Sprint(f.preview)); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// readTrace loads frames from a path, or from stdin when the argument is
// missing or "-".
func readTrace(cmd *cobra.Command, args []string) (callframe.LoadResult, error) {
	path := stdinArg
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		path = args[0]
	}
	if path == stdinArg {
		res, err := callframe.Load(cmd.InOrStdin())
		if err != nil {
			return res, fmt.Errorf("read stdin: %w", err)
		}
		return res, nil
	}
	return callframe.LoadFile(path)
}

// warnLoad reports input problems that did not stop the build.
func warnLoad(cmd *cobra.Command, res callframe.LoadResult, unreachable []string) {
	if res.Skipped > 0 {
		warnf(cmd, "skipped %d undecodable record(s)", res.Skipped)
	}
	if res.MissingIDs > 0 {
		warnf(cmd, "skipped %d frame(s) without an id", res.MissingIDs)
	}
	if len(unreachable) > 0 {
		warnf(cmd, "%d frame(s) not reachable from any root: %s", len(unreachable), strings.Join(unreachable, ", "))
	}
}

func warnf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: "+format+"\n", args...)
}

// useColor decides styling for the command's stdout.
func useColor(cmd *cobra.Command, mode string) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
