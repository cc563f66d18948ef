package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/baaaaaaaka/calltrace/internal/callframe"
	"github.com/baaaaaaaka/calltrace/internal/render"
)

func newTreeCmd(root *rootOptions) *cobra.Command {
	flags := &traceFlags{}
	cmd := &cobra.Command{
		Use:   "tree [file|-]",
		Short: "Print the call tree of a trace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg := loadConfig(cmd, root)
			cfg, err := flags.resolve(cmd, cfg)
			if err != nil {
				return err
			}
			res, err := readTrace(cmd, args)
			if err != nil {
				return err
			}
			policy := cfg.Policy()
			forest := callframe.BuildForest(res.Frames, policy)
			warnLoad(cmd, res, forest.Unreachable(res.Frames, policy))

			doc := render.Build(res.Frames, forest, render.Options{PreviewChars: cfg.Preview()})
			var style render.Styler = render.PlainStyler{}
			if useColor(cmd, cfg.ColorMode()) {
				style = render.NewTermStyler(cmd.OutOrStdout(), true)
			}
			return render.WriteText(cmd.OutOrStdout(), doc, render.View{ExpandAll: cfg.ExpandAll}, style)
		},
	}
	flags.register(cmd)
	return cmd
}

func newSummaryCmd(root *rootOptions) *cobra.Command {
	var sentinel string
	cmd := &cobra.Command{
		Use:   "summary [file|-]",
		Short: "Print one summary line per call, indented by depth",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg := loadConfig(cmd, root)
			if cmd.Flags().Changed("sentinel") {
				if err := cfg.Set("sentinelPolicy", sentinel); err != nil {
					return err
				}
			}
			res, err := readTrace(cmd, args)
			if err != nil {
				return err
			}
			policy := cfg.Policy()
			forest := callframe.BuildForest(res.Frames, policy)
			warnLoad(cmd, res, forest.Unreachable(res.Frames, policy))

			out := cmd.OutOrStdout()
			if len(forest.Roots) == 0 {
				_, _ = fmt.Fprintln(out, render.WaitingPlaceholder)
				return nil
			}
			forest.Walk(func(id string, depth int) bool {
				frame := res.Frames[id]
				_, _ = fmt.Fprintln(out, strings.Repeat("  ", depth)+callframe.Summarize(frame).String())
				return true
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&sentinel, "sentinel", "", "Gateway provider frames to drop: all|finished (default from config)")
	return cmd
}

type forestPayload struct {
	Roots       []string            `json:"roots"`
	Children    map[string][]string `json:"children"`
	Unreachable []string            `json:"unreachable"`
	// Frames is the normalized input, keyed by id; it loads back as a trace.
	Frames callframe.Frames `json:"frames,omitempty"`
}

func newForestCmd(root *rootOptions) *cobra.Command {
	var pretty bool
	var withFrames bool
	var sentinel string

	cmd := &cobra.Command{
		Use:   "forest [file|-]",
		Short: "Print roots and children of a trace as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg := loadConfig(cmd, root)
			if cmd.Flags().Changed("sentinel") {
				if err := cfg.Set("sentinelPolicy", sentinel); err != nil {
					return err
				}
			}
			res, err := readTrace(cmd, args)
			if err != nil {
				return err
			}
			policy := cfg.Policy()
			forest := callframe.BuildForest(res.Frames, policy)
			unreachable := forest.Unreachable(res.Frames, policy)
			warnLoad(cmd, res, nil)

			payload := forestPayload{
				Roots:       forest.Roots,
				Children:    forest.Children,
				Unreachable: unreachable,
			}
			if payload.Roots == nil {
				payload.Roots = []string{}
			}
			if payload.Children == nil {
				payload.Children = map[string][]string{}
			}
			if payload.Unreachable == nil {
				payload.Unreachable = []string{}
			}
			if withFrames {
				payload.Frames = res.Frames
			}
			var out []byte
			if pretty {
				out, err = json.MarshalIndent(payload, "", "  ")
			} else {
				out, err = json.Marshal(payload)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON")
	cmd.Flags().BoolVar(&withFrames, "frames", false, "Include the decoded frames keyed by id")
	cmd.Flags().StringVar(&sentinel, "sentinel", "", "Gateway provider frames to drop: all|finished (default from config)")
	return cmd
}
