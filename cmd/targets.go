package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadforge/leadforge/internal/discover"
	"github.com/leadforge/leadforge/internal/model"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage scrape targets",
	Long:  "Commands for listing, creating, inspecting, and toggling scrape targets.",
}

// -- targets list --

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured targets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		enabledOnly, _ := cmd.Flags().GetBool("enabled")
		targets, err := st.ListTargets(ctx, enabledOnly)
		if err != nil {
			return eris.Wrap(err, "targets list")
		}

		if len(targets) == 0 {
			fmt.Fprintln(os.Stderr, "No targets found.")
			return nil
		}

		formatTargetsList(os.Stdout, targets)
		return nil
	},
}

// -- targets add --

var (
	addName       string
	addURL        string
	addMode       string
	addInterval   time.Duration
	addConfig     string
	addConfigFile string
	addDisabled   bool
)

var targetsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a new scrape target",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		raw, err := readTargetConfig()
		if err != nil {
			return err
		}
		// Surface selector mistakes before anything is persisted.
		if _, err := model.ParseTargetConfig(raw); err != nil {
			return err
		}

		mode := model.TargetMode(addMode)
		if mode != model.ModeStatic && mode != model.ModeBrowser {
			return eris.Errorf("invalid mode %q (want static or browser)", addMode)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		target := &model.Target{
			Name:        addName,
			Enabled:     !addDisabled,
			Mode:        mode,
			StartURL:    addURL,
			RunInterval: addInterval,
			RawConfig:   raw,
		}
		if err := st.CreateTarget(ctx, target); err != nil {
			return eris.Wrap(err, "targets add")
		}

		zap.L().Info("target created",
			zap.String("id", target.ID),
			zap.String("name", target.Name))
		return printJSON(target)
	},
}

func readTargetConfig() (json.RawMessage, error) {
	if addConfig != "" && addConfigFile != "" {
		return nil, eris.New("use either --config or --config-file, not both")
	}
	if addConfigFile != "" {
		raw, err := os.ReadFile(addConfigFile)
		if err != nil {
			return nil, eris.Wrap(err, "read config file")
		}
		return raw, nil
	}
	if addConfig != "" {
		return json.RawMessage(addConfig), nil
	}
	return nil, eris.New("selector config required (--config or --config-file)")
}

// -- targets show --

var targetsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show full details of a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		target, err := st.GetTargetByName(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "targets show")
		}
		return printJSON(target)
	},
}

// -- targets enable / disable --

func setEnabledCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}

			target, err := st.GetTargetByName(ctx, args[0])
			if err != nil {
				return err
			}
			target.Enabled = enabled
			if err := st.UpdateTarget(ctx, target); err != nil {
				return err
			}

			zap.L().Info("target updated",
				zap.String("name", target.Name),
				zap.Bool("enabled", enabled))
			return nil
		},
	}
}

// -- targets discover --

var (
	discoverName string
	discoverSave bool
)

var targetsDiscoverCmd = &cobra.Command{
	Use:   "discover <url>",
	Short: "Suggest a target config for a listing URL",
	Long:  "Recognizes common event platforms and emits a starter selector config; --save persists it as a disabled-by-default starting point for refinement.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		target, err := discover.SuggestTarget(args[0], discoverName)
		if err != nil {
			return err
		}

		if discoverSave {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			if err := st.CreateTarget(ctx, target); err != nil {
				return eris.Wrap(err, "targets discover")
			}
			zap.L().Info("discovered target saved",
				zap.String("id", target.ID),
				zap.String("name", target.Name))
		}

		return printJSON(target)
	},
}

func init() {
	targetsListCmd.Flags().Bool("enabled", false, "only show enabled targets")

	targetsAddCmd.Flags().StringVar(&addName, "name", "", "unique target name (required)")
	targetsAddCmd.Flags().StringVar(&addURL, "url", "", "start URL (required)")
	targetsAddCmd.Flags().StringVar(&addMode, "mode", "static", "fetch mode: static or browser")
	targetsAddCmd.Flags().DurationVar(&addInterval, "interval", 2*time.Hour, "scheduled run interval")
	targetsAddCmd.Flags().StringVar(&addConfig, "config", "", "selector config JSON (inline)")
	targetsAddCmd.Flags().StringVar(&addConfigFile, "config-file", "", "path to selector config JSON")
	targetsAddCmd.Flags().BoolVar(&addDisabled, "disabled", false, "create the target disabled")
	_ = targetsAddCmd.MarkFlagRequired("name")
	_ = targetsAddCmd.MarkFlagRequired("url")

	targetsDiscoverCmd.Flags().StringVar(&discoverName, "name", "", "target name (default derived from domain)")
	targetsDiscoverCmd.Flags().BoolVar(&discoverSave, "save", false, "persist the suggested target")

	targetsCmd.AddCommand(targetsListCmd)
	targetsCmd.AddCommand(targetsAddCmd)
	targetsCmd.AddCommand(targetsShowCmd)
	targetsCmd.AddCommand(setEnabledCmd("enable <name>", "Enable a target", true))
	targetsCmd.AddCommand(setEnabledCmd("disable <name>", "Disable a target", false))
	targetsCmd.AddCommand(targetsDiscoverCmd)
	rootCmd.AddCommand(targetsCmd)
}

// formatTargetsList writes a tabular list of targets to w.
func formatTargetsList(out io.Writer, targets []model.Target) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tENABLED\tMODE\tINTERVAL\tLAST RUN\tURL")
	_, _ = fmt.Fprintln(w, "----\t-------\t----\t--------\t--------\t---")

	for _, t := range targets {
		lastRun := "never"
		if t.LastRunAt != nil {
			lastRun = t.LastRunAt.Format("2006-01-02 15:04")
		}
		url := t.StartURL
		if len(url) > 48 {
			url = url[:45] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\t%s\n",
			t.Name, t.Enabled, t.Mode, t.RunInterval, lastRun, url)
	}
	_ = w.Flush()
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
