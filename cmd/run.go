package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadforge/leadforge/internal/model"
)

var runAll bool

var runCmd = &cobra.Command{
	Use:   "run [target]",
	Short: "Execute a scrape run for one target or all enabled targets",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runAll == (len(args) == 1) {
			return eris.New("give exactly one of a target name or --all")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if runAll {
			n, err := env.Runner.ScrapeAll(ctx, model.TriggerManual, cfg.Scrape.MaxParallel)
			if err != nil {
				return eris.Wrap(err, "scrape all")
			}
			zap.L().Info("scrape sweep finished", zap.Int("targets", n))
			return nil
		}

		target, err := env.Store.GetTargetByName(ctx, args[0])
		if err != nil {
			return err
		}

		run, err := env.Runner.RunTarget(ctx, target, model.TriggerManual)
		if err != nil {
			return eris.Wrapf(err, "run %s", target.Name)
		}
		return printJSON(run)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runAll, "all", false, "run every enabled target")
	rootCmd.AddCommand(runCmd)
}
