package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncForce bool
	syncDue   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [record-id]",
	Short: "Push records to the CRM",
	Long:  "Syncs one record by id, or with --due sweeps every record whose retry time has come. --force bypasses the unchanged-payload skip.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if syncDue == (len(args) == 1) {
			return eris.New("give exactly one of a record id or --due")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if !syncDue {
			outcome, err := env.Syncer.SyncRecord(ctx, args[0], syncForce)
			if err != nil {
				zap.L().Warn("sync attempt failed",
					zap.String("record_id", args[0]),
					zap.String("outcome", string(outcome)),
					zap.Error(err))
			}
			return printJSON(map[string]string{"record_id": args[0], "outcome": string(outcome)})
		}

		ids, err := env.Syncer.SweepDue(ctx, cfg.Sync.BatchLimit)
		if err != nil {
			return err
		}

		outcomes := map[string]int{}
		for _, id := range ids {
			outcome, err := env.Syncer.SyncRecord(ctx, id, syncForce)
			if err != nil {
				zap.L().Warn("sync attempt failed",
					zap.String("record_id", id),
					zap.String("outcome", string(outcome)),
					zap.Error(err))
			}
			outcomes[string(outcome)]++
		}

		zap.L().Info("sync sweep finished", zap.Int("records", len(ids)))
		return printJSON(map[string]any{"records": len(ids), "outcomes": outcomes})
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "sync even when the payload is unchanged")
	syncCmd.Flags().BoolVar(&syncDue, "due", false, "sweep all due records")
	rootCmd.AddCommand(syncCmd)
}
