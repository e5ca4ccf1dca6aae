package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spigell/formfill/internal/resolution"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear cached resolutions and answers",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <job-id>...",
	Short: "Drop cached answers so they are synthesized again",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		d := newDeps(ctx)
		defer d.Close()

		withHistory, _ := cmd.Flags().GetBool("history")

		for _, id := range args {
			if err := d.synthesizer.Clear(ctx, id); err != nil {
				d.logger.Fatal("clearing cached answers", zap.String("job_id", id), zap.Error(err))
			}
			if withHistory {
				if err := d.history.Forget(ctx, id); err != nil {
					d.logger.Fatal("clearing applied history", zap.String("job_id", id), zap.Error(err))
				}
			}
			d.logger.Info("cleared cached answers", zap.String("job_id", id), zap.Bool("history", withHistory))
		}
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <label>",
	Short: "Show the cached resolution of a label",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ctx := context.Background()

		d := newDeps(ctx)
		defer d.Close()

		res, ok := resolution.NewCache(d.store, d.logger).Get(ctx, args[0])
		if !ok {
			d.logger.Info("label is not cached", zap.String("label", args[0]))
			return
		}

		pretty, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(pretty))
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd, cacheShowCmd)

	cacheClearCmd.Flags().Bool("history", false, "also forget that the job was applied to")
}
