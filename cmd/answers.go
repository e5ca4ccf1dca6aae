package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var answersCmd = &cobra.Command{
	Use:   "answers [job-url]",
	Short: "Synthesize (or show the cached) answers for a job",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		d := newDeps(ctx)
		defer d.Close()

		jobURL := ""
		if len(args) == 1 {
			jobURL = args[0]
		}

		job, err := jobFromFlags(cmd, jobURL)
		if err != nil {
			d.logger.Fatal("describing the job", zap.Error(err))
		}

		synthesis, err := d.synthesizer.Synthesize(ctx, job, d.profile())
		if err != nil {
			d.logger.Fatal("synthesizing answers", zap.Error(err))
		}

		pretty, _ := json.MarshalIndent(synthesis, "", "  ")
		fmt.Println(string(pretty))
	},
}

func init() {
	rootCmd.AddCommand(answersCmd)
	addJobFlags(answersCmd)
}
