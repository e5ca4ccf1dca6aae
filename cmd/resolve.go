package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <label>...",
	Short: "Resolve raw form labels to canonical fields",
	Args:  cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ctx := context.Background()

		d := newDeps(ctx)
		defer d.Close()

		pretty, _ := json.MarshalIndent(d.engine.ResolveLabels(ctx, args), "", "  ")
		fmt.Println(string(pretty))
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
