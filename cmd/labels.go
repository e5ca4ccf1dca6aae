package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spigell/formfill/internal/ats"
	"github.com/spigell/formfill/internal/htmlform"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var labelsCmd = &cobra.Command{
	Use:   "labels <saved-form.html>",
	Short: "List the fields of a saved form and how their labels resolve",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		d := newDeps(ctx)
		defer d.Close()

		pageURL, _ := cmd.Flags().GetString("url")
		scope, _ := cmd.Flags().GetString("scope")

		page, err := htmlform.Open(args[0], pageURL)
		if err != nil {
			d.logger.Fatal("opening the saved form", zap.Error(err))
		}

		found, err := page.Fields(ctx, scope)
		if err != nil {
			d.logger.Fatal("listing form fields", zap.Error(err))
		}

		labels := make([]string, 0, len(found))
		for _, f := range found {
			if f.Kind != ats.KindFile {
				labels = append(labels, f.Label)
			}
		}

		resolved := make(map[string]string, len(labels))
		confidence := make(map[string]float64, len(labels))
		for _, r := range d.engine.ResolveLabels(ctx, labels) {
			resolved[r.Label] = r.Key.String()
			confidence[r.Label] = r.Confidence
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LABEL\tKIND\tKEY\tCONFIDENCE\tSELECTOR")
		for _, f := range found {
			key := resolved[f.Label]
			if f.Kind == ats.KindFile {
				key = "(resume upload)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", f.Label, f.Kind, key, confidence[f.Label], f.Selector)
		}
		_ = w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(labelsCmd)

	labelsCmd.Flags().String("url", "", "url the form was saved from")
	labelsCmd.Flags().String("scope", "form", "css selector of the form element")
}
