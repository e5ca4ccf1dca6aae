package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spigell/formfill/internal/ats"
	"github.com/spigell/formfill/internal/browser"
	"github.com/spigell/formfill/internal/htmlform"
	"github.com/spigell/formfill/internal/logger"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	PromptYes  = "Yes"
	PromptNo   = "No"
	PromptShow = "Show answers"
)

var applyCmd = &cobra.Command{
	Use:   "apply <job-url>",
	Short: "Synthesize answers for a job and fill its application form",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := apply(cmd, args[0]); err != nil {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)

	addJobFlags(applyCmd)
	applyCmd.Flags().String("html", "", "fill a saved copy of the form instead of opening a browser")
	applyCmd.Flags().Bool("dry-run", false, "fill the form but do not submit it")
	applyCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation before submitting")
	applyCmd.Flags().Bool("force", false, "apply even if this job was already submitted")
}

// apply returns instead of exiting so the page and the store are always closed.
func apply(cmd *cobra.Command, jobURL string) error {
	ctx := context.Background()

	d := newDeps(ctx)
	defer d.Close()

	if err := runApply(ctx, cmd, d, jobURL); err != nil {
		d.logger.Error("apply failed", zap.Error(err))
		return err
	}
	return nil
}

func runApply(ctx context.Context, cmd *cobra.Command, d *deps, jobURL string) error {
	job, err := jobFromFlags(cmd, jobURL)
	if err != nil {
		return fmt.Errorf("describing the job: %w", err)
	}
	profile, err := d.loadProfile()
	if err != nil {
		return err
	}

	log := logger.WithFields(d.logger, logger.ApplicationFields(job.ID, "", "")...)

	rec, applied, err := d.history.Lookup(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("checking applied history: %w", err)
	}
	if applied {
		if force, _ := cmd.Flags().GetBool("force"); !force {
			log.Info("exiting",
				zap.String("reason", "job was already submitted"),
				zap.String("attempt_id", rec.AttemptID),
				zap.Time("submitted_at", rec.SubmittedAt),
			)
			return nil
		}
		log.Info("applying again", zap.String("reason", "force flag is set"))
	}

	synthesis, err := d.synthesizer.Synthesize(ctx, job, profile)
	if err != nil {
		return fmt.Errorf("synthesizing answers: %w", err)
	}

	resume := profile.VariantPath(synthesis.ResumeVariant)
	log.Info("answers ready",
		zap.Int("answers", len(synthesis.Answers)),
		zap.String("resume_variant", synthesis.ResumeVariant),
	)

	opts := d.config.Apply
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		opts.DryRun = true
	}

	if !opts.DryRun {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes && !confirm(log, synthesis.Answers) {
			log.Info("exiting", zap.String("reason", "got no from prompt"))
			return nil
		}
	}

	page, closePage, err := openPage(ctx, cmd, d, jobURL)
	if err != nil {
		return err
	}
	defer closePage()

	dispatcher := ats.NewDefaultDispatcher(d.engine, opts, log)
	result := dispatcher.Apply(ctx, page, synthesis.Answers, resume)

	pretty, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(pretty))

	if err := d.history.Remember(ctx, job.ID, result); err != nil {
		log.Warn("recording the application", zap.Error(err))
	}

	if !result.Success {
		return fmt.Errorf("application failed at %s: %w", result.Stage, result.Err)
	}
	return nil
}

func confirm(log *zap.Logger, answers any) bool {
	prompt := promptui.Select{
		Label: "Submit the application?",
		Items: []string{PromptYes, PromptNo, PromptShow},
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			log.Fatal("exiting", zap.Error(err))
		}

		switch action {
		case PromptYes:
			return true
		case PromptShow:
			pretty, _ := json.MarshalIndent(answers, "", "  ")
			fmt.Println(string(pretty))
		default:
			return false
		}
	}
}

// openPage returns the saved form given by --html, or a live browser tab.
var openPage = func(ctx context.Context, cmd *cobra.Command, d *deps, jobURL string) (ats.Page, func(), error) {
	if path, _ := cmd.Flags().GetString("html"); path != "" {
		page, err := htmlform.Open(path, jobURL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening the saved form: %w", err)
		}
		return page, func() {}, nil
	}

	b, err := browser.Launch(ctx, d.config.Browser, d.logger.Named("browser"))
	if err != nil {
		return nil, nil, fmt.Errorf("launching the browser: %w", err)
	}

	page, err := b.Open(ctx, jobURL)
	if err != nil {
		_ = b.Close()
		return nil, nil, fmt.Errorf("opening the job page: %w", err)
	}

	return page, func() {
		if err := b.Close(); err != nil {
			d.logger.Warn("closing the browser", zap.Error(err))
		}
	}, nil
}
