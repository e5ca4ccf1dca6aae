package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spigell/formfill/internal/answers"

	"github.com/spf13/cobra"
)

func addJobFlags(cmd *cobra.Command) {
	cmd.Flags().String("job-id", "", "job identifier used as the answer cache key (default is derived from the job url)")
	cmd.Flags().String("title", "", "job title")
	cmd.Flags().String("company", "", "company name")
	cmd.Flags().String("description", "", "job description text")
	cmd.Flags().String("description-file", "", "file with the job description")
}

func jobFromFlags(cmd *cobra.Command, jobURL string) (*answers.Job, error) {
	flag := func(name string) string {
		return strings.TrimSpace(cmd.Flag(name).Value.String())
	}

	description := flag("description")
	if path := flag("description-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading job description: %w", err)
		}
		description = string(data)
	}

	id := flag("job-id")
	if id == "" {
		id = jobIDFromURL(jobURL)
	}

	job := &answers.Job{
		ID:          id,
		Title:       flag("title"),
		Company:     flag("company"),
		URL:         jobURL,
		Description: description,
	}
	return job, job.Validate()
}

// jobIDFromURL derives a stable id from the host and path of a posting.
func jobIDFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host) + strings.TrimSuffix(u.Path, "/")
}
