package answers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spigell/formfill/internal/fields"
)

var validate = validator.New()

// Profile is the stored applicant data. It is loaded from the profile section
// of the configuration file.
type Profile struct {
	FullName            string          `mapstructure:"full-name" json:"full_name" validate:"required_without=FirstName"`
	FirstName           string          `mapstructure:"first-name" json:"first_name,omitempty"`
	LastName            string          `mapstructure:"last-name" json:"last_name,omitempty"`
	Email               string          `mapstructure:"email" json:"email" validate:"required,email"`
	Phone               string          `mapstructure:"phone" json:"phone" validate:"required"`
	City                string          `mapstructure:"city" json:"city,omitempty"`
	LinkedInURL         string          `mapstructure:"linkedin-url" json:"linkedin_url,omitempty" validate:"omitempty,url"`
	WorkAuthorized      bool            `mapstructure:"work-authorized" json:"work_authorized"`
	RequiresSponsorship bool            `mapstructure:"requires-sponsorship" json:"requires_sponsorship"`
	USTimezone          bool            `mapstructure:"us-timezone" json:"us_timezone"`
	YearsDotNet         int             `mapstructure:"years-dotnet" json:"years_dotnet" validate:"gte=0"`
	YearsAzure          int             `mapstructure:"years-azure" json:"years_azure" validate:"gte=0"`
	SalaryExpectation   string          `mapstructure:"salary-expectation" json:"salary_expectation,omitempty"`
	Resume              Resume          `mapstructure:"resume" json:"resume"`
	Variants            []ResumeVariant `mapstructure:"variants" json:"-" validate:"dive"`
}

// Resume is the structured resume content used as narrative context.
type Resume struct {
	Summary    string       `mapstructure:"summary" json:"summary,omitempty"`
	Skills     []string     `mapstructure:"skills" json:"skills,omitempty"`
	Experience []Experience `mapstructure:"experience" json:"experience,omitempty"`
	Education  []Education  `mapstructure:"education" json:"education,omitempty"`
}

type Experience struct {
	Title   string `mapstructure:"title" json:"title"`
	Company string `mapstructure:"company" json:"company"`
	Period  string `mapstructure:"period" json:"period,omitempty"`
	Summary string `mapstructure:"summary" json:"summary,omitempty"`
}

type Education struct {
	Degree      string `mapstructure:"degree" json:"degree"`
	Institution string `mapstructure:"institution" json:"institution"`
	Year        string `mapstructure:"year" json:"year,omitempty"`
}

// ResumeVariant is one uploadable resume file.
type ResumeVariant struct {
	Name    string `mapstructure:"name" json:"name" validate:"required"`
	Path    string `mapstructure:"path" json:"path" validate:"required"`
	Summary string `mapstructure:"summary" json:"summary,omitempty"`
}

// Job identifies the posting answers are synthesized for.
type Job struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Company     string `json:"company,omitempty"`
	URL         string `json:"url,omitempty" validate:"omitempty,url"`
	Description string `json:"description,omitempty"`
}

func (p *Profile) Validate() error {
	if p == nil {
		return fmt.Errorf("profile is required")
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	return nil
}

func (j *Job) Validate() error {
	if j == nil {
		return fmt.Errorf("job is required")
	}
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	return nil
}

// Name returns the full name, composing it from first and last name when needed.
func (p *Profile) Name() string {
	if name := fields.CollapseWhitespace(p.FullName); name != "" {
		return name
	}
	return fields.CollapseWhitespace(p.FirstName + " " + p.LastName)
}

// SplitName returns first and last name, deriving missing parts from the full name.
func (p *Profile) SplitName() (string, string) {
	first := strings.TrimSpace(p.FirstName)
	last := strings.TrimSpace(p.LastName)
	if first != "" && last != "" {
		return first, last
	}

	parts := strings.Fields(p.FullName)
	if len(parts) == 0 {
		return first, last
	}
	if first == "" {
		first = parts[0]
	}
	if last == "" && len(parts) > 1 {
		last = strings.Join(parts[1:], " ")
	}
	return first, last
}

// StaticAnswers renders every profile-derived canonical value. It makes no
// external calls and leaves why_fit unset.
func (p *Profile) StaticAnswers() fields.AnswerSet {
	first, last := p.SplitName()

	out := fields.AnswerSet{
		fields.KeyWorkAuthorization:   yesNo(p.WorkAuthorized),
		fields.KeyRequiresSponsorship: yesNo(p.RequiresSponsorship),
		fields.KeyUSTimezone:          yesNo(p.USTimezone),
		fields.KeyYearsDotNet:         strconv.Itoa(p.YearsDotNet),
		fields.KeyYearsAzure:          strconv.Itoa(p.YearsAzure),
	}

	optional := map[fields.Key]string{
		fields.KeyFullName:          p.Name(),
		fields.KeyFirstName:         first,
		fields.KeyLastName:          last,
		fields.KeyEmail:             p.Email,
		fields.KeyPhone:             p.Phone,
		fields.KeyCity:              p.City,
		fields.KeyLinkedInURL:       p.LinkedInURL,
		fields.KeySalaryExpectation: p.SalaryExpectation,
	}
	for k, v := range optional {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}

	return out
}

// VariantPath returns the file of the named variant, or of the first variant
// when name is unknown.
func (p *Profile) VariantPath(name string) string {
	for _, v := range p.Variants {
		if v.Name == name {
			return v.Path
		}
	}
	if len(p.Variants) > 0 {
		return p.Variants[0].Path
	}
	return ""
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
