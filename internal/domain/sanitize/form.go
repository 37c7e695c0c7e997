package sanitize

import "strings"

// Allow-lists for the problem-report select fields.
var (
	AllowedReportTypes = []string{"bug", "feature", "ui", "performance", "other"}
	AllowedUrgencies   = []string{"low", "medium", "high", "critical"}
	AllowedBrowsers    = []string{"chrome", "firefox", "safari", "edge", "opera", "other"}
	AllowedDevices     = []string{"desktop", "laptop", "tablet", "mobile"}
)

// ReportForm is the sanitized problem-report submission. Each field is bound
// to exactly one sanitization policy, so the mapping from raw submission to
// typed data is checked once and reused everywhere the form is accepted.
type ReportForm struct {
	Type             string `json:"type"`
	Subject          string `json:"subject"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Steps            string `json:"steps"`
	ExpectedBehavior string `json:"expected_behavior"`
	ActualBehavior   string `json:"actual_behavior"`
	Browser          string `json:"browser"`
	Device           string `json:"device"`
	Urgency          string `json:"urgency"`
}

// NewReportForm sanitizes a raw string-keyed submission into a ReportForm.
// Unknown keys are ignored; missing keys degrade to "".
func NewReportForm(raw map[string]string) ReportForm {
	urgency := raw["urgency"]
	if urgency == "" {
		urgency = "medium"
	}

	freeText := FreeTextOptions{MaxLength: 5000}

	return ReportForm{
		Type:             SelectValue(raw["type"], AllowedReportTypes),
		Subject:          Subject(raw["subject"]),
		Email:            Email(raw["email"]),
		Name:             Name(raw["name"]),
		Description:      FreeText(raw["description"], freeText),
		Steps:            FreeText(raw["steps"], freeText),
		ExpectedBehavior: FreeText(raw["expected_behavior"], freeText),
		ActualBehavior:   FreeText(raw["actual_behavior"], freeText),
		Browser:          SelectValue(raw["browser"], AllowedBrowsers),
		Device:           SelectValue(raw["device"], AllowedDevices),
		Urgency:          SelectValue(urgency, AllowedUrgencies),
	}
}

// Validate checks that the required fields survived sanitization.
// A populated slice means the form must be corrected and resubmitted;
// it is never an error in the Go sense (sanitization cannot fail).
func (f ReportForm) Validate() []string {
	var errs []string

	if f.Type == "" {
		errs = append(errs, "problem type is required")
	}
	if len(f.Subject) < 3 {
		errs = append(errs, "subject must be at least 3 characters")
	}
	if f.Email == "" {
		errs = append(errs, "email address is required")
	}
	if len(f.Description) < 10 {
		errs = append(errs, "description must be at least 10 characters")
	}

	return errs
}

// Fields returns the form as a string-keyed map for policy evaluation and
// submission callbacks.
func (f ReportForm) Fields() map[string]string {
	return map[string]string{
		"type":              f.Type,
		"subject":           f.Subject,
		"email":             f.Email,
		"name":              f.Name,
		"description":       f.Description,
		"steps":             f.Steps,
		"expected_behavior": f.ExpectedBehavior,
		"actual_behavior":   f.ActualBehavior,
		"browser":           f.Browser,
		"device":            f.Device,
		"urgency":           f.Urgency,
	}
}

// Summary returns a short single-line description for logs.
func (f ReportForm) Summary() string {
	parts := []string{f.Type}
	if f.Urgency != "" {
		parts = append(parts, f.Urgency)
	}
	if f.Subject != "" {
		parts = append(parts, f.Subject)
	}
	return strings.Join(parts, ": ")
}
