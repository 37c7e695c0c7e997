package emailcheck

import "fmt"

// Status buckets for presenting a verdict.
const (
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
	StatusInfo    = "info"
)

// Message returns the user-facing text for a verdict.
func Message(result Result) string {
	if result.Err != "" {
		return result.Err
	}
	if !result.Details.ValidFormat {
		return "Please enter a valid email format"
	}
	if result.Suggestion != "" {
		return fmt.Sprintf("Did you mean %q?", result.Suggestion)
	}
	if result.Details.IsDisposable {
		return "Disposable email addresses are not allowed"
	}
	if !result.IsDeliverable {
		return "This email address appears to be undeliverable"
	}
	if result.Details.IsFreeEmail {
		return "Free email address detected"
	}
	if result.IsValid && result.IsDeliverable {
		return "Valid email address"
	}
	return "Email validation inconclusive"
}

// Status returns the presentation bucket for a verdict.
func Status(result Result) string {
	if result.Err != "" || !result.Details.ValidFormat {
		return StatusError
	}
	if result.Suggestion != "" {
		return StatusWarning
	}
	if result.Details.IsDisposable {
		return StatusError
	}
	if !result.IsDeliverable {
		return StatusWarning
	}
	if result.IsValid && result.IsDeliverable {
		return StatusSuccess
	}
	return StatusInfo
}
