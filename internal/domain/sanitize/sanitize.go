// Package sanitize provides input sanitization for untrusted form fields.
// Every function is total: invalid or empty input degrades to "" and no
// function ever returns an error. Sanitization is a last line of defense and
// must not itself become an availability risk.
//
// All sanitizers are idempotent: applying the same policy twice to already
// sanitized input yields the same output as applying it once.
package sanitize

import (
	"regexp"
	"strings"
)

// Length bounds per field kind.
const (
	// MaxFreeTextLength is the default bound for free-text fields.
	MaxFreeTextLength = 1000

	// MaxEmailLength is the RFC 5321 limit for an address.
	MaxEmailLength = 254

	// MaxNameLength bounds person/group name fields.
	MaxNameLength = 100

	// MaxPasswordLength bounds passwords. Passwords are never altered beyond
	// trimming and this bound.
	MaxPasswordLength = 128

	// MaxSubjectLength bounds single-line subject fields.
	MaxSubjectLength = 200

	// MaxCourseLength bounds course fields.
	MaxCourseLength = 100

	// MaxYearLevelLength bounds year-level fields.
	MaxYearLevelLength = 50
)

var (
	// scriptBlockRe matches <script>...</script> blocks including content.
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b.*?</script>`)

	// openScriptRe matches a dangling <script> with no closing tag.
	openScriptRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*$`)

	// tagRe matches anything that looks like an HTML tag.
	tagRe = regexp.MustCompile(`<[^>]*>`)

	// protocolRe matches URI schemes usable for script injection.
	protocolRe = regexp.MustCompile(`(?i)(javascript|vbscript|data)\s*:`)

	// eventHandlerRe matches inline event-handler attributes (onclick=, onerror=...).
	eventHandlerRe = regexp.MustCompile(`(?i)\s*on\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)

	// funcCallRe matches function-call-like substrings (alert(...)) in name fields.
	funcCallRe = regexp.MustCompile(`\w+\s*\([^)]*\)`)

	// allowedTagRe matches the limited formatting tags FreeText may preserve.
	allowedTagRe = regexp.MustCompile(`(?i)</?(?:b|i|em|strong|u|br)\s*/?>`)

	// emailInvalidRe matches characters not permitted in a normalized address.
	emailInvalidRe = regexp.MustCompile(`[^a-z0-9@._-]`)

	// repeatDotsRe matches runs of two or more dots.
	repeatDotsRe = regexp.MustCompile(`\.{2,}`)

	// nameAllowedRe removes everything outside the name character set:
	// ASCII letters, a fixed set of accented Latin letters, whitespace,
	// hyphens, periods and apostrophes.
	nameAllowedRe = regexp.MustCompile(`[^a-zA-Z\s\-'.àáâäãåąčćęèéêëėįìíîïłńòóôöõøùúûüųūÿýżźñçšžœæßÀÁÂÄÃÅĄĆČĖĘÈÉÊËÌÍÎÏĮŁŃÒÓÔÖÕØÙÚÛÜŲŪŸÝŻŹÑÇŒÆŠŽ]`)

	// subjectDangerRe removes characters a single-line field never needs.
	subjectDangerRe = regexp.MustCompile(`[<>'"&]`)

	// multiSpaceRe collapses runs of whitespace in single-line fields.
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)

	// multiNewlineRe collapses runs of 3+ newlines in free text.
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
)

// FreeTextOptions configures FreeText.
type FreeTextOptions struct {
	// MaxLength bounds the raw (pre-encoding) text. Zero means MaxFreeTextLength.
	MaxLength int

	// AllowLimitedHTML preserves the b, i, em, strong, u and br tags.
	// All other tags are stripped regardless.
	AllowLimitedHTML bool
}

// entity decoding must run before re-encoding so FreeText stays idempotent:
// a second pass decodes exactly what the first pass produced.
var entityDecoder = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#x27;", "'",
	"&#39;", "'",
	"&amp;", "&",
)

var entityEncoder = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// placeholder runes from the Unicode private use area guard allowed tags
// through the strip/encode passes. They are stripped from input first so
// user data can never smuggle a tag through them.
const (
	placeholderOpen  = "\ue000"
	placeholderClose = "\ue001"
)

// FreeText sanitizes multi-line free text (descriptions, problem reports).
// It strips script blocks and tags, removes dangerous URI schemes and inline
// event handlers, bounds the length and HTML-encodes the remaining
// & < > " ' characters.
func FreeText(input string, opts FreeTextOptions) string {
	if input == "" {
		return ""
	}

	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = MaxFreeTextLength
	}

	s := strings.ReplaceAll(input, "\x00", "")
	s = strings.ReplaceAll(s, placeholderOpen, "")
	s = strings.ReplaceAll(s, placeholderClose, "")
	s = entityDecoder.Replace(s)

	s = scriptBlockRe.ReplaceAllString(s, "")
	s = openScriptRe.ReplaceAllString(s, "")

	var preserved []string
	if opts.AllowLimitedHTML {
		s = allowedTagRe.ReplaceAllStringFunc(s, func(tag string) string {
			preserved = append(preserved, tag)
			return placeholderOpen
		})
	}

	s = tagRe.ReplaceAllString(s, "")
	s = eventHandlerRe.ReplaceAllString(s, "")
	s = protocolRe.ReplaceAllString(s, "")
	s = multiNewlineRe.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	s = truncate(s, maxLen)

	s = entityEncoder.Replace(s)

	if opts.AllowLimitedHTML {
		for _, tag := range preserved {
			s = strings.Replace(s, placeholderOpen, strings.ToLower(tag), 1)
		}
		// Drop placeholders orphaned by truncation.
		s = strings.ReplaceAll(s, placeholderOpen, "")
	}

	return s
}

// Email normalizes an email address: lowercase, trimmed, restricted to
// [a-z0-9@._-], a single @, no repeated or leading/trailing dots.
// It does not verify deliverability; see the emailcheck adapter for that.
func Email(input string) string {
	if input == "" {
		return ""
	}

	s := strings.ToLower(strings.TrimSpace(input))
	s = emailInvalidRe.ReplaceAllString(s, "")

	// Keep the first @, drop the rest.
	if first := strings.Index(s, "@"); first >= 0 {
		s = s[:first+1] + strings.ReplaceAll(s[first+1:], "@", "")
	}

	s = repeatDotsRe.ReplaceAllString(s, ".")
	s = strings.Trim(s, ".")

	return truncate(s, MaxEmailLength)
}

// Name sanitizes a person or group name. Destructive by design: anything that
// could carry an injection payload through a "name" field is removed, while
// names like O'Connor or Jean-Luc survive.
func Name(input string) string {
	if input == "" {
		return ""
	}

	s := strings.ReplaceAll(input, "\x00", "")
	s = scriptBlockRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")
	s = protocolRe.ReplaceAllString(s, "")
	s = eventHandlerRe.ReplaceAllString(s, "")
	s = funcCallRe.ReplaceAllString(s, "")
	s = strings.NewReplacer(`"`, "", "`", "").Replace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '(', ')', '{', '}', '[', ']', ';', '=', '<', '>':
			return -1
		}
		return r
	}, s)

	s = filterApostrophes(s)
	s = nameAllowedRe.ReplaceAllString(s, "")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	return truncate(s, MaxNameLength)
}

// filterApostrophes keeps an apostrophe only when both neighbors are ASCII
// letters, so "O'Connor" survives while stray quotes are dropped.
func filterApostrophes(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	for i, r := range runes {
		if r != '\'' {
			out = append(out, r)
			continue
		}
		if i > 0 && i < len(runes)-1 && isASCIILetter(runes[i-1]) && isASCIILetter(runes[i+1]) {
			out = append(out, r)
		}
	}
	return string(out)
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Password trims surrounding whitespace and bounds the length. It never
// strips or encodes characters: changing the content would silently change
// the password's identity.
func Password(input string) string {
	if input == "" {
		return ""
	}
	return truncate(strings.TrimSpace(input), MaxPasswordLength)
}

// Subject sanitizes a single-line subject field.
func Subject(input string) string {
	return singleLine(input, MaxSubjectLength)
}

// Course sanitizes a course name field.
func Course(input string) string {
	return singleLine(input, MaxCourseLength)
}

// YearLevel sanitizes a year-level field.
func YearLevel(input string) string {
	return singleLine(input, MaxYearLevelLength)
}

// singleLine is the shared transformation for short single-line fields:
// same family as free text with tighter bounds, stripping rather than
// encoding the dangerous characters.
func singleLine(input string, maxLen int) string {
	if input == "" {
		return ""
	}

	s := strings.ReplaceAll(input, "\x00", "")
	s = scriptBlockRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")
	s = protocolRe.ReplaceAllString(s, "")
	s = subjectDangerRe.ReplaceAllString(s, "")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	return truncate(s, maxLen)
}

// SelectValue returns the lowercased, trimmed value only when it is a member
// of the caller-supplied allow-list; anything else yields "". This keeps
// select-style fields from carrying injected values even when the submitting
// client is tampered with.
func SelectValue(value string, allowed []string) string {
	if value == "" {
		return ""
	}

	s := strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	return ""
}

// truncate bounds a string to n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}
