package sanitize

import (
	"strings"
	"testing"
)

func TestFreeText_StripsScriptBlocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "script block with content",
			input: `<script>alert("xss")</script>hello`,
			want:  "hello",
		},
		{
			name:  "script block with attributes",
			input: `<script type="text/javascript">steal()</script>ok`,
			want:  "ok",
		},
		{
			name:  "unclosed script tag",
			input: `before<script>alert(1)`,
			want:  "before",
		},
		{
			name:  "mixed case",
			input: `<ScRiPt>alert(1)</sCrIpT>safe`,
			want:  "safe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FreeText(tt.input, FreeTextOptions{}); got != tt.want {
				t.Errorf("FreeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFreeText_EncodesDangerousCharacters(t *testing.T) {
	t.Parallel()

	got := FreeText(`Tom & Jerry say "hi" to 'you'`, FreeTextOptions{})
	want := `Tom &amp; Jerry say &quot;hi&quot; to &#x27;you&#x27;`
	if got != want {
		t.Errorf("FreeText() = %q, want %q", got, want)
	}
}

func TestFreeText_RemovesProtocolsAndHandlers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"javascript protocol", `click javascript:alert(1)`},
		{"data protocol", `data:text/html;base64,xxx`},
		{"vbscript protocol", `vbscript:MsgBox`},
		{"event handler", `<img src=x onerror="alert(1)">text`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := FreeText(tt.input, FreeTextOptions{})
			lower := strings.ToLower(got)
			for _, banned := range []string{"javascript:", "data:", "vbscript:", "onerror"} {
				if strings.Contains(lower, banned) {
					t.Errorf("FreeText(%q) = %q, still contains %q", tt.input, got, banned)
				}
			}
		})
	}
}

func TestFreeText_LimitedHTMLAllowList(t *testing.T) {
	t.Parallel()

	input := `<b>bold</b> <script>x()</script> <div>block</div> <i>italic</i>`
	got := FreeText(input, FreeTextOptions{AllowLimitedHTML: true})

	if !strings.Contains(got, "<b>") || !strings.Contains(got, "</b>") {
		t.Errorf("allowed tag <b> did not survive: %q", got)
	}
	if !strings.Contains(got, "<i>") {
		t.Errorf("allowed tag <i> did not survive: %q", got)
	}
	if strings.Contains(got, "<div>") || strings.Contains(got, "script") {
		t.Errorf("disallowed tag survived: %q", got)
	}
}

func TestFreeText_TruncatesToMaxLength(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 2000)
	got := FreeText(long, FreeTextOptions{})
	if len(got) != MaxFreeTextLength {
		t.Errorf("len = %d, want %d", len(got), MaxFreeTextLength)
	}

	got = FreeText(long, FreeTextOptions{MaxLength: 50})
	if len(got) != 50 {
		t.Errorf("len = %d, want 50", len(got))
	}
}

func TestFreeText_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`<script>alert("x")</script>Hello & <b>world</b>`,
		`Tom & Jerry <i>again</i> 'quotes' "doubles"`,
		`javascript:alert(1) <img onerror="x()"> plain`,
		`&amp; already &lt;encoded&gt; text`,
		"line1\n\n\n\n\nline2",
		`O'Connor & sons: 5 < 10 > 2`,
	}

	for _, input := range inputs {
		for _, opts := range []FreeTextOptions{{}, {AllowLimitedHTML: true}} {
			once := FreeText(input, opts)
			twice := FreeText(once, opts)
			if once != twice {
				t.Errorf("not idempotent for %q (limited=%v):\n once=%q\ntwice=%q",
					input, opts.AllowLimitedHTML, once, twice)
			}
		}
	}
}

func TestFreeText_EmptyAndInvalid(t *testing.T) {
	t.Parallel()

	if got := FreeText("", FreeTextOptions{}); got != "" {
		t.Errorf("FreeText(\"\") = %q, want \"\"", got)
	}
	if got := FreeText("   ", FreeTextOptions{}); got != "" {
		t.Errorf("FreeText(whitespace) = %q, want \"\"", got)
	}
}

func TestEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "normalizes case dots and at signs",
			input: "  JOHN..DOE@@Example.com ",
			want:  "john.doe@example.com",
		},
		{
			name:  "plain address unchanged",
			input: "user@example.com",
			want:  "user@example.com",
		},
		{
			name:  "strips invalid characters",
			input: "us<script>er@example.com",
			want:  "uscripter@example.com",
		},
		{
			name:  "strips leading and trailing dots",
			input: ".user@example.com.",
			want:  "user@example.com",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Email(tt.input); got != tt.want {
				t.Errorf("Email(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEmail_Idempotent(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"  JOHN..DOE@@Example.com ", "a@@b..c", "user@example.com"} {
		once := Email(input)
		if twice := Email(once); once != twice {
			t.Errorf("Email not idempotent for %q: once=%q twice=%q", input, once, twice)
		}
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "sql injection payload",
			input: `Robert'); DROP TABLE users;--`,
			want:  "Robert DROP TABLE users--",
		},
		{
			name:  "keeps apostrophe between letters",
			input: "O'Connor",
			want:  "O'Connor",
		},
		{
			name:  "drops stray apostrophes",
			input: "'; DELETE FROM x '",
			want:  "DELETE FROM x",
		},
		{
			name:  "strips function calls",
			input: "alert(document.cookie) Bob",
			want:  "Bob",
		},
		{
			name:  "strips html",
			input: "<b>Alice</b> Smith",
			want:  "Alice Smith",
		},
		{
			name:  "keeps hyphenated and accented names",
			input: "Jean-Luc Éowyn",
			want:  "Jean-Luc Éowyn",
		},
		{
			name:  "collapses spaces",
			input: "Mary   Jane",
			want:  "Mary Jane",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Name(tt.input); got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestName_NoDangerousCharactersSurvive(t *testing.T) {
	t.Parallel()

	payloads := []string{
		`Robert'); DROP TABLE users;--`,
		`<script>alert(1)</script>`,
		`x" onmouseover="evil()`,
		"`rm -rf /`",
		`{a: [1]};=<>`,
	}

	for _, p := range payloads {
		got := Name(p)
		if strings.ContainsAny(got, `(){}[];=<>"`+"`") {
			t.Errorf("Name(%q) = %q, dangerous characters survived", p, got)
		}
	}
}

func TestPassword(t *testing.T) {
	t.Parallel()

	// Special characters must round-trip unchanged.
	input := "P@ssw0rd!#"
	if got := Password(input); got != input {
		t.Errorf("Password(%q) = %q, want unchanged", input, got)
	}

	// Only trimming is applied.
	if got := Password("  secret  "); got != "secret" {
		t.Errorf("Password with whitespace = %q, want %q", got, "secret")
	}

	// Length bound.
	long := strings.Repeat("x", 200)
	if got := Password(long); len(got) != MaxPasswordLength {
		t.Errorf("len = %d, want %d", len(got), MaxPasswordLength)
	}

	// Entropy-preserving: HTML-ish characters survive.
	tricky := `<p@ss>&"word'`
	if got := Password(tricky); got != tricky {
		t.Errorf("Password(%q) = %q, content was altered", tricky, got)
	}
}

func TestSubjectCourseYearLevel(t *testing.T) {
	t.Parallel()

	got := Subject(`<b>Help</b> with 'login' & "signup"`)
	if strings.ContainsAny(got, `<>'"&`) {
		t.Errorf("Subject left dangerous characters: %q", got)
	}
	if !strings.Contains(got, "Help") {
		t.Errorf("Subject lost content: %q", got)
	}

	if got := Course(strings.Repeat("c", 300)); len(got) != MaxCourseLength {
		t.Errorf("Course len = %d, want %d", len(got), MaxCourseLength)
	}
	if got := YearLevel(strings.Repeat("y", 300)); len(got) != MaxYearLevelLength {
		t.Errorf("YearLevel len = %d, want %d", len(got), MaxYearLevelLength)
	}
}

func TestSelectValue(t *testing.T) {
	t.Parallel()

	allowed := []string{"bug", "feature", "other"}

	tests := []struct {
		input string
		want  string
	}{
		{"bug", "bug"},
		{"  BUG ", "bug"},
		{"Feature", "feature"},
		{"<script>", ""},
		{"bug'; DROP", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SelectValue(tt.input, allowed); got != tt.want {
			t.Errorf("SelectValue(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNewReportForm(t *testing.T) {
	t.Parallel()

	raw := map[string]string{
		"type":        "BUG",
		"subject":     "<b>Login broken</b>",
		"email":       " USER@Example.com ",
		"name":        "O'Connor<script>x()</script>",
		"description": "The login page throws an error & hangs.",
		"browser":     "chrome",
		"device":      "playstation",
	}

	form := NewReportForm(raw)

	if form.Type != "bug" {
		t.Errorf("Type = %q, want bug", form.Type)
	}
	if form.Subject != "Login broken" {
		t.Errorf("Subject = %q", form.Subject)
	}
	if form.Email != "user@example.com" {
		t.Errorf("Email = %q", form.Email)
	}
	if form.Name != "O'Connor" {
		t.Errorf("Name = %q", form.Name)
	}
	if form.Browser != "chrome" {
		t.Errorf("Browser = %q", form.Browser)
	}
	if form.Device != "" {
		t.Errorf("Device = %q, want empty for disallowed value", form.Device)
	}
	if form.Urgency != "medium" {
		t.Errorf("Urgency = %q, want default medium", form.Urgency)
	}

	if errs := form.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestReportForm_Validate(t *testing.T) {
	t.Parallel()

	form := NewReportForm(map[string]string{
		"type":        "<injected>",
		"subject":     "ab",
		"description": "too short",
	})

	errs := form.Validate()
	if len(errs) != 4 {
		t.Errorf("Validate() = %v, want 4 errors", errs)
	}
}
