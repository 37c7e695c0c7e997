// Package password scores password strength for live feedback during signup.
// It complements, not replaces, the backend's own password policy.
package password

import "strings"

// Strength buckets derived from the score.
const (
	StrengthWeak   = "weak"
	StrengthMedium = "medium"
	StrengthStrong = "strong"
)

const specialChars = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?"

// Requirements reports which individual checks a password satisfies.
type Requirements struct {
	MinLength      bool `json:"min_length"`
	HasUppercase   bool `json:"has_uppercase"`
	HasLowercase   bool `json:"has_lowercase"`
	HasNumber      bool `json:"has_number"`
	HasSpecialChar bool `json:"has_special_char"`
}

// met returns how many requirements are satisfied.
func (r Requirements) met() int {
	n := 0
	for _, ok := range []bool{r.MinLength, r.HasUppercase, r.HasLowercase, r.HasNumber, r.HasSpecialChar} {
		if ok {
			n++
		}
	}
	return n
}

// Validation is the full verdict for one password.
type Validation struct {
	Valid        bool         `json:"valid"`
	Requirements Requirements `json:"requirements"`
	Strength     string       `json:"strength"`
	Score        int          `json:"score"`
}

// Validate scores a password. Each satisfied requirement contributes 20
// points; a password is valid when it has at least 8 characters and meets
// three requirements in total.
func Validate(password string) Validation {
	req := Requirements{
		MinLength:      len(password) >= 8,
		HasUppercase:   strings.ContainsFunc(password, func(r rune) bool { return r >= 'A' && r <= 'Z' }),
		HasLowercase:   strings.ContainsFunc(password, func(r rune) bool { return r >= 'a' && r <= 'z' }),
		HasNumber:      strings.ContainsFunc(password, func(r rune) bool { return r >= '0' && r <= '9' }),
		HasSpecialChar: strings.ContainsAny(password, specialChars),
	}

	met := req.met()
	score := met * 20
	if score > 100 {
		score = 100
	}

	strength := StrengthWeak
	switch {
	case score >= 80:
		strength = StrengthStrong
	case score >= 60:
		strength = StrengthMedium
	}

	return Validation{
		Valid:        req.MinLength && met >= 3,
		Requirements: req,
		Strength:     strength,
		Score:        score,
	}
}
