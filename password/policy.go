package password

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// MaxEmailLength is the longest accepted address (RFC 5321 path limit).
const MaxEmailLength = 254

const specialCharacters = "!@#$%^&*()_+-=[]{}|;':\",./<>?`~"

var emailPattern = regexp.MustCompile(
	`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@` +
		`[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?` +
		`(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`,
)

// PolicyError is a single input policy violation. Message is safe to show to the user.
type PolicyError struct {
	Code    string
	Message string
}

func (e *PolicyError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Rule validates a password according to one policy rule.
type Rule interface {
	Validate(password string) error
}

// RuleFunc adapts a function to a Rule.
type RuleFunc func(password string) error

// Validate calls f.
func (f RuleFunc) Validate(password string) error {
	return f(password)
}

// PolicyConfig configures NewPolicy. Zero MinScore disables the strength estimate.
type PolicyConfig struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	MinScore       int
}

// DefaultPolicyConfig returns length 8..128, no composition rules, zxcvbn score >= 2.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MinLength: 8,
		MaxLength: 128,
		MinScore:  2,
	}
}

// Policy applies rules in order and reports the first violation.
type Policy struct {
	minScore int
	rules    []Rule
}

// NewPolicy builds the rule chain described by cfg, followed by any extra rules.
func NewPolicy(cfg PolicyConfig, extra ...Rule) *Policy {
	rules := []Rule{requiredRule(), MinLengthRule(cfg.MinLength)}
	if cfg.MaxLength > 0 {
		rules = append(rules, MaxLengthRule(cfg.MaxLength))
	}
	if cfg.RequireUpper {
		rules = append(rules, containsRule("uppercase", "an uppercase letter", unicode.IsUpper))
	}
	if cfg.RequireLower {
		rules = append(rules, containsRule("lowercase", "a lowercase letter", unicode.IsLower))
	}
	if cfg.RequireDigit {
		rules = append(rules, containsRule("digit", "a digit", unicode.IsDigit))
	}
	if cfg.RequireSpecial {
		rules = append(rules, containsRule("special", "a special character", func(r rune) bool {
			return strings.ContainsRune(specialCharacters, r)
		}))
	}
	rules = append(rules, extra...)

	return &Policy{minScore: cfg.MinScore, rules: rules}
}

// Validate checks password. userInputs (email, name) penalise passwords derived from them.
func (p *Policy) Validate(password string, userInputs ...string) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}
	for _, rule := range p.rules {
		if err := rule.Validate(password); err != nil {
			return err
		}
	}
	return StrengthRule(p.minScore, userInputs...).Validate(password)
}

func requiredRule() Rule {
	return RuleFunc(func(password string) error {
		if password == "" {
			return &PolicyError{Code: "required", Message: "password is required"}
		}
		return nil
	})
}

// MinLengthRule rejects passwords shorter than min characters.
func MinLengthRule(min int) Rule {
	return RuleFunc(func(password string) error {
		if len([]rune(password)) < min {
			return &PolicyError{
				Code:    "min_length",
				Message: fmt.Sprintf("password must be at least %d characters", min),
			}
		}
		return nil
	})
}

// MaxLengthRule rejects passwords longer than max characters.
func MaxLengthRule(max int) Rule {
	return RuleFunc(func(password string) error {
		if len([]rune(password)) > max {
			return &PolicyError{
				Code:    "max_length",
				Message: fmt.Sprintf("password must be at most %d characters", max),
			}
		}
		return nil
	})
}

func containsRule(code, what string, match func(rune) bool) Rule {
	return RuleFunc(func(password string) error {
		for _, r := range password {
			if match(r) {
				return nil
			}
		}
		return &PolicyError{
			Code:    code,
			Message: "password must contain at least one " + what,
		}
	})
}

// StrengthRule enforces a minimum zxcvbn score (0..4).
func StrengthRule(minScore int, userInputs ...string) Rule {
	return RuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if minScore > 4 {
			minScore = 4
		}

		result := zxcvbn.PasswordStrength(password, userInputs)
		if result.Score >= minScore {
			return nil
		}

		return &PolicyError{
			Code:    "weak",
			Message: "password is too easy to guess",
		}
	})
}

// ValidateEmail checks presence, length and a simplified RFC 5322 shape.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &PolicyError{Code: "email_required", Message: "email is required"}
	}
	if len(email) > MaxEmailLength {
		return &PolicyError{
			Code:    "email_length",
			Message: fmt.Sprintf("email must be at most %d characters", MaxEmailLength),
		}
	}
	if !emailPattern.MatchString(email) {
		return &PolicyError{Code: "email_format", Message: "invalid email format"}
	}
	return nil
}
