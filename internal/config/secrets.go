package config

import (
	"fmt"
	"strings"
	"unicode"
)

// SecretStrength represents the strength level of a secret
type SecretStrength int

const (
	SecretStrengthWeak SecretStrength = iota
	SecretStrengthMedium
	SecretStrengthStrong
)

// String returns a human-readable strength
func (s SecretStrength) String() string {
	switch s {
	case SecretStrengthWeak:
		return "Weak"
	case SecretStrengthMedium:
		return "Medium"
	case SecretStrengthStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// placeholders are never accepted as secrets, even as substrings
var placeholders = []string{
	"changeme",
	"please_change_me",
	"your_api_key",
	"your_secret",
	"password",
	"secret",
	"admin",
	"test",
	"postgres",
	"stratforge",
	"example",
	"sample",
	"demo",
	"localhost",
	"default",
}

var weakPasswords = map[string]bool{
	"123456": true, "12345678": true, "qwerty": true, "abc123": true,
	"letmein": true, "trustno1": true, "iloveyou": true, "passw0rd": true,
	"123123": true, "654321": true, "qazwsx": true, "monkey": true,
}

// SecretValidationResult contains the result of secret validation
type SecretValidationResult struct {
	IsValid  bool
	Strength SecretStrength
	Errors   []string
	Warnings []string
}

func (r *SecretValidationResult) fail(format string, args ...interface{}) {
	r.IsValid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// ValidateSecret checks a secret for placeholders, known weak values, length
// and character variety. requireStrong rejects anything below medium.
func ValidateSecret(secret, name string, minLength int, requireStrong bool) SecretValidationResult {
	result := SecretValidationResult{IsValid: true, Strength: SecretStrengthWeak}

	if secret == "" {
		result.fail("%s cannot be empty", name)
		return result
	}

	lower := strings.ToLower(secret)
	if weakPasswords[lower] {
		result.fail("%s is a commonly known weak password", name)
		return result
	}
	for _, p := range placeholders {
		if strings.Contains(lower, p) {
			result.fail("%s appears to be a placeholder value (%s)", name, p)
			return result
		}
	}
	if len(secret) < minLength {
		result.fail("%s must be at least %d characters (got %d)", name, minLength, len(secret))
		return result
	}

	classes := characterClasses(secret)
	switch {
	case len(secret) >= 16 && classes >= 3:
		result.Strength = SecretStrengthStrong
	case len(secret) >= 12 && classes >= 2:
		result.Strength = SecretStrengthMedium
	}

	if hasSequentialChars(secret) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s contains sequential characters (e.g., 123, abc)", name))
		if result.Strength == SecretStrengthMedium {
			result.Strength = SecretStrengthWeak
		}
	}
	if hasRepeatedChars(secret, 3) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s contains repeated characters", name))
	}

	if requireStrong {
		switch result.Strength {
		case SecretStrengthWeak:
			result.fail("%s is too weak for production use (use 12+ characters from at least 3 character classes)", name)
		case SecretStrengthMedium:
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s has medium strength", name))
		}
	}

	return result
}

// characterClasses counts upper, lower, digit and symbol classes present
func characterClasses(s string) int {
	var upper, lower, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	n := 0
	for _, ok := range []bool{upper, lower, digit, special} {
		if ok {
			n++
		}
	}
	return n
}

// hasSequentialChars reports runs like "123" or "abc"
func hasSequentialChars(s string) bool {
	lower := strings.ToLower(s)
	for i := 0; i+2 < len(lower); i++ {
		a, b, c := lower[i], lower[i+1], lower[i+2]
		alnum := (unicode.IsDigit(rune(a)) || unicode.IsLetter(rune(a))) && b == a+1 && c == a+2
		if alnum {
			return true
		}
	}
	return false
}

// hasRepeatedChars reports the same byte repeated n times in a row
func hasRepeatedChars(s string, n int) bool {
	if n <= 1 {
		return len(s) > 0
	}
	run := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// ValidateProductionSecrets validates every configured secret for production
func ValidateProductionSecrets(cfg *Config) ValidationErrors {
	const minProductionLength = 12
	var errs ValidationErrors

	check := func(field, name, secret string, minLength int, strong bool) {
		if secret == "" {
			return
		}
		result := ValidateSecret(secret, name, minLength, strong)
		for _, msg := range result.Errors {
			errs = append(errs, ValidationError{Field: field, Message: msg})
		}
	}

	check("database.password", "Database password", cfg.Database.Password, minProductionLength, true)
	check("redis.password", "Redis password", cfg.Redis.Password, minProductionLength, true)
	// engine keys are generated by the engine and need not follow password rules
	check("backtest.api_key", "Backtest engine API key", cfg.Backtest.APIKey, 10, false)

	return errs
}
