// Package security keeps credentials out of logs, errors and command output.
package security

import (
	"regexp"
	"strings"
)

// sensitivePatterns match secrets that show up inside URLs and key=value text.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(api[_-]?key|api[_-]?secret|secret|passphrase|access[_-]?token|token|password)=([^\s&"']+)`),
	regexp.MustCompile(`/bot(\d+:[A-Za-z0-9_-]+)`),
	regexp.MustCompile(`hooks\.slack\.com/services/([A-Za-z0-9/]+)`),
}

// MaskCredential masks a credential for display, keeping a few characters
// at each end of long values.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact replaces every known secret in input, and anything that looks
// like a token, with a fully masked value.
func Redact(input string, secrets ...string) string {
	result := input
	for _, s := range secrets {
		if len(s) < 4 {
			continue
		}
		result = strings.ReplaceAll(result, s, strings.Repeat("*", 8))
	}

	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			secret := sub[len(sub)-1]
			return strings.Replace(match, secret, strings.Repeat("*", 8), 1)
		})
	}
	return result
}

// redactedError hides secrets in the message of an error while keeping
// it unwrappable.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// RedactError returns err with its message passed through Redact. A nil
// error stays nil.
func RedactError(err error, secrets ...string) error {
	if err == nil {
		return nil
	}
	msg := Redact(err.Error(), secrets...)
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}
