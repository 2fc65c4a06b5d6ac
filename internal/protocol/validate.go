package protocol

import "fmt"

// Wire field limits.
const (
	MaxUsernameLen    = 20
	MaxChannelLen     = 20
	MaxSecretLen      = 128
	MaxDisplayNameLen = 20
	MaxContentLen     = 1400
)

// ValidateUsername checks an identifier field: 1..MaxUsernameLen characters
// from [A-Za-z0-9-].
func ValidateUsername(v string) error {
	return validateIdentifier("username", v, MaxUsernameLen)
}

// ValidateChannel checks a channel identifier, same class as usernames.
func ValidateChannel(v string) error {
	return validateIdentifier("channel", v, MaxChannelLen)
}

// ValidateSecret checks a secret: 1..MaxSecretLen characters from [A-Za-z0-9-].
func ValidateSecret(v string) error {
	return validateIdentifier("secret", v, MaxSecretLen)
}

// ValidateDisplayName checks a display name: 1..MaxDisplayNameLen printable
// ASCII characters excluding space.
func ValidateDisplayName(v string) error {
	if len(v) == 0 {
		return FieldViolationError{Field: "display name", Reason: "empty"}
	}
	if len(v) > MaxDisplayNameLen {
		return FieldViolationError{
			Field:  "display name",
			Reason: fmt.Sprintf("longer than %d characters", MaxDisplayNameLen),
		}
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x21 || v[i] > 0x7E {
			return FieldViolationError{
				Field:  "display name",
				Reason: fmt.Sprintf("byte 0x%02x at offset %d outside printable range", v[i], i),
			}
		}
	}
	return nil
}

// ValidateContent checks message content: 1..MaxContentLen printable ASCII
// characters, space and line feed included.
func ValidateContent(v string) error {
	if len(v) == 0 {
		return FieldViolationError{Field: "message content", Reason: "empty"}
	}
	if len(v) > MaxContentLen {
		return FieldViolationError{
			Field:  "message content",
			Reason: fmt.Sprintf("longer than %d characters", MaxContentLen),
		}
	}
	for i := 0; i < len(v); i++ {
		if v[i] == '\n' {
			continue
		}
		if v[i] < 0x20 || v[i] > 0x7E {
			return FieldViolationError{
				Field:  "message content",
				Reason: fmt.Sprintf("byte 0x%02x at offset %d outside printable range", v[i], i),
			}
		}
	}
	return nil
}

func validateIdentifier(field, v string, maxLen int) error {
	if len(v) == 0 {
		return FieldViolationError{Field: field, Reason: "empty"}
	}
	if len(v) > maxLen {
		return FieldViolationError{
			Field:  field,
			Reason: fmt.Sprintf("longer than %d characters", maxLen),
		}
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return FieldViolationError{
				Field:  field,
				Reason: fmt.Sprintf("character %q at offset %d outside [A-Za-z0-9-]", c, i),
			}
		}
	}
	return nil
}
