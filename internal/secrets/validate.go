package secrets

import (
	"fmt"
	"strings"
)

// Token length bounds accepted by ValidateFormat.
const (
	MinTokenLength = 20
	MaxTokenLength = 100
)

// ValidateFormat trims the secret and checks it is a plausible token:
// printable ASCII without spaces, between MinTokenLength and MaxTokenLength.
func ValidateFormat(secret string) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSecret)
	}
	for _, r := range secret {
		if r < 0x21 || r > 0x7e {
			return "", fmt.Errorf("%w: must contain printable ASCII characters only", ErrInvalidSecret)
		}
	}
	if n := len(secret); n < MinTokenLength || n > MaxTokenLength {
		return "", fmt.Errorf("%w: length %d outside %d-%d", ErrInvalidSecret, n, MinTokenLength, MaxTokenLength)
	}
	return secret, nil
}
