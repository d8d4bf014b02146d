/*
Package randx provides cryptographically secure random identifiers.

It generates the opaque session tokens handed to clients on login and the
UUID message IDs used by the broadcaster.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars is the character set used for token suffixes.
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// TokenSuffixLength is the number of random Base62 characters appended
	// to the UUID part of a session token.
	TokenSuffixLength = 16
)

// SessionToken generates an opaque session token: a UUID v4 plus a random
// Base62 suffix, so a token never collides even if the UUID source were
// predictable.
func SessionToken() (string, error) {
	suffix, err := base62String(TokenSuffixLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate session token suffix: %w", err)
	}

	return uuid.New().String() + "-" + suffix, nil
}

// MessageID generates a UUID v4 string identifying one broadcast message.
func MessageID() string {
	return uuid.New().String()
}

// base62String returns length cryptographically random Base62 characters.
func base62String(length int) (string, error) {
	max := big.NewInt(int64(len(Base62Chars)))
	result := make([]byte, length)

	for i := range length {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// IsValidToken reports whether the string has the shape of a token issued
// by SessionToken. It performs no store lookup.
func IsValidToken(token string) bool {
	idx := strings.LastIndex(token, "-")
	if idx < 0 || len(token)-idx-1 != TokenSuffixLength {
		return false
	}

	if _, err := uuid.Parse(token[:idx]); err != nil {
		return false
	}

	for _, char := range token[idx+1:] {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}
