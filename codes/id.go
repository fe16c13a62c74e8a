package codes

import (
	"crypto/rand"
	"fmt"
)

// CodeLength is the length of generated code strings.
const CodeLength = 20

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newCodeID returns a cryptographically random alphanumeric string.
// Rejection sampling keeps the distribution uniform over the alphabet.
func newCodeID(length int) (string, error) {
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	// 248 = largest multiple of len(codeAlphabet) below 256
	const limit = 248
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
