package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	tokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	tokenLength   = 48
)

// GenerateSecureToken returns a random URL-safe secret for email verification
// and password reset links.
func GenerateSecureToken() (string, error) {
	return gonanoid.Generate(tokenAlphabet, tokenLength)
}
