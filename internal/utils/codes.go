package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet for human-entered codes. Drops 0/O, 1/I/L so codes survive being
// read over the phone.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	InviteCodeLength       = 6
	PractitionerCodeLength = 8
)

func randomCode(length int) (string, error) {
	var builder strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for range length {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		builder.WriteByte(codeAlphabet[n.Int64()])
	}
	return builder.String(), nil
}

// GenerateInviteCode returns the short code a practitioner hands to a client.
// Only the bcrypt hash of it is ever persisted.
func GenerateInviteCode() (string, error) {
	return randomCode(InviteCodeLength)
}

// GeneratePractitionerCode returns the shareable lookup code assigned to a
// practitioner on approval.
func GeneratePractitionerCode() (string, error) {
	return randomCode(PractitionerCodeLength)
}

// NormalizeCode folds user input into the canonical code form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
