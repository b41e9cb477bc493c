package domain

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	AccessCodeLength   = 8
	accessCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var accessCodePattern = regexp.MustCompile(`^[A-Z0-9]{4,32}$`)

// NewAccessCode returns a random guest access code of AccessCodeLength
// characters drawn uniformly from [A-Z0-9].
func NewAccessCode() (string, error) {
	max := big.NewInt(int64(len(accessCodeAlphabet)))
	var b strings.Builder
	b.Grow(AccessCodeLength)
	for i := 0; i < AccessCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(accessCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeAccessCode upper-cases a caller-supplied code and reports
// whether it is usable.
func NormalizeAccessCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !accessCodePattern.MatchString(code) {
		return "", false
	}
	return code, true
}
