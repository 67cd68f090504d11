package service

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	joinCodeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	joinCodeLen      = 6
)

// generateJoinCode — 6 случайных символов [0-9a-z] из crypto/rand.
func generateJoinCode() (string, error) {
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	var b strings.Builder
	b.Grow(joinCodeLen)
	for i := 0; i < joinCodeLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(joinCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// joinCodeMatches сравнивает без учёта регистра: хранимый код всегда в нижнем регистре.
func joinCodeMatches(stored, supplied string) bool {
	return stored == strings.ToLower(strings.TrimSpace(supplied))
}
