package games

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

const (
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	tokenLength   = 8
)

// bytes at or above this are redrawn so every symbol is equally likely
const tokenByteLimit = 256 - 256%len(tokenAlphabet)

// NewToken returns a random lowercase alphanumeric game id.
func NewToken() string {
	return newToken(rand.Reader)
}

func newToken(src io.Reader) string {
	out := make([]byte, 0, tokenLength)
	buf := make([]byte, tokenLength)
	for len(out) < tokenLength {
		if _, err := io.ReadFull(src, buf); err != nil {
			panic(fmt.Errorf("crypto/rand unavailable: %w", err))
		}
		for _, b := range buf {
			if int(b) >= tokenByteLimit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == tokenLength {
				break
			}
		}
	}
	return string(out)
}

var trailingNumber = regexp.MustCompile(`^(.*) (\d+)$`)

// duplicateName bumps a trailing number ("Game 3" -> "Game 4") or appends " - 2".
func duplicateName(original string) string {
	if m := trailingNumber.FindStringSubmatch(original); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			return fmt.Sprintf("%s %d", m[1], n+1)
		}
	}
	return original + " - 2"
}
