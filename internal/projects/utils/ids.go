package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// ErrIDExhausted is returned by ClaimTextID when every candidate was taken.
var ErrIDExhausted = errors.New("no free id after retries")

// textAlphabet leaves out 0, 1, i, l and o so ids survive being read aloud.
const textAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

// NewID returns prefix_ followed by 32 hex chars. Used for diagrams and versions.
func NewID(prefix string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}

// NewTextID returns a short shareable id such as "uml-k7qm-x3tp".
func NewTextID(prefix string) (string, error) {
	buf := make([]byte, 0, 9)
	for i := 0; i < 8; i++ {
		if i == 4 {
			buf = append(buf, '-')
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(textAlphabet))))
		if err != nil {
			return "", err
		}
		buf = append(buf, textAlphabet[n.Int64()])
	}
	return fmt.Sprintf("%s-%s", prefix, buf), nil
}

// ClaimTextID draws up to attempts ids with NewTextID and hands each to
// claim until one is accepted. claim reports false for an id that is
// already in use; any error stops the loop.
func ClaimTextID(prefix string, attempts int, claim func(id string) (bool, error)) (string, error) {
	for i := 0; i < attempts; i++ {
		id, err := NewTextID(prefix)
		if err != nil {
			return "", err
		}
		ok, err := claim(id)
		if err != nil {
			return "", err
		}
		if ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrIDExhausted, prefix)
}
