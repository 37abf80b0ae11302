package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// KeyGenerator produces random code keys from a fixed alphabet. The default
// alphabet drops 0/O and 1/I so keys survive being read over the phone.
type KeyGenerator struct {
	alphabet string
	length   int
}

func NewKeyGenerator(alphabet string, length int) (*KeyGenerator, error) {
	if length <= 0 {
		return nil, fmt.Errorf("code key length must be positive, got %d", length)
	}
	if len(alphabet) < 2 {
		return nil, fmt.Errorf("code key alphabet must have at least 2 characters, got %q", alphabet)
	}
	seen := make(map[rune]bool, len(alphabet))
	for _, r := range alphabet {
		if seen[r] {
			return nil, fmt.Errorf("code key alphabet has duplicate character %q", r)
		}
		seen[r] = true
	}
	return &KeyGenerator{alphabet: alphabet, length: length}, nil
}

// Generate returns a single random key. Uniqueness against stored codes is
// the caller's concern.
func (g *KeyGenerator) Generate() (string, error) {
	runes := []rune(g.alphabet)
	max := big.NewInt(int64(len(runes)))

	out := make([]rune, g.length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random index: %w", err)
		}
		out[i] = runes[n.Int64()]
	}
	return string(out), nil
}
