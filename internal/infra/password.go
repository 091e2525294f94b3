package infra

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// DefaultPasswordLength is the length of generated lock passwords.
const DefaultPasswordLength = 24

// Letters and digits only: chpasswd input must not contain ':' or newlines.
const passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomPasswordGenerator implements domain.PasswordGenerator.
type RandomPasswordGenerator struct {
	length int
}

// NewPasswordGenerator creates a generator of length-character passwords.
func NewPasswordGenerator(length int) *RandomPasswordGenerator {
	if length <= 0 {
		length = DefaultPasswordLength
	}
	return &RandomPasswordGenerator{length: length}
}

// Generate returns a cryptographically random password nobody knows.
func (g *RandomPasswordGenerator) Generate() (string, error) {
	out := make([]byte, g.length)
	for i := range out {
		n, err := randomInt(len(passwordAlphabet))
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		out[i] = passwordAlphabet[n]
	}
	return string(out), nil
}

// randomInt returns a cryptographically random int in [0, max).
func randomInt(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

// SystemClock implements domain.Clock with the wall clock.
type SystemClock struct{}

func (SystemClock) Now() timing.DateTime { return timing.Now() }

// Ensure implementations satisfy interfaces
var _ domain.PasswordGenerator = (*RandomPasswordGenerator)(nil)
var _ domain.Clock = SystemClock{}
