package flowid

import (
	"fmt"
	"math/rand/v2"
	"regexp"
)

const (
	flowIdAlphabet  = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ-+"
	alphabetBitMask = 63
	MaxLength       = 64
	MinLength       = 8
	defaultLen      = 16
)

var (
	ErrInvalidLen       = fmt.Errorf("invalid length, must be between %d and %d", MinLength, MaxLength)
	standardFlowIDRegex = regexp.MustCompile(`^[0-9a-zA-Z+-]+$`)
)

type standardGenerator struct {
	length int
}

// NewStandardGenerator creates a generator of IDs with length l. A single
// call to rand.Int64 provides the 6 bit chunks of up to 10 characters.
// It is safe for concurrent use.
func NewStandardGenerator(l int) (Generator, error) {
	if l < MinLength || l > MaxLength {
		return nil, ErrInvalidLen
	}

	return &standardGenerator{length: l}, nil
}

func (g *standardGenerator) Generate() (string, error) {
	u := make([]byte, g.length)
	for i := 0; i < g.length; i += 10 {
		b := rand.Int64() // #nosec
		for e := 0; e < 10 && i+e < g.length; e++ {
			c := byte(b>>uint(6*e)) & alphabetBitMask // 6 bits only
			u[i+e] = flowIdAlphabet[c]
		}
	}

	return string(u), nil
}

func (g *standardGenerator) MustGenerate() string {
	id, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return id
}

func (g *standardGenerator) IsValid(id string) bool {
	return len(id) >= MinLength && len(id) <= MaxLength && standardFlowIDRegex.MatchString(id)
}
