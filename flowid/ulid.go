package flowid

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

type ulidGenerator struct {
	sync.Mutex
	r io.Reader
}

func NewULIDGenerator() Generator {
	return NewULIDGeneratorWithEntropyProvider(rand.New(rand.NewSource(time.Now().UTC().UnixNano())))
}

// NewULIDGeneratorWithEntropyProvider uses r as the source of the random
// part of the IDs. The reader is guarded by a mutex.
func NewULIDGeneratorWithEntropyProvider(r io.Reader) Generator {
	return &ulidGenerator{r: r}
}

func (g *ulidGenerator) Generate() (string, error) {
	g.Lock()
	id, err := ulid.New(ulid.Now(), g.r)
	g.Unlock()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (g *ulidGenerator) MustGenerate() string {
	id, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return id
}

func (g *ulidGenerator) IsValid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
