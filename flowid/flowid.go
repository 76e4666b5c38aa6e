/*
Package flowid generates the request IDs, that identify a request through
its complete lifecycle, in the access log and in the upstream services.

The gateway forwards an incoming X-Request-ID header when it is valid
for the configured generator, otherwise it generates a new one. The ID is
sent to the upstream as X-Request-ID and logged with the access log
entry.

Three generators are available:

	uuid      random version 4 UUIDs (default)
	ulid      lexicographically sortable ULIDs
	standard  random IDs of the 64 character alphabet [0-9a-zA-Z+-]
*/
package flowid

import (
	"fmt"
	"net/http"
)

const HeaderName = "X-Request-ID"

const (
	UUID     = "uuid"
	ULID     = "ulid"
	Standard = "standard"
)

// Generator is implemented by types that can generate request IDs.
type Generator interface {
	// Generate returns a new ID using the implementation specific format or an error in case of failure.
	Generate() (string, error)
	// MustGenerate behaves like Generate but panics on failure instead of returning an error.
	MustGenerate() string
	// IsValid checks if the given ID follows the format of the generator.
	IsValid(string) bool
}

// New returns the generator of the given kind. An empty kind selects
// the UUID generator.
func New(kind string) (Generator, error) {
	switch kind {
	case "", UUID:
		return NewUUIDGenerator(), nil
	case ULID:
		return NewULIDGenerator(), nil
	case Standard:
		return NewStandardGenerator(defaultLen)
	default:
		return nil, fmt.Errorf("invalid request id generator: %q", kind)
	}
}

// Ensure returns the request ID of r, when it is valid for g, or sets a
// newly generated one.
func Ensure(g Generator, r *http.Request) (string, error) {
	if id := r.Header.Get(HeaderName); g.IsValid(id) {
		return id, nil
	}

	id, err := g.Generate()
	if err != nil {
		return "", err
	}

	r.Header.Set(HeaderName, id)
	return id, nil
}
