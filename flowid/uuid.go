package flowid

import "github.com/google/uuid"

type uuidGenerator struct{}

func NewUUIDGenerator() Generator {
	return uuidGenerator{}
}

func (uuidGenerator) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func (g uuidGenerator) MustGenerate() string {
	id, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return id
}

// IsValid accepts only the canonical, hyphenated form.
func (uuidGenerator) IsValid(id string) bool {
	if len(id) != 36 {
		return false
	}

	_, err := uuid.Parse(id)
	return err == nil
}
