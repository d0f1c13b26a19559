// Package idgen makes short random issue ids with nanoid.
package idgen

import (
	"errors"
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// ErrExhausted is returned when every attempt produced an id already in use.
var ErrExhausted = errors.New("no free id")

// Generator makes ids of the form Prefix followed by Length characters from
// Alphabet. The default alphabet is lower case so that ids stay distinct as
// file names on case-insensitive filesystems.
type Generator struct {
	Prefix   string
	Alphabet string
	Length   int
	Attempts int
}

// Default is the generator used for issues created without an id.
var Default = Generator{
	Prefix:   "kd-",
	Alphabet: "0123456789abcdefghijklmnopqrstuvwxyz",
	Length:   8,
	Attempts: 5,
}

// New returns one random id.
func (g Generator) New() (string, error) {
	s, err := nanoid.Generate(g.Alphabet, g.Length)
	if err != nil {
		return "", fmt.Errorf("generating id: %w", err)
	}
	return g.Prefix + s, nil
}

// Unique returns a random id that taken reports as free.
func (g Generator) Unique(taken func(id string) (bool, error)) (string, error) {
	for range max(g.Attempts, 1) {
		id, err := g.New()
		if err != nil {
			return "", err
		}
		used, err := taken(id)
		if err != nil {
			return "", fmt.Errorf("checking id %s: %w", id, err)
		}
		if !used {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w with prefix %q", ErrExhausted, g.Prefix)
}
