// Package idgen generates the identifiers menujobs assigns itself: events
// for jobs requested through the API, menu imports and uploaded images.
// Provider events keep the provider's id.
package idgen

import (
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Kind selects the prefix of a generated ID.
type Kind string

const (
	Event  Kind = "evt"
	Import Kind = "imp"
	Image  Kind = "img"
)

// Alphabet defines the character set used for the random portion of the ID.
// It avoids characters that need escaping in object keys or NATS subjects.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
const Length = 16

// New returns a fresh ID of the form "<kind>_<random>".
func New(kind Kind) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return string(kind) + "_" + id, nil
}

// KindOf returns the kind encoded in id, if any.
func KindOf(id string) (Kind, bool) {
	prefix, _, ok := strings.Cut(id, "_")
	if !ok {
		return "", false
	}
	switch k := Kind(prefix); k {
	case Event, Import, Image:
		return k, true
	}
	return "", false
}
