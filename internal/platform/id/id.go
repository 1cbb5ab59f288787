// Package id generates identifiers for ledger records.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random version 4 UUID in canonical lowercase form.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return value.String(), nil
}

// Normalize parses value as a UUID and returns its canonical form.
func Normalize(value string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("parse id %q: %w", value, err)
	}
	return parsed.String(), nil
}

// Valid reports whether value is a well-formed UUID.
func Valid(value string) bool {
	_, err := Normalize(value)
	return err == nil
}
