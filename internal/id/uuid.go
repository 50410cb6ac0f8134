// Package id generates entity identifiers.
package id

import "github.com/google/uuid"

// UUID generates random v4 identifiers.
type UUID struct{}

// NewID returns a new identifier string.
func (UUID) NewID() string { return uuid.NewString() }
