// Package util provides shared utility functions.
package util

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID prefixes for IdeaForge entities.
const (
	ProjectPrefix  = "proj-"
	TaskPrefix     = "task-"
	ArtifactPrefix = "art-"
)

// Standard ID lengths.
const (
	// ProjectIDLength is the full length of a project ID (e.g., "proj-abcdef12").
	ProjectIDLength = 13 // "proj-" (5) + 8 hex chars
	// DefaultShortIDLength is the default number of characters for short IDs.
	DefaultShortIDLength = 8
	// MaxAmbiguousCandidates is the max number of candidates to show in ambiguous error.
	MaxAmbiguousCandidates = 5
)

// Errors returned by ID resolution functions.
var (
	ErrAmbiguousID = errors.New("ambiguous ID prefix")
	ErrNotFound    = errors.New("not found")
)

// NewID returns prefix followed by the first 8 hex chars of a random UUID.
func NewID(prefix string) string {
	return prefix + uuid.New().String()[:8]
}

// NewProjectID returns a fresh project ID.
func NewProjectID() string { return NewID(ProjectPrefix) }

// NewTaskID returns a fresh task ID.
func NewTaskID() string { return NewID(TaskPrefix) }

// NewArtifactID returns a fresh artifact ID.
func NewArtifactID() string { return NewID(ArtifactPrefix) }

// ShortID returns a shortened version of an ID.
// If n is 0 or negative, DefaultShortIDLength (8) is used.
//
// Examples:
//
//	ShortID("task-abcdef12", 0) → "task-abc"
//	ShortID("proj-xyz", 20) → "proj-xyz"
func ShortID(id string, n int) string {
	if n <= 0 {
		n = DefaultShortIDLength
	}
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// IDPrefixResolver finds project IDs by prefix.
// This is implemented by memory.SQLiteStore.
type IDPrefixResolver interface {
	FindProjectIDsByPrefix(ctx context.Context, prefix string) ([]string, error)
}

// ResolveProjectID resolves a project ID or prefix to a full project ID.
//
// Resolution rules:
//  1. If idOrPrefix matches exactly one project ID prefix, return that ID.
//  2. If multiple matches, return ErrAmbiguousID with candidates.
//  3. If no matches, return ErrNotFound.
func ResolveProjectID(ctx context.Context, resolver IDPrefixResolver, idOrPrefix string) (string, error) {
	if idOrPrefix == "" {
		return "", fmt.Errorf("project ID: %w", ErrNotFound)
	}

	normalized := idOrPrefix
	if !strings.HasPrefix(normalized, ProjectPrefix) {
		normalized = ProjectPrefix + normalized
	}

	candidates, err := resolver.FindProjectIDsByPrefix(ctx, normalized)
	if err != nil {
		return "", fmt.Errorf("find project IDs: %w", err)
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("project with prefix %q: %w", normalized, ErrNotFound)
	case 1:
		return candidates[0], nil
	default:
		shown := candidates
		if len(shown) > MaxAmbiguousCandidates {
			shown = shown[:MaxAmbiguousCandidates]
		}
		return "", fmt.Errorf("%w: prefix %q matches %d projects: %v",
			ErrAmbiguousID, normalized, len(candidates), shown)
	}
}
