// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "errors"

// Error taxonomy shared by every stage. Callers compare with errors.Is;
// stages wrap these with context using fmt.Errorf("...: %w", ...).
var (
	// ErrParsing reports an upstream document that could not be read.
	ErrParsing = errors.New("document parsing failed")

	// ErrEmbedding reports an embedding provider failure. Fatal for the
	// operation that triggered it.
	ErrEmbedding = errors.New("embedding failed")

	// ErrNotFitted reports a query embedding requested from a provider that
	// has not seen its corpus yet.
	ErrNotFitted = errors.New("embedding provider not fitted")

	// ErrIndexNotFound reports a missing or unreadable index reference.
	ErrIndexNotFound = errors.New("index not found")

	// ErrGenerationFormat reports a model reply that could not be parsed.
	// Callers may retry the whole call.
	ErrGenerationFormat = errors.New("generation reply not parseable")

	// ErrValidation reports a constructed value that violates an invariant.
	ErrValidation = errors.New("validation failed")

	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionAlreadyComplete = errors.New("session already complete")
	ErrSessionPaused          = errors.New("session is paused")
	ErrSessionNotComplete     = errors.New("session not complete")
	ErrNoCurrentQuestion      = errors.New("no current question")

	// ErrConcurrentModification reports a lost compare-and-swap on a
	// session. The caller may retry the operation.
	ErrConcurrentModification = errors.New("session modified concurrently")
)

// IsRetriable reports whether err is worth retrying as a whole call.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrGenerationFormat)
}
