package analysis

import (
	"errors"

	"github.com/rustypig91/smart-chessboard-logic/internal/engine"
	"github.com/rustypig91/smart-chessboard-logic/internal/rules"
)

var (
	// ErrInvalidInput rejects malformed fingerprints or notation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDepthNotReached rejects a search that ended before the
	// requested depth without a mate score; the cache entry is
	// discarded so a later request retries.
	ErrDepthNotReached = errors.New("search did not reach requested depth")
	// ErrIncompleteAnalysis rejects a move evaluation whose component
	// results are missing a score or carry non-comparable score types.
	ErrIncompleteAnalysis = errors.New("incomplete analysis")

	// The rest of the taxonomy originates in the packages where the
	// conditions arise; aliased here so callers match everything in one
	// place with errors.Is.
	ErrInvalidMove     = rules.ErrInvalidMove
	ErrInvalidNotation = rules.ErrInvalidNotation
	ErrCancelled       = engine.ErrCancelled
	ErrWorkerFailure   = engine.ErrWorkerFailure
	ErrTerminated      = engine.ErrTerminated
)
