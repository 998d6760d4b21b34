package domain

import "errors"

// Error taxonomy shared by the ingestion and retrieval layers. Call sites wrap
// the underlying cause with fmt.Errorf("%w: %w", ErrX, err) so both stay
// reachable through errors.Is.
var (
	// ErrExtraction indicates a source could not be fetched or parsed.
	ErrExtraction = errors.New("extraction failed")
	// ErrIndexing indicates chunks could not be embedded or stored.
	ErrIndexing = errors.New("indexing failed")
	// ErrQuery indicates the index could not answer a query.
	ErrQuery = errors.New("query failed")
	// ErrGeneration indicates a summarizer or answerer call failed.
	ErrGeneration = errors.New("generation failed")
	// ErrConfiguration indicates invalid construction parameters.
	ErrConfiguration = errors.New("invalid configuration")
)
