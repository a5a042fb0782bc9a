package domain

import "errors"

// Pipeline errors. Callers wrap these with the operation attempted and the
// underlying cause; policy (fatal vs recoverable) lives with the caller.
var (
	// ErrConnection indicates the store or generation service is
	// unreachable or failed its health probe.
	ErrConnection = errors.New("connection failed")

	// ErrStore indicates a store-side failure: collection missing,
	// malformed insert or query arguments, rejected batch.
	ErrStore = errors.New("store error")

	// ErrInvalidConfig indicates inconsistent chunking parameters.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDecode indicates persistently malformed streamed units. A single
	// bad unit is skipped; ErrDecode surfaces only when decoding keeps
	// failing.
	ErrDecode = errors.New("stream decode failed")

	// ErrGeneration indicates the generation service reported a terminal
	// error for the request.
	ErrGeneration = errors.New("generation failed")

	// ErrTimeout indicates generation exceeded its deadline before a
	// terminal signal arrived.
	ErrTimeout = errors.New("generation timed out")

	// ErrValidation indicates empty or invalid user input, caught before
	// any external call.
	ErrValidation = errors.New("invalid input")
)
