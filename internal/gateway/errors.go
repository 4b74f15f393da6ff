package gateway

// storeUnavailableError hides raw store connectivity faults from callers;
// the HTTP layer maps it to 503 and the full cause stays in the logs.
type storeUnavailableError struct{}

func (storeUnavailableError) Error() string { return "shared store unavailable" }

// IsStoreUnavailable reports whether err indicates the shared store could
// not be reached.
func IsStoreUnavailable(err error) bool {
	_, ok := err.(storeUnavailableError)
	return ok
}

// generationFault wraps an engine-level failure mid-generation.
type generationFault struct{ cause error }

func (e generationFault) Error() string { return "generation failed: " + e.cause.Error() }

func (e generationFault) Unwrap() error { return e.cause }

// IsGenerationFault reports whether err is an engine failure surfaced as a
// server error.
func IsGenerationFault(err error) bool {
	_, ok := err.(generationFault)
	return ok
}
