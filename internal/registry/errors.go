package registry

// modelNotFoundError maps to 404: the id is not in the static registry.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// dispatchBusyError signals the per-model token is held past the bounded
// wait. Distinct from global admission busy so logs and metrics can tell
// the two saturation kinds apart; both map to 429.
type dispatchBusyError struct{ modelID string }

func (e dispatchBusyError) Error() string { return "model busy: " + e.modelID }

// IsDispatchBusy reports whether err indicates per-model saturation.
func IsDispatchBusy(err error) bool {
	_, ok := err.(dispatchBusyError)
	return ok
}
