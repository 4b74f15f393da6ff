package admission

import "time"

// busyError signals admission saturation for 429 mapping.
type busyError struct{ waited time.Duration }

func (e busyError) Error() string {
	return "admission queue saturated after " + e.waited.String()
}

// IsBusy reports whether err indicates admission backpressure.
func IsBusy(err error) bool {
	_, ok := err.(busyError)
	return ok
}
