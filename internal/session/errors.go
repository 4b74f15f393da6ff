package session

// modelConflictError signals a session id reused against a different model.
type modelConflictError struct {
	sessionID string
	have      string
	want      string
}

func (e modelConflictError) Error() string {
	return "session " + e.sessionID + " belongs to model " + e.have + ", not " + e.want
}

// ErrModelConflict constructs the conflict error for callers that already
// hold the loaded transcript.
func ErrModelConflict(sessionID, have, want string) error {
	return modelConflictError{sessionID: sessionID, have: have, want: want}
}

// IsModelConflict reports whether err indicates cross-model session reuse.
func IsModelConflict(err error) bool {
	_, ok := err.(modelConflictError)
	return ok
}
