package httpapi

import "context"

// maxBodyBytes controls the maximum allowed request body size for JSON
// endpoints. Default 1 MiB.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// authToken is the bearer token required on inference endpoints. Empty
// disables authentication.
var authToken string

// SetAuthToken installs the bearer token checked before admission.
func SetAuthToken(tok string) { authToken = tok }

// serverBaseCtx is a process-level context canceled on shutdown, joined
// with each request context so draining cancels in-flight generations.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// readinessProbe reports whether dependencies (the shared store) are
// reachable. Nil means always ready.
var readinessProbe func(context.Context) error

// SetReadinessProbe installs the dependency check behind /readyz.
func SetReadinessProbe(probe func(context.Context) error) { readinessProbe = probe }

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
}

// joinContexts returns a context canceled when either a or b is done.
// The returned cancel must be called when the handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(a, cancel)
	stop2 := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		stop2()
		cancel()
	}
}
