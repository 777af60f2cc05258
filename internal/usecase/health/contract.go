package health

import "context"

// DBPinger checks correlation store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ConnectionChecker reports whether the chat bridge session is up.
type ConnectionChecker interface {
	Connected() bool
}
