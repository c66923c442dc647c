package core

// Identity is the acting principal attached to log records; implementations
// may forward it to an external error tracker.
type Identity struct {
	ID    string
	Name  string
	Email string
}

// Logger is any leveled logging sink.
// Implementations may inspect args for well-known types (errors, identities)
// and forward them to an external error tracker.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
