package core

// Logger is implemented by every logging backend of the application.
// Extra args are forwarded to the backend (errors, the request user, ...).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
