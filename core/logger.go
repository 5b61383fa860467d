package core

// Logger is the application wide logger.
// args may hold errors, maps of extras and the acting Operator.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Operator identifies whoever is acting on the system (taken from the auth token).
type Operator struct {
	ID       string
	Username string
	Email    string
}
