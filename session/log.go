package session

import "github.com/btcsuite/btclog"

// sessionLog is the package-level logger, disabled until UseLogger is
// called (normally via the root tpe.SetupLoggers wiring).
var sessionLog btclog.Logger = btclog.Disabled

// DisableLog disables all logging output.
func DisableLog() {
	sessionLog = btclog.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	sessionLog = logger
}

// logClosure is used to provide a closure over expensive logging operations
// so they aren't performed when the logging level doesn't warrant it.
type logClosure func() string

// String invokes the underlying function and returns the result.
func (c logClosure) String() string {
	return c()
}

func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}
