package transport

import "github.com/btcsuite/btclog"

// transportLog is the package-level logger, disabled until the host calls
// UseLogger (normally via the root tpe.SetupLoggers wiring).
var transportLog btclog.Logger = btclog.Disabled

// DisableLog disables all logging output.
func DisableLog() {
	transportLog = btclog.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	transportLog = logger
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
