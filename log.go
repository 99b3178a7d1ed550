package tpe

import (
	"github.com/btcsuite/btclog"

	"github.com/Kadem9/caissefacile-tpe/frame"
	"github.com/Kadem9/caissefacile-tpe/payload"
	"github.com/Kadem9/caissefacile-tpe/portlist"
	"github.com/Kadem9/caissefacile-tpe/response"
	"github.com/Kadem9/caissefacile-tpe/session"
	"github.com/Kadem9/caissefacile-tpe/tpecfg"
	"github.com/Kadem9/caissefacile-tpe/transport"
)

// subsystemLoggers mirrors the teacher's lndPkgLoggers/SetupLoggers split
// (root log.go), scaled down from ~25 subsystems to this driver's ~6: each
// entry pairs a four-letter subsystem tag with the UseLogger hook its
// package exposes.
var subsystemLoggers = map[string]func(btclog.Logger){
	"SESS": session.UseLogger,
	"XPRT": transport.UseLogger,
	"RESP": response.UseLogger,
	"PLOD": payload.UseLogger,
	"PLST": portlist.UseLogger,
	"FRAM": frame.UseLogger,
}

// SetupLoggers wires one btclog backend, writing to w, across every
// subsystem logger in the driver, the way the teacher's SetupLoggers wires
// one RotatingLogWriter across lnd's subsystems. level applies uniformly;
// per-subsystem level overrides are not exposed, since tpecfg.Config
// carries a single LogLevel knob (spec's ambient logging is simpler than
// the teacher's daemon-wide facility).
func SetupLoggers(backend *btclog.Backend, level btclog.Level) {
	for subsystem, useLogger := range subsystemLoggers {
		logger := backend.Logger(subsystem)
		logger.SetLevel(level)
		useLogger(logger)
	}
}

// DisableLoggers reverts every subsystem logger to btclog.Disabled,
// primarily for tests that don't want log output interleaved with
// -v output.
func DisableLoggers() {
	session.DisableLog()
	transport.DisableLog()
	response.DisableLog()
	payload.DisableLog()
	portlist.DisableLog()
	frame.DisableLog()
}

// LevelFromConfig maps a tpecfg.Config.LogLevel string onto a btclog.Level,
// defaulting to Info on an unrecognized value rather than failing startup
// over a typo in an operator-edited config file.
func LevelFromConfig(cfg tpecfg.Config) btclog.Level {
	switch cfg.LogLevel {
	case "trace":
		return btclog.LevelTrace
	case "debug":
		return btclog.LevelDebug
	case "info":
		return btclog.LevelInfo
	case "warn":
		return btclog.LevelWarn
	case "error":
		return btclog.LevelError
	case "off":
		return btclog.LevelOff
	default:
		return btclog.LevelInfo
	}
}

// logClosure is used to provide a closure over expensive logging
// operations so they aren't performed when the logging level doesn't
// warrant it.
type logClosure func() string

// String invokes the underlying function and returns the result.
func (c logClosure) String() string {
	return c()
}

func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}
