// Package tpecfg holds the driver's tuning knobs: serial defaults and
// timeout overrides loaded from an optional INI file, plus the pos_number
// normalization and protocol-selector validation spec §3/§6 require.
// It does not persist any business data — that stays a host concern.
package tpecfg

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/Kadem9/caissefacile-tpe/payload"
)

// Config is the set of driver tuning knobs an operator may override via an
// INI file, mirroring the teacher's lnd.conf shape (Watchtower, Bitcoin,
// etc. structs in lncfg) one flat struct deep since the driver has no
// nested subsystems of its own.
type Config struct {
	DefaultBaud int `long:"defaultbaud" description:"Serial baud rate used when a caller omits one" default:"9600"`

	SerialReadTimeout time.Duration `long:"serialreadtimeout" description:"Read timeout for a single serial poll"`
	TCPConnectTimeout time.Duration `long:"tcpconnecttimeout" description:"Dial timeout for TCP terminals"`
	TCPReadTimeout    time.Duration `long:"tcpreadtimeout" description:"Read timeout for a single TCP poll"`

	LogLevel string `long:"loglevel" description:"Subsystem log level (trace|debug|info|warn|error|off)" default:"info"`
}

// Default returns the Config a Driver uses when no file is loaded,
// matching the constants transport already defaults to.
func Default() Config {
	return Config{
		DefaultBaud:       9600,
		SerialReadTimeout: 3 * time.Second,
		TCPConnectTimeout: 10 * time.Second,
		TCPReadTimeout:    10 * time.Second,
		LogLevel:          "info",
	}
}

// Load reads an INI-style config file into cfg, starting from Default()
// and overriding only the keys present in path. A missing file is not an
// error: it simply yields the defaults, since these are tuning knobs, not
// required state.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("tpecfg: stat %s: %w", path, err)
	}

	parser := flags.NewParser(&cfg, flags.IgnoreUnknown)
	if err := flags.NewIniParser(parser).ParseFile(path); err != nil {
		return cfg, fmt.Errorf("tpecfg: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ValidateProtocol reports whether b is a protocol-version byte send_tpe_
// payment (spec §6) recognizes. Unknown bytes are accepted by
// payload.ParseProtocolVersion (it defaults to ConcertV3TLV); callers that
// want strict validation call this first.
func ValidateProtocol(b uint8) error {
	switch b {
	case 2, 3, 4, 5, 6, 7:
		return nil
	default:
		return fmt.Errorf("tpecfg: unknown protocol-version byte %d", b)
	}
}

// NormalizePOS re-exports payload.NormalizePOS so callers that only need
// config-shaped validation don't have to import payload directly.
func NormalizePOS(pos string) string {
	return payload.NormalizePOS(pos)
}
