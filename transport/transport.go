// Package transport gives the session driver a uniform bidirectional byte
// stream over either a serial line or a TCP socket (spec §4.3, C3). The two
// concrete implementations share no state beyond the Transport capability —
// dual-transport polymorphism is modeled as an interface, not inheritance.
package transport

import (
	"strings"
	"time"

	"github.com/go-errors/errors"
)

// Default tunables, spec §4.3.
const (
	DefaultBaud       = 9600
	SerialReadTimeout = 3 * time.Second
	TCPConnectTimeout = 10 * time.Second
	TCPReadTimeout    = 10 * time.Second
	TCPWriteTimeout   = 10 * time.Second
)

// Sentinel errors a session driver switches on.
var (
	ErrTransportClosed = errors.New("transport: use of closed connection")
	ErrReadTimeout     = errors.New("transport: read timeout")
)

// Transport is the capability every wire medium offers: write the whole
// buffer, read into buf with a per-call deadline, flush any buffered bytes,
// and close on drop. Implementations must be safe to Close concurrently
// with a blocked Read (the cancellation path depends on this).
type Transport interface {
	Write(data []byte) error
	Read(buf []byte, timeout time.Duration) (n int, err error)
	Flush() error
	Close() error
}

// Kind identifies which medium a descriptor selects.
type Kind int

const (
	KindSerial Kind = iota
	KindTCP
)

// ParsedDescriptor is the result of parsing a spec §4.3 connection
// descriptor: strip a trailing "+ASCII" marker, then classify by the
// presence of ":" as TCP (host:port) or serial (platform device name).
type ParsedDescriptor struct {
	Kind       Kind
	Address    string
	ForceASCII bool
}

// ParseDescriptor implements spec §4.3's descriptor grammar. The descriptor
// is parsed, never stored (spec §3).
func ParseDescriptor(descriptor string) ParsedDescriptor {
	addr := descriptor
	forceASCII := false
	if rest, ok := strings.CutSuffix(addr, "+ASCII"); ok {
		addr = rest
		forceASCII = true
	}

	kind := KindSerial
	if strings.Contains(addr, ":") {
		kind = KindTCP
	}

	return ParsedDescriptor{Kind: kind, Address: addr, ForceASCII: forceASCII}
}

// Open dials descriptor, picking serial or TCP per ParseDescriptor, and
// returns the resulting Transport alongside the parsed descriptor (the
// session driver's TestConnection uses its Kind to decide whether to send
// ENQ).
func Open(descriptor string, baud int) (Transport, ParsedDescriptor, error) {
	parsed := ParseDescriptor(descriptor)

	switch parsed.Kind {
	case KindTCP:
		t, err := OpenTCP(parsed.Address)
		return t, parsed, err
	default:
		t, err := OpenSerial(parsed.Address, baud)
		return t, parsed, err
	}
}
