// Package payload builds the vendor-specific request bodies for each
// protocol selector in spec §3/§4.2: fixed-field binary for Concert V2/V3,
// TLV for Concert V3 TLV / Caisse-AP-IP / SmilePay, JSON for the Yavin
// HTTP family, and the last-resort ASCII fallback.
package payload

import "fmt"

// Protocol is the tagged variant spec §3 calls ProtocolSelector. It
// carries no data of its own; it only selects payload shape and, in the
// session driver, transport choice.
type Protocol int

const (
	// ConcertV2Binary is the 14-char fixed-field binary payload.
	ConcertV2Binary Protocol = iota
	// ConcertV3Binary is the 19-char fixed-field binary payload.
	ConcertV3Binary
	// ConcertV3TLV is the plain TLV payload (no CAISSE-AP-IP tags).
	ConcertV3TLV
	// CaisseApIp is Concert V3 TLV with the TI/LB tags, carried over TCP.
	CaisseApIp
	// SmilePay is, in the current draft, an alias of ConcertV3TLV (see
	// spec §9 Open Questions).
	SmilePay
	// YavinLocal builds the Yavin JSON payload for a local terminal.
	YavinLocal
	// YavinCloud builds the Yavin JSON payload for the cloud variant.
	YavinCloud
)

// String renders the protocol name for logs and CLI output.
func (p Protocol) String() string {
	switch p {
	case ConcertV2Binary:
		return "ConcertV2Binary"
	case ConcertV3Binary:
		return "ConcertV3Binary"
	case ConcertV3TLV:
		return "ConcertV3TLV"
	case CaisseApIp:
		return "CaisseApIp"
	case SmilePay:
		return "SmilePay"
	case YavinLocal:
		return "YavinLocal"
	case YavinCloud:
		return "YavinCloud"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// ParseProtocolVersion maps the protocol-version byte argument of
// send_tpe_payment (spec §6) onto a Protocol. Unknown values default to
// ConcertV3TLV, per spec.
func ParseProtocolVersion(b uint8) Protocol {
	switch b {
	case 2:
		return ConcertV2Binary
	case 3:
		return ConcertV3TLV
	case 4:
		return ConcertV3Binary
	case 5:
		return SmilePay
	case 6:
		return YavinLocal
	case 7:
		return YavinCloud
	default:
		return ConcertV3TLV
	}
}

// UsesTLV reports whether the protocol's request/response bodies are TLV
// encoded rather than fixed-width binary.
func (p Protocol) UsesTLV() bool {
	switch p {
	case ConcertV3TLV, CaisseApIp, SmilePay:
		return true
	default:
		return false
	}
}

// IsHTTP reports whether the protocol is carried over HTTP JSON rather
// than a framed serial/TCP byte stream.
func (p Protocol) IsHTTP() bool {
	return p == YavinLocal || p == YavinCloud
}

// NormalizePOS applies spec §3's pos_number normalization rule: first two
// characters if the input has two or more, left-padded with '0' if one,
// and "01" if empty.
func NormalizePOS(pos string) string {
	switch len(pos) {
	case 0:
		return "01"
	case 1:
		return "0" + pos
	default:
		return pos[:2]
	}
}
