package response

import "github.com/Kadem9/caissefacile-tpe/payload"

// Parse dispatches raw to the decoder matching protocol. HTTP protocols
// (Yavin) have no framed response decoder (spec §9: HTTP session logic
// deferred); for them, and any other unlisted protocol, Parse returns the
// "Format de réponse invalide" outcome without looking at raw.
func Parse(protocol payload.Protocol, raw []byte) Outcome {
	switch protocol {
	case payload.CaisseApIp:
		return ParseCaisseAPIP(raw)
	case payload.ConcertV3TLV, payload.SmilePay:
		return ParseConcertV3TLV(raw)
	case payload.ConcertV2Binary, payload.ConcertV3Binary:
		return ParseBinary(raw)
	default:
		return Outcome{
			Success:      false,
			ResultCode:   "??",
			ErrorMessage: "Format de réponse invalide",
		}
	}
}
