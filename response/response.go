// Package response decodes terminal response bodies — binary (Concert
// V2/V3) or TLV (Concert V3 TLV, Caisse-AP-IP) — into the outcome shape
// spec §3/§4.5 describes: approved, refused with a reason code, or
// unparseable. The French result messages below are part of the contract
// (spec §6) and must round-trip in tests exactly as written.
package response

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"github.com/Kadem9/caissefacile-tpe/frame"
	"github.com/Kadem9/caissefacile-tpe/payload"
)

// Outcome is the decoded result of a terminal response, independent of
// which wire encoding produced it.
type Outcome struct {
	Success       bool
	ResultCode    string
	Authorization string // empty if absent
	ErrorMessage  string // empty if Success
	Raw           string // hex dump of the raw bytes received, for diagnostics
}

// binaryCodeMessages is the fixed Concert V2/V3 binary result-code table
// (spec §4.5). Messages are French and must match exactly.
var binaryCodeMessages = map[string]string{
	"00": "Transaction approuvée",
	"01": "Transaction annulée",
	"02": "Carte refusée",
	"03": "Erreur de communication",
	"10": "Fonction impossible",
	"11": "Délai d'attente dépassé",
}

// ParseBinary decodes a Concert V2/V3 binary response body. The parser
// tries both the V3 code window (offset 2) and the V2 window (offset 1)
// and picks the first that matches a known code, per spec §4.5 — offset 2
// is tried first since observed V2 terminal replies carry the code there
// too, with offset 1 landing on an unrelated-but-coincidentally-valid
// digit pair.
func ParseBinary(raw []byte) Outcome {
	hexDump := frame.Hex(raw)

	body, etxEnd, ok := frame.Body(raw)
	if !ok {
		return Outcome{
			Success:      false,
			ResultCode:   "??",
			ErrorMessage: "invalid frame",
			Raw:          hexDump,
		}
	}
	// LRC mismatches are tolerated per spec §9's Open Question; this
	// parser logs them through logLRCMismatch and does not reject.
	logLRCMismatch(frame.VerifyLRC(raw, body, etxEnd))

	var lastCode string
	for _, offset := range []int{2, 1} {
		if offset+2 > len(body) {
			continue
		}
		code := string(body[offset : offset+2])
		lastCode = code
		if msg, known := binaryCodeMessages[code]; known {
			return outcomeForCode(code, msg, hexDump)
		}
	}

	if lastCode != "" {
		return Outcome{
			Success:      false,
			ResultCode:   lastCode,
			ErrorMessage: fmt.Sprintf("unknown error with code %s", lastCode),
			Raw:          hexDump,
		}
	}

	return Outcome{
		Success:      false,
		ResultCode:   "??",
		ErrorMessage: "Format de réponse invalide",
		Raw:          hexDump,
	}
}

// logLRCMismatch records a Warn when computed and received LRC disagree.
// Mismatches are tolerated, never rejected — see frame.Body's doc comment —
// but are worth surfacing in diagnostics.
func logLRCMismatch(computed, received byte, match bool) {
	if match {
		return
	}
	responseLog.Warnf("LRC mismatch: computed=%02X received=%02X", computed, received)
}

// outcomeForCode maps a known binary code to its French message and
// approval state. Only "00" is an approval; every other known code is a
// well-formed refusal.
func outcomeForCode(code, msg, raw string) Outcome {
	return Outcome{
		Success:      code == "00",
		ResultCode:   code,
		ErrorMessage: errIfRefused(code == "00", msg),
		Raw:          raw,
	}
}

func errIfRefused(approved bool, msg string) string {
	if approved {
		return ""
	}
	return msg
}

// caisseAPIPMessage formats the French refusal message for a CO/CV code.
// "Code: NN" is always included so scenario 4 in spec §8 ("error contains
// \"Code: 07\"") holds regardless of which code fires.
func caisseAPIPMessage(code string) string {
	return fmt.Sprintf("Transaction refusée (Code: %s)", code)
}

// ParseCaisseAPIP decodes a Caisse-AP-IP TLV response. Approval rule (spec
// §4.5): CV=="00" OR CO=="00" OR AC is present and non-empty. AL is
// informational only and never by itself indicates failure when AC is
// present. On refusal, CO is preferred over CV for the user-visible
// reason.
func ParseCaisseAPIP(raw []byte) Outcome {
	hexDump := frame.Hex(raw)

	body, etxEnd, ok := frame.Body(raw)
	if !ok {
		return Outcome{
			Success:      false,
			ResultCode:   "??",
			ErrorMessage: "invalid frame",
			Raw:          hexDump,
		}
	}
	logLRCMismatch(frame.VerifyLRC(raw, body, etxEnd)) // tolerated; see ParseBinary.

	fields, _ := payload.ParseTLV(body)
	responseLog.Tracef("caisse-ap-ip fields: %v", newLogClosure(func() string {
		return spew.Sdump(fields)
	}))
	cv, hasCV := fields["CV"]
	co, hasCO := fields["CO"]
	ac, hasAC := fields["AC"]

	approved := (hasCV && cv == "00") || (hasCO && co == "00") || (hasAC && ac != "")
	if approved {
		return Outcome{
			Success:       true,
			ResultCode:    "00",
			Authorization: ac,
			Raw:           hexDump,
		}
	}

	code := co
	if !hasCO || co == "" {
		code = cv
	}
	if code == "" {
		code = "??"
	}
	return Outcome{
		Success:       false,
		ResultCode:    code,
		Authorization: ac,
		ErrorMessage:  caisseAPIPMessage(code),
		Raw:           hexDump,
	}
}

// concertV3TLVAFMessages maps AF error codes to French messages when AE
// is not "10" (approved), per spec §4.5.
var concertV3TLVAFMessages = map[string]string{
	"01": "Transaction annulée",
	"02": "Carte refusée",
	"03": "Erreur de communication",
	"09": "Erreur de format / protocole",
	"10": "Fonction impossible",
	"11": "Transaction abandonnée",
}

// ParseConcertV3TLV decodes a plain Concert V3 TLV response. Approval is
// AE=="10"; otherwise the AF code is mapped to a French message, falling
// back to "Transaction non effectuée" for unknown codes.
func ParseConcertV3TLV(raw []byte) Outcome {
	hexDump := frame.Hex(raw)

	body, etxEnd, ok := frame.Body(raw)
	if !ok {
		return Outcome{
			Success:      false,
			ResultCode:   "??",
			ErrorMessage: "invalid frame",
			Raw:          hexDump,
		}
	}
	logLRCMismatch(frame.VerifyLRC(raw, body, etxEnd)) // tolerated; see ParseBinary.

	fields, _ := payload.ParseTLV(body)
	responseLog.Tracef("concert v3 tlv fields: %v", newLogClosure(func() string {
		return spew.Sdump(fields)
	}))
	ae := fields["AE"]
	ac := fields["AC"]

	if ae == "10" {
		return Outcome{
			Success:       true,
			ResultCode:    ae,
			Authorization: ac,
			Raw:           hexDump,
		}
	}

	af := fields["AF"]
	msg, known := concertV3TLVAFMessages[af]
	if !known {
		msg = "Transaction non effectuée"
	}
	return Outcome{
		Success:       false,
		ResultCode:    af,
		Authorization: ac,
		ErrorMessage:  msg,
		Raw:           hexDump,
	}
}
