package payload

import "fmt"

// currencyEUR is the ISO 4217 numeric code for Euro, fixed across every
// builder per spec §3.
const currencyEUR = "978"

// BuildConcertV2 builds the 14-character Concert V2 binary payload:
// type(1)="0" ‖ pos(2) ‖ amount(8, zero-padded cents) ‖ currency(3)="978".
// The caller (session driver, via frame.Encode) is responsible for
// framing; this returns the bare payload bytes.
func BuildConcertV2(posNumber string, amountCents uint32) ([]byte, error) {
	if amountCents >= 100000000 {
		return nil, fmt.Errorf("amount %d does not fit in 8 digits", amountCents)
	}
	pos := NormalizePOS(posNumber)
	s := fmt.Sprintf("0%s%08d%s", pos, amountCents, currencyEUR)
	if len(s) != 14 {
		return nil, fmt.Errorf("internal error: V2 payload length %d, want 14", len(s))
	}
	return []byte(s), nil
}

// BuildConcertV3 builds the 19-character Concert V3 binary payload:
// type(2)="00" ‖ pos(2) ‖ amount(12, zero-padded cents) ‖ currency(3)="978".
func BuildConcertV3(posNumber string, amountCents uint32) ([]byte, error) {
	if uint64(amountCents) >= 1000000000000 {
		return nil, fmt.Errorf("amount %d does not fit in 12 digits", amountCents)
	}
	pos := NormalizePOS(posNumber)
	s := fmt.Sprintf("00%s%012d%s", pos, amountCents, currencyEUR)
	if len(s) != 19 {
		return nil, fmt.Errorf("internal error: V3 payload length %d, want 19", len(s))
	}
	return []byte(s), nil
}

// FallbackASCII builds the last-resort diagnostic command spec §4.2/§4.4
// describes: the literal "DEBIT <euros>.<cents> EUR\r", amount formatted
// with two fractional digits. No framing, no LRC.
func FallbackASCII(amountCents uint32) []byte {
	euros := amountCents / 100
	cents := amountCents % 100
	return []byte(fmt.Sprintf("DEBIT %d.%02d EUR\r", euros, cents))
}
