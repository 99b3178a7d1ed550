package payload

import "fmt"

// TLVField is one tag/value pair as encoded on the wire: 2 ASCII tag
// bytes, 3 ASCII-decimal length bytes (length counted in bytes of value,
// never characters), then the value itself. Field ORDER is significant
// for Caisse-AP-IP: CZ must come first (spec §6).
type TLVField struct {
	Tag   string
	Value string
}

// EncodeTLV concatenates fields in the given order into their wire form.
func EncodeTLV(fields []TLVField) ([]byte, error) {
	out := make([]byte, 0, 64)
	for _, f := range fields {
		if len(f.Tag) != 2 {
			return nil, fmt.Errorf("tlv: tag %q must be exactly 2 chars", f.Tag)
		}
		if len(f.Value) > 999 {
			return nil, fmt.Errorf("tlv: value for tag %q exceeds 999 bytes", f.Tag)
		}
		out = append(out, f.Tag...)
		out = append(out, []byte(fmt.Sprintf("%03d", len(f.Value)))...)
		out = append(out, f.Value...)
	}
	return out, nil
}

// ParseTLV scans buf as a sequence of TLV fields (2-byte tag, 3-ASCII-
// decimal length, length value bytes) and returns the last value seen per
// tag. On any parse failure (non-digit length, value running past the end
// of buf) it advances one byte and retries, the resynchronization
// property spec §8 requires: parse(corrupt(tlv)) returns a subset of
// parse(tlv)'s tags with size >= |tags|-1.
func ParseTLV(buf []byte) (map[string]string, error) {
	fields := make(map[string]string)
	i := 0
	for i+5 <= len(buf) {
		if !isTagByte(buf[i]) || !isTagByte(buf[i+1]) {
			i++
			continue
		}
		tag := string(buf[i : i+2])
		lenBytes := buf[i+2 : i+5]
		length, ok := parseDecimal3(lenBytes)
		if !ok {
			i++
			continue
		}
		valStart := i + 5
		valEnd := valStart + length
		if valEnd > len(buf) {
			i++
			continue
		}
		fields[tag] = string(buf[valStart:valEnd])
		i = valEnd
	}
	return fields, nil
}

// isTagByte reports whether b can appear in a tag. Every real tag in this
// protocol family (CZ, CA, CE, BA, CD, CB, TI, LB, AE, AF, CV, CO, AC, AL)
// is two uppercase ASCII letters; requiring that here is what gives the
// resynchronization property teeth — a corrupted length field still
// forces the scanner to advance byte-by-byte until it lands back on a
// position that looks like tag+length+fits-in-buffer, which in practice
// is exactly the start of the next genuine field.
func isTagByte(b byte) bool {
	return b >= 'A' && b <= 'Z'
}

// parseDecimal3 parses exactly 3 ASCII decimal digits.
func parseDecimal3(b []byte) (int, bool) {
	if len(b) != 3 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// CaisseAPIPParams groups the inputs to BuildCaisseAPIP/BuildConcertV3TLV.
type CaisseAPIPParams struct {
	POSNumber       string
	AmountCents     uint32
	TransactionID   string // 6 decimal digits; low 6 digits of unix seconds
	IncludeCaisse   bool   // adds TI/LB, required for Caisse-AP-IP
}

// BuildConcertV3TLV builds the TLV payload shared by Concert V3 TLV,
// Caisse-AP-IP, and (per spec §9's Open Question) SmilePay: CZ, CA, CE,
// BA, CD, CB in every case, plus TI and LB only when params.IncludeCaisse
// is set (required for Caisse-AP-IP, optional/omitted for plain V3 TLV
// and for SmilePay today).
func BuildConcertV3TLV(params CaisseAPIPParams) ([]byte, error) {
	pos := NormalizePOS(params.POSNumber)
	fields := []TLVField{
		{Tag: "CZ", Value: "0320"},
		{Tag: "CA", Value: pos},
		{Tag: "CE", Value: currencyEUR},
		{Tag: "BA", Value: "0"},
		{Tag: "CD", Value: "0"},
		{Tag: "CB", Value: fmt.Sprintf("%012d", params.AmountCents)},
	}
	if params.IncludeCaisse {
		tid := params.TransactionID
		if len(tid) != 6 {
			return nil, fmt.Errorf("caisse-ap-ip: transaction id %q must be 6 digits", tid)
		}
		fields = append(fields,
			TLVField{Tag: "TI", Value: tid},
			TLVField{Tag: "LB", Value: "CAISSE"},
		)
	}
	return EncodeTLV(fields)
}

// BuildCaisseAPIP is BuildConcertV3TLV with IncludeCaisse forced true,
// since TI/LB are required (not merely optional) for this selector.
func BuildCaisseAPIP(posNumber string, amountCents uint32, transactionID string) ([]byte, error) {
	return BuildConcertV3TLV(CaisseAPIPParams{
		POSNumber:     posNumber,
		AmountCents:   amountCents,
		TransactionID: transactionID,
		IncludeCaisse: true,
	})
}

// BuildSmilePay is, in the current draft, identical to plain Concert V3
// TLV (see spec §9's Open Question on the SmilePay/ConcertV3TLV alias).
// smilePayExtraFields is where a future vendor-specific tag would be
// added without touching callers.
var smilePayExtraFields []TLVField

// BuildSmilePay builds the SmilePay payload: Concert V3 TLV without
// TI/LB, plus any (currently empty) SmilePay-specific fields.
func BuildSmilePay(posNumber string, amountCents uint32) ([]byte, error) {
	base, err := BuildConcertV3TLV(CaisseAPIPParams{
		POSNumber:     posNumber,
		AmountCents:   amountCents,
		IncludeCaisse: false,
	})
	if err != nil {
		return nil, err
	}
	if len(smilePayExtraFields) == 0 {
		return base, nil
	}
	extra, err := EncodeTLV(smilePayExtraFields)
	if err != nil {
		return nil, err
	}
	return append(base, extra...), nil
}

// TransactionID returns the low 6 decimal digits of unixSeconds,
// zero-padded, as spec §4.2 requires for the Caisse-AP-IP TI tag. Callers
// pass a timestamp rather than letting this function call time.Now() so
// the session driver's clock.Clock stays the single source of time.
func TransactionID(unixSeconds int64) string {
	low := unixSeconds % 1000000
	if low < 0 {
		low += 1000000
	}
	return fmt.Sprintf("%06d", low)
}
