package payload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildConcertV2Scenario(t *testing.T) {
	// spec §8 scenario 1: protocol=2, pos="1", amount=500.
	b, err := BuildConcertV2("1", 500)
	require.NoError(t, err)
	require.Equal(t, "00100000500978", string(b))
}

func TestBuildConcertV3Scenario(t *testing.T) {
	// spec §8 scenario 2: protocol=4, pos="02", amount=1234.
	b, err := BuildConcertV3("02", 1234)
	require.NoError(t, err)
	require.Equal(t, "0002000000001234978", string(b))
}

func TestNormalizePOS(t *testing.T) {
	require.Equal(t, "01", NormalizePOS(""))
	require.Equal(t, "05", NormalizePOS("5"))
	require.Equal(t, "12", NormalizePOS("12"))
	require.Equal(t, "12", NormalizePOS("123"))
}

func TestBuildConcertV2WidthForEveryAmount(t *testing.T) {
	amounts := []uint32{0, 1, 500, 99999999}
	for _, a := range amounts {
		b, err := BuildConcertV2("01", a)
		require.NoError(t, err)
		require.Len(t, b, 14)
	}
	_, err := BuildConcertV2("01", 100000000)
	require.Error(t, err)
}

func TestBuildConcertV3WidthForEveryAmount(t *testing.T) {
	amounts := []uint32{0, 1, 1234, 4294967295}
	for _, a := range amounts {
		b, err := BuildConcertV3("01", a)
		require.NoError(t, err)
		require.Len(t, b, 19)
	}
}

func TestFallbackASCII(t *testing.T) {
	require.Equal(t, "DEBIT 5.00 EUR\r", string(FallbackASCII(500)))
	require.Equal(t, "DEBIT 0.05 EUR\r", string(FallbackASCII(5)))
}

func TestBuildCaisseAPIPScenario(t *testing.T) {
	// spec §8 scenario 3: protocol=3 over TCP, amount=1500, pos="01".
	b, err := BuildCaisseAPIP("01", 1500, "123456")
	require.NoError(t, err)

	fields, err := ParseTLV(b)
	require.NoError(t, err)
	require.Equal(t, "0320", fields["CZ"])
	require.Equal(t, "01", fields["CA"])
	require.Equal(t, "978", fields["CE"])
	require.Equal(t, "0", fields["BA"])
	require.Equal(t, "0", fields["CD"])
	require.Equal(t, "000000001500", fields["CB"])
	require.Equal(t, "123456", fields["TI"])
	require.Equal(t, "CAISSE", fields["LB"])

	// CZ must be first on the wire.
	require.True(t, b[0] == 'C' && b[1] == 'Z')
}

func TestBuildConcertV3TLVOmitsCaisseTags(t *testing.T) {
	b, err := BuildConcertV3TLV(CaisseAPIPParams{POSNumber: "01", AmountCents: 100})
	require.NoError(t, err)
	fields, err := ParseTLV(b)
	require.NoError(t, err)
	_, hasTI := fields["TI"]
	_, hasLB := fields["LB"]
	require.False(t, hasTI)
	require.False(t, hasLB)
}

func TestBuildSmilePayMatchesPlainTLV(t *testing.T) {
	a, err := BuildSmilePay("01", 250)
	require.NoError(t, err)
	b, err := BuildConcertV3TLV(CaisseAPIPParams{POSNumber: "01", AmountCents: 250})
	require.NoError(t, err)
	require.Equal(t, b, a)
}

func TestTransactionID(t *testing.T) {
	require.Equal(t, "000001", TransactionID(1000001))
	require.Len(t, TransactionID(1234567890), 6)
}

func TestBuildYavinRequest(t *testing.T) {
	b, err := BuildYavinRequest("TERM123", 1999, "")
	require.NoError(t, err)
	require.JSONEq(t, `{"serial_number":"TERM123","amount":1999,"currency":"EUR","transaction_type":"PAYMENT"}`, string(b))

	b, err = BuildYavinRequest("TERM123", 1999, "ref-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"serial_number":"TERM123","amount":1999,"currency":"EUR","transaction_type":"PAYMENT","merchant_reference":"ref-1"}`, string(b))
}

func TestParseTLVResyncsAfterOneByteCorruption(t *testing.T) {
	b, err := BuildCaisseAPIP("01", 1500, "123456")
	require.NoError(t, err)
	clean, err := ParseTLV(b)
	require.NoError(t, err)

	for i := range b {
		corrupt := append([]byte{}, b...)
		corrupt[i] ^= 0xFF
		got, err := ParseTLV(corrupt)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(got), len(clean)-1,
			"corrupting byte %d lost more than one tag", i)
	}
}

func TestProtocolVersionMapping(t *testing.T) {
	cases := map[uint8]Protocol{
		2: ConcertV2Binary,
		3: ConcertV3TLV,
		4: ConcertV3Binary,
		5: SmilePay,
		6: YavinLocal,
		7: YavinCloud,
		0: ConcertV3TLV,
		9: ConcertV3TLV,
	}
	for b, want := range cases {
		require.Equal(t, want, ParseProtocolVersion(b))
	}
}
