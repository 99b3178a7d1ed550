package response

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kadem9/caissefacile-tpe/frame"
	"github.com/Kadem9/caissefacile-tpe/payload"
)

func TestParseBinaryV2ApprovalScenario(t *testing.T) {
	// spec §8 scenario 1: stub replies
	// 02 30 31 30 30 30 30 30 30 30 35 30 30 03 00
	raw := []byte{0x02, '0', '1', '0', '0', '0', '0', '0', '0', '0', '5', '0', '0', 0x03, 0x00}
	out := ParseBinary(raw)
	require.True(t, out.Success)
	require.Equal(t, "00", out.ResultCode)
}

func TestParseBinaryV3OffsetTwo(t *testing.T) {
	// V3 body with known code at offset 2.
	body := []byte("0100" + "00" + "rest")
	raw := frame.Encode(body)
	out := ParseBinary(raw)
	require.True(t, out.Success)
	require.Equal(t, "00", out.ResultCode)
}

func TestParseBinaryUnknownCode(t *testing.T) {
	body := []byte("X99Xtrailing")
	raw := frame.Encode(body)
	out := ParseBinary(raw)
	require.False(t, out.Success)
	require.Contains(t, out.ErrorMessage, "unknown error with code")
}

func TestParseBinaryInvalidFrame(t *testing.T) {
	out := ParseBinary([]byte("garbage, no delimiters"))
	require.False(t, out.Success)
	require.Equal(t, "??", out.ResultCode)
	require.Equal(t, "invalid frame", out.ErrorMessage)
}

func TestParseBinaryAllKnownCodesRoundTrip(t *testing.T) {
	for code, msg := range binaryCodeMessages {
		body := []byte("0" + code) // V2 window: offset 1
		raw := frame.Encode(body)
		out := ParseBinary(raw)
		require.Equal(t, code, out.ResultCode)
		require.Equal(t, code == "00", out.Success)
		if code != "00" {
			require.Equal(t, msg, out.ErrorMessage)
		}
	}
}

func buildCaisseResponseBody(fields []payload.TLVField) []byte {
	b, err := payload.EncodeTLV(fields)
	if err != nil {
		panic(err)
	}
	return b
}

func TestParseCaisseAPIPApprovalViaAC(t *testing.T) {
	// spec §8 scenario 3.
	body := buildCaisseResponseBody([]payload.TLVField{
		{Tag: "CV", Value: "01"},
		{Tag: "AC", Value: "123456"},
		{Tag: "AL", Value: "1"},
	})
	raw := frame.Encode(body)
	out := ParseCaisseAPIP(raw)
	require.True(t, out.Success)
	require.Equal(t, "123456", out.Authorization)
}

func TestParseCaisseAPIPRefusal(t *testing.T) {
	// spec §8 scenario 4.
	body := buildCaisseResponseBody([]payload.TLVField{
		{Tag: "CO", Value: "07"},
	})
	raw := frame.Encode(body)
	out := ParseCaisseAPIP(raw)
	require.False(t, out.Success)
	require.Contains(t, out.ErrorMessage, "Code: 07")
}

func TestParseConcertV3TLVFormatError(t *testing.T) {
	// spec §8 scenario 5: body "AE00201AF00209", i.e. tag AE with the
	// 2-char value "01" and tag AF with the 2-char value "09".
	body := buildCaisseResponseBody([]payload.TLVField{
		{Tag: "AE", Value: "01"},
		{Tag: "AF", Value: "09"},
	})
	raw := frame.Encode(body)
	out := ParseConcertV3TLV(raw)
	require.False(t, out.Success)
	require.Contains(t, out.ErrorMessage, "format")
}

func TestParseConcertV3TLVApproval(t *testing.T) {
	body := buildCaisseResponseBody([]payload.TLVField{
		{Tag: "AE", Value: "10"},
		{Tag: "AC", Value: "999111"},
	})
	raw := frame.Encode(body)
	out := ParseConcertV3TLV(raw)
	require.True(t, out.Success)
	require.Equal(t, "999111", out.Authorization)
}

func TestDispatch(t *testing.T) {
	body := buildCaisseResponseBody([]payload.TLVField{{Tag: "AE", Value: "10"}})
	raw := frame.Encode(body)
	out := Parse(payload.ConcertV3TLV, raw)
	require.True(t, out.Success)

	out = Parse(payload.SmilePay, raw)
	require.True(t, out.Success)
}
