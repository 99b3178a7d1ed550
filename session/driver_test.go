package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kadem9/caissefacile-tpe/clock"
	"github.com/Kadem9/caissefacile-tpe/frame"
	"github.com/Kadem9/caissefacile-tpe/payload"
	"github.com/Kadem9/caissefacile-tpe/ticker"
	"github.com/Kadem9/caissefacile-tpe/transport"
)

type fakeRead struct {
	data []byte
	err  error
}

type fakeTransport struct {
	writes  [][]byte
	reads   []fakeRead
	readIdx int
	closed  bool
}

func (f *fakeTransport) Write(data []byte) error {
	f.writes = append(f.writes, append([]byte{}, data...))
	return nil
}

func (f *fakeTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	if f.readIdx >= len(f.reads) {
		return 0, transport.ErrReadTimeout
	}
	r := f.reads[f.readIdx]
	f.readIdx++
	if r.err != nil {
		return 0, r.err
	}
	n := copy(buf, r.data)
	return n, nil
}

func (f *fakeTransport) Flush() error { return nil }
func (f *fakeTransport) Close() error { f.closed = true; return nil }

// pumpTicks keeps a Force ticker firing until stop is closed, so loops
// blocked on <-ticker.Ticks() make progress without a real-time wait.
func pumpTicks(ft *ticker.Force, stop <-chan struct{}) {
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				ft.Tick(time.Time{})
				time.Sleep(time.Millisecond)
			}
		}
	}()
}

func newTestDriver(tr transport.Transport, kind transport.Kind) (*Driver, chan struct{}) {
	stop := make(chan struct{})
	d := &Driver{
		clk: clock.NewTest(time.Unix(1700000000, 0)),
		openFunc: func(descriptor string, baud int) (transport.Transport, transport.ParsedDescriptor, error) {
			return tr, transport.ParsedDescriptor{Kind: kind, Address: descriptor}, nil
		},
		newTicker: func(interval time.Duration) ticker.Ticker {
			ft := ticker.NewForce()
			pumpTicks(ft, stop)
			return ft
		},
	}
	return d, stop
}

func TestPayTCPApprovalViaAC(t *testing.T) {
	body, err := payload.EncodeTLV([]payload.TLVField{
		{Tag: "CV", Value: "01"},
		{Tag: "AC", Value: "123456"},
		{Tag: "AL", Value: "1"},
	})
	require.NoError(t, err)
	raw := frame.Encode(body)

	tr := &fakeTransport{reads: []fakeRead{{data: raw}}}
	d, stop := newTestDriver(tr, transport.KindTCP)
	defer close(stop)

	out, err := d.Pay("10.0.0.5:7000", 0, "01", payload.CaisseApIp, 1500)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, "123456", out.AuthorizationNumber)
	require.Len(t, tr.writes, 2) // request frame, then ACK/EOT
	require.Equal(t, StateDone, d.State())
}

func TestPayTCPRefusal(t *testing.T) {
	body, err := payload.EncodeTLV([]payload.TLVField{{Tag: "CO", Value: "07"}})
	require.NoError(t, err)
	raw := frame.Encode(body)

	tr := &fakeTransport{reads: []fakeRead{{data: raw}}}
	d, stop := newTestDriver(tr, transport.KindTCP)
	defer close(stop)

	out, err := d.Pay("10.0.0.5:7000", 0, "01", payload.CaisseApIp, 1500)
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Contains(t, out.ErrorMessage, "Code: 07")
}

func TestPayTCPCancellation(t *testing.T) {
	tr := &fakeTransport{} // every Read times out
	d, stop := newTestDriver(tr, transport.KindTCP)
	defer close(stop)

	done := make(chan struct {
		out PaymentOutcome
		err error
	}, 1)
	go func() {
		out, err := d.Pay("10.0.0.5:7000", 0, "01", payload.CaisseApIp, 1500)
		done <- struct {
			out PaymentOutcome
			err error
		}{out, err}
	}()

	time.Sleep(20 * time.Millisecond)
	d.Cancel()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.False(t, r.out.Success)
		require.Equal(t, "CANCELLED", r.out.ResultCode)
	case <-time.After(2 * time.Second):
		t.Fatal("pay did not observe cancellation")
	}

	require.NotEmpty(t, tr.writes)
	last := tr.writes[len(tr.writes)-1]
	require.Equal(t, []byte{frame.CAN, frame.CAN, frame.CAN, frame.EOT}, last)
	require.Equal(t, StateCancelled, d.State())
}

func TestPaySerialV2Approval(t *testing.T) {
	// spec §8 scenario 1's stub reply.
	raw := []byte{0x02, '0', '1', '0', '0', '0', '0', '0', '0', '0', '5', '0', '0', 0x03, 0x00}

	tr := &fakeTransport{reads: []fakeRead{
		{data: []byte{frame.ACK}}, // handshake
		{data: nil},               // post-send probe: nothing
		{data: raw},               // long read: full reply in one chunk
	}}
	d, stop := newTestDriver(tr, transport.KindSerial)
	defer close(stop)

	out, err := d.Pay("/dev/ttyUSB0", 9600, "1", payload.ConcertV2Binary, 500)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, "00", out.ResultCode)
}

func TestPaySerialASCIIFallbackOnRejection(t *testing.T) {
	tr := &fakeTransport{reads: []fakeRead{
		{data: nil},                  // handshake: nothing
		{data: []byte{frame.NAK}},    // post-send probe: rejected
		{data: []byte("some reply")}, // ascii fallback reply
	}}
	d, stop := newTestDriver(tr, transport.KindSerial)
	defer close(stop)

	out, err := d.Pay("/dev/ttyUSB0", 9600, "01", payload.ConcertV2Binary, 1000)
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Contains(t, out.RawResponse, frame.Hex([]byte("some reply")))
	require.Equal(t, StateDone, d.State())
}

func TestPayBranchAForcedASCII(t *testing.T) {
	tr := &fakeTransport{reads: []fakeRead{{data: []byte("GARBLED")}}}
	d, stop := newTestDriver(tr, transport.KindSerial)
	defer close(stop)

	out, err := d.Pay("/dev/ttyUSB0+ASCII", 9600, "01", payload.ConcertV2Binary, 250)
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Equal(t, "??", out.ResultCode)
	require.Contains(t, out.RawResponse, frame.Hex([]byte("GARBLED")))
	require.Len(t, tr.writes, 1)
	require.Equal(t, payload.FallbackASCII(250), tr.writes[0])
}

func TestTestConnectionSerialACK(t *testing.T) {
	tr := &fakeTransport{reads: []fakeRead{{data: []byte{frame.ACK}}}}
	d, stop := newTestDriver(tr, transport.KindSerial)
	defer close(stop)

	res := d.TestConnection("/dev/ttyUSB0", 9600)
	require.True(t, res.Connected)
	require.Equal(t, "connected", res.Message)
}

func TestTestConnectionSerialNoData(t *testing.T) {
	tr := &fakeTransport{reads: []fakeRead{{data: nil}}}
	d, stop := newTestDriver(tr, transport.KindSerial)
	defer close(stop)

	res := d.TestConnection("/dev/ttyUSB0", 9600)
	require.True(t, res.Connected)
	require.Equal(t, "connected, no data", res.Message)
}

func TestTestConnectionSerialUnknownReply(t *testing.T) {
	tr := &fakeTransport{reads: []fakeRead{{data: []byte{frame.NAK}}}}
	d, stop := newTestDriver(tr, transport.KindSerial)
	defer close(stop)

	res := d.TestConnection("/dev/ttyUSB0", 9600)
	require.True(t, res.Connected)
	require.Equal(t, "connected, unknown reply", res.Message)
}

func TestTestConnectionTCPDoesNotSendENQ(t *testing.T) {
	tr := &fakeTransport{}
	d, stop := newTestDriver(tr, transport.KindTCP)
	defer close(stop)

	res := d.TestConnection("10.0.0.5:7000", 0)
	require.True(t, res.Connected)
	require.Equal(t, "connected", res.Message)
	require.Empty(t, tr.writes)
}

func TestDriverStateStartsIdleAndTracksTransportError(t *testing.T) {
	d := &Driver{
		clk: clock.NewTest(time.Unix(1700000000, 0)),
		openFunc: func(descriptor string, baud int) (transport.Transport, transport.ParsedDescriptor, error) {
			return nil, transport.ParsedDescriptor{}, transport.ErrReadTimeout
		},
	}
	require.Equal(t, StateIdle, d.State())

	_, err := d.Pay("/dev/ttyUSB0", 9600, "01", payload.ConcertV2Binary, 500)
	require.Error(t, err)
	require.Equal(t, StateTransportError, d.State())
}

func TestCancellationFlagLifecycle(t *testing.T) {
	var f CancellationFlag
	require.False(t, f.IsSet())
	f.Set()
	require.True(t, f.IsSet())
	f.Clear()
	require.False(t, f.IsSet())
}
