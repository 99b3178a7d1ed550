// Package session implements the per-transaction state machine (spec §4.4,
// C4): handshake, send, mid-exchange ENQ replies, long wait, final ACK, and
// cancellation. It is the only package that invokes frame, payload, and
// transport together; response decodes what it reads back.
package session

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"

	"github.com/Kadem9/caissefacile-tpe/clock"
	"github.com/Kadem9/caissefacile-tpe/frame"
	"github.com/Kadem9/caissefacile-tpe/payload"
	"github.com/Kadem9/caissefacile-tpe/response"
	"github.com/Kadem9/caissefacile-tpe/ticker"
	"github.com/Kadem9/caissefacile-tpe/tpelog"
	"github.com/Kadem9/caissefacile-tpe/transport"
)

// Sentinel errors that surface as Go errors rather than outcomes, per the
// §7 taxonomy split: anything before the terminal has seen a byte of our
// message is an Err; anything after is an outcome.
var (
	ErrTCPTimeout    = errors.New("Timeout (150s)")
	ErrSerialTimeout = errors.New("Timeout (120s)")
)

const (
	pollReadTimeout = time.Millisecond
	tcpPollInterval = 10 * time.Millisecond
	serialPollTick  = 200 * time.Millisecond
)

// Driver runs one payment transaction at a time on behalf of the host's
// dedicated blocking worker (spec §5); it must never be invoked on an
// event-driven scheduler. It owns the single process-wide CancellationFlag.
type Driver struct {
	clk    clock.Clock
	logBuf *tpelog.Buffer
	cancel CancellationFlag
	state  int32 // State, accessed atomically; Cancel/diagnostics may read it concurrently with the worker

	openFunc  func(descriptor string, baud int) (transport.Transport, transport.ParsedDescriptor, error)
	newTicker func(interval time.Duration) ticker.Ticker
}

// New returns a Driver backed by real transports and timers. logBuf may be
// nil if diagnostic retrieval is not wired.
func New(clk clock.Clock, logBuf *tpelog.Buffer) *Driver {
	return &Driver{
		clk:       clk,
		logBuf:    logBuf,
		openFunc:  transport.Open,
		newTicker: func(interval time.Duration) ticker.Ticker { return ticker.New(interval) },
	}
}

func (d *Driver) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	sessionLog.Debug(msg)
	if d.logBuf != nil {
		d.logBuf.Write(msg)
	}
}

// setState records the driver's current step in the per-transaction state
// machine (spec §4.4) and logs the transition.
func (d *Driver) setState(s State) {
	atomic.StoreInt32(&d.state, int32(s))
	d.logf("state -> %s", s)
}

// State reports the driver's current step in the per-transaction state
// machine, for diagnostics and tests. Safe to call concurrently with an
// in-flight TestConnection/Pay.
func (d *Driver) State() State {
	return State(atomic.LoadInt32(&d.state))
}

// TestConnection implements spec §4.4's test_connection operation.
func (d *Driver) TestConnection(descriptor string, baud int) ConnectionTestResult {
	d.setState(StateOpening)
	tr, parsed, err := d.openFunc(descriptor, baud)
	if err != nil {
		d.logf("test_connection: open failed: %v", err)
		d.setState(StateTransportError)
		return ConnectionTestResult{Connected: false, Message: err.Error()}
	}
	defer tr.Close()

	if parsed.Kind == transport.KindTCP {
		// Caisse-AP-IP terminals answer only to a framed request; a bare
		// ENQ may desync them, so a TCP test stops at "socket opened".
		d.logf("test_connection: TCP socket opened to %s", parsed.Address)
		d.setState(StateDone)
		return ConnectionTestResult{Connected: true, Message: "connected"}
	}

	d.setState(StateHandshaking)
	if err := tr.Write([]byte{frame.ENQ}); err != nil {
		d.setState(StateTransportError)
		return ConnectionTestResult{Connected: false, Message: "not connected"}
	}
	tr.Flush()
	d.clk.Sleep(300 * time.Millisecond)

	buf := make([]byte, 64)
	n, err := tr.Read(buf, transport.SerialReadTimeout)
	if err != nil && err != transport.ErrReadTimeout {
		d.logf("test_connection: read error: %v", err)
		d.setState(StateTransportError)
		return ConnectionTestResult{Connected: false, Message: "not connected"}
	}
	if err == transport.ErrReadTimeout || n == 0 {
		d.setState(StateDone)
		return ConnectionTestResult{Connected: true, Message: "connected, no data"}
	}

	raw := buf[:n]
	d.setState(StateDone)
	if raw[0] == frame.ACK {
		return ConnectionTestResult{Connected: true, Message: "connected", RawData: frame.Hex(raw)}
	}
	return ConnectionTestResult{Connected: true, Message: "connected, unknown reply", RawData: frame.Hex(raw)}
}

// Cancel implements spec §4.4's cancel operation: it only ever flips the
// flag. The in-flight pay notices it on its next read iteration.
func (d *Driver) Cancel() string {
	d.cancel.Set()
	sessionLog.Info("cancellation requested")
	return "cancellation requested"
}

// Pay implements spec §4.4's pay operation, dispatching to the branch the
// descriptor selects.
func (d *Driver) Pay(descriptor string, baud int, pos string, protocol payload.Protocol, amountCents uint32) (PaymentOutcome, error) {
	d.cancel.Clear()
	d.setState(StateIdle)

	parsed := transport.ParseDescriptor(descriptor)

	if parsed.ForceASCII {
		return d.payASCIIFallback(parsed.Address, baud, amountCents)
	}
	if parsed.Kind == transport.KindTCP {
		return d.payTCP(parsed.Address, pos, amountCents)
	}
	return d.paySerial(parsed.Address, baud, pos, protocol, amountCents)
}

// payASCIIFallback is Branch A: the descriptor forced ASCII mode up front.
// The source deliberately never infers success from the raw reply here.
func (d *Driver) payASCIIFallback(address string, baud int, amountCents uint32) (PaymentOutcome, error) {
	d.setState(StateOpening)
	tr, _, err := d.openFunc(address, baud)
	if err != nil {
		d.setState(StateTransportError)
		return PaymentOutcome{}, errors.Wrap(err, 0)
	}
	defer tr.Close()

	d.setState(StateProtocolFallback)
	return d.sendASCIIAndCapture(tr, amountCents)
}

// sendASCIIAndCapture sends the fallback-ASCII message over an already-open
// transport and captures the raw reply without interpreting it.
func (d *Driver) sendASCIIAndCapture(tr transport.Transport, amountCents uint32) (PaymentOutcome, error) {
	d.setState(StateSending)
	msg := payload.FallbackASCII(amountCents)
	if err := tr.Write(msg); err != nil {
		d.setState(StateTransportError)
		return PaymentOutcome{}, errors.Wrap(err, 0)
	}
	tr.Flush()
	d.clk.Sleep(500 * time.Millisecond)

	buf := make([]byte, 256)
	n, _ := tr.Read(buf, transport.SerialReadTimeout)
	raw := buf[:n]
	d.logf("ascii fallback reply: %s", frame.Hex(raw))

	d.setState(StateDone)
	return PaymentOutcome{
		Success:      false,
		ResultCode:   "??",
		AmountCents:  amountCents,
		ErrorMessage: "Réponse ASCII non confirmée",
		RawResponse:  frame.Hex(raw),
	}, nil
}

// payTCP is Branch B: Caisse-AP-IP over a TCP socket.
func (d *Driver) payTCP(address, pos string, amountCents uint32) (PaymentOutcome, error) {
	d.setState(StateOpening)
	tr, _, err := d.openFunc(address, 0)
	if err != nil {
		d.setState(StateTransportError)
		return PaymentOutcome{}, errors.Wrap(err, 0)
	}
	defer tr.Close()

	tid := payload.TransactionID(d.clk.Now().Unix())
	body, err := payload.BuildCaisseAPIP(pos, amountCents, tid)
	if err != nil {
		d.setState(StateTransportError)
		return PaymentOutcome{}, errors.Wrap(err, 0)
	}

	d.setState(StateSending)
	if err := tr.Write(frame.Encode(body)); err != nil {
		d.setState(StateTransportError)
		return PaymentOutcome{}, errors.Wrap(err, 0)
	}
	tr.Flush()

	d.setState(StateAwaitingResponse)
	respBuf, cancelled, err := d.tcpResponseLoop(tr)
	if cancelled {
		d.setState(StateCancelled)
		return cancelledOutcome(amountCents), nil
	}
	if err != nil {
		d.setState(StateTransportError)
		return PaymentOutcome{}, err
	}

	d.setState(StateFinalizing)
	// Some terminals require ACK,EOT to confirm receipt and finalize.
	tr.Write([]byte{frame.ACK, frame.EOT})
	tr.Flush()

	outcome := response.Parse(payload.CaisseApIp, respBuf)
	d.setState(StateDone)
	return toPaymentOutcome(outcome, amountCents), nil
}

// tcpResponseLoop is spec §4.4 Branch B steps 4a-4c: bounded by a
// 150-second wall-clock deadline, polling at 10ms via ticker between
// non-blocking reads.
func (d *Driver) tcpResponseLoop(tr transport.Transport) ([]byte, bool, error) {
	_, expired := clock.Deadline(d.clk, 150*time.Second)
	t := d.newTicker(tcpPollInterval)
	defer t.Stop()

	var acc []byte
	for {
		if d.cancel.IsSet() {
			tr.Write([]byte{frame.CAN, frame.CAN, frame.CAN, frame.EOT})
			tr.Flush()
			return nil, true, nil
		}
		if expired() {
			return nil, false, ErrTCPTimeout
		}

		buf := make([]byte, 1024)
		n, err := tr.Read(buf, pollReadTimeout)
		if err != nil {
			if err == transport.ErrReadTimeout {
				<-t.Ticks()
				continue
			}
			return nil, false, errors.Wrap(err, 0)
		}
		if n == 0 {
			if len(acc) > 0 {
				break
			}
			<-t.Ticks()
			continue
		}

		acc = append(acc, buf[:n]...)
		if bytes.IndexByte(acc, frame.ETX) >= 0 {
			// Collect the trailing LRC and any late fragment.
			d.clk.Sleep(10 * time.Millisecond)
			extra := make([]byte, 64)
			if en, _ := tr.Read(extra, pollReadTimeout); en > 0 {
				acc = append(acc, extra[:en]...)
			}
			break
		}
	}
	return acc, false, nil
}

// paySerial is Branch C: Concert V2/V3 binary or TLV over a serial line.
func (d *Driver) paySerial(address string, baud int, pos string, protocol payload.Protocol, amountCents uint32) (PaymentOutcome, error) {
	d.setState(StateOpening)
	tr, _, err := d.openFunc(address, baud)
	if err != nil {
		d.setState(StateTransportError)
		return PaymentOutcome{}, errors.Wrap(err, 0)
	}
	defer tr.Close()

	d.setState(StateHandshaking)
	d.serialHandshake(tr)

	body, err := buildSerialPayload(protocol, pos, amountCents)
	if err != nil {
		d.setState(StateTransportError)
		return PaymentOutcome{}, errors.Wrap(err, 0)
	}

	d.setState(StateSending)
	if err := tr.Write(frame.Encode(body)); err != nil {
		d.setState(StateTransportError)
		return PaymentOutcome{}, errors.Wrap(err, 0)
	}
	tr.Flush()

	d.setState(StateAwaitingAck)
	fallback, rejectionRaw := d.postSendProbe(tr)
	if fallback {
		d.logf("post-send probe rejected (%s), falling back to ASCII", frame.Hex(rejectionRaw))
		d.setState(StateProtocolFallback)
		return d.sendASCIIAndCapture(tr, amountCents)
	}

	d.setState(StateAwaitingResponse)
	respBuf, cancelled, err := d.serialLongReadLoop(tr)
	if cancelled {
		d.setState(StateCancelled)
		return cancelledOutcome(amountCents), nil
	}
	if err != nil {
		d.setState(StateTransportError)
		return PaymentOutcome{}, err
	}

	d.setState(StateFinalizing)
	tr.Write([]byte{frame.ACK})
	tr.Flush()

	outcome := response.Parse(protocol, respBuf)
	d.setState(StateDone)
	return toPaymentOutcome(outcome, amountCents), nil
}

// serialHandshake is spec §4.4 Branch C step 2. Many terminals skip the
// handshake entirely; an unexpected or absent reply is logged, not fatal.
func (d *Driver) serialHandshake(tr transport.Transport) {
	if err := tr.Write([]byte{frame.ENQ}); err != nil {
		d.logf("handshake: write failed: %v", err)
		return
	}
	tr.Flush()
	d.clk.Sleep(200 * time.Millisecond)

	buf := make([]byte, 64)
	n, err := tr.Read(buf, transport.SerialReadTimeout)
	if err != nil || n == 0 {
		d.logf("handshake: no reply, proceeding anyway")
		return
	}

	switch buf[0] {
	case frame.ACK:
		d.logf("handshake: ACK received")
	case frame.ENQ:
		d.logf("handshake: terminal polling us, answering ACK")
		tr.Write([]byte{frame.ACK})
		tr.Flush()
		d.clk.Sleep(200 * time.Millisecond)
	default:
		d.logf("handshake: unexpected reply %s, proceeding anyway", frame.Hex(buf[:n]))
	}
}

// postSendProbe is spec §4.4 Branch C step 4. It reports whether the ASCII
// fallback must run, and the raw reply that triggered it (for diagnostics).
func (d *Driver) postSendProbe(tr transport.Transport) (fallback bool, raw []byte) {
	d.clk.Sleep(500 * time.Millisecond)

	buf := make([]byte, 64)
	n, err := tr.Read(buf, transport.SerialReadTimeout)
	if err != nil || n == 0 {
		return false, nil
	}
	raw = buf[:n]

	switch {
	case raw[0] == frame.ENQ && len(raw) == 1:
		tr.Write([]byte{frame.ACK})
		tr.Flush()
		return false, nil
	case raw[0] == frame.ENQ || raw[0] == frame.EOT || raw[0] == frame.NAK:
		return true, raw
	default:
		return false, raw
	}
}

// serialLongReadLoop is spec §4.4 Branch C step 5, bounded by a
// 120-second deadline. Cancellation is observed at least every
// serialPollTick (200ms), matching the ≤200ms bound of spec §5.
func (d *Driver) serialLongReadLoop(tr transport.Transport) ([]byte, bool, error) {
	_, expired := clock.Deadline(d.clk, 120*time.Second)
	t := d.newTicker(serialPollTick)
	defer t.Stop()

	var acc []byte
	for {
		if d.cancel.IsSet() {
			tr.Write([]byte{frame.CAN, frame.CAN, frame.CAN, frame.EOT})
			tr.Flush()
			return nil, true, nil
		}
		if expired() {
			return nil, false, ErrSerialTimeout
		}

		buf := make([]byte, 256)
		n, err := tr.Read(buf, pollReadTimeout)
		if err != nil {
			if err == transport.ErrReadTimeout {
				<-t.Ticks()
				continue
			}
			return nil, false, errors.Wrap(err, 0)
		}
		if n == 0 {
			<-t.Ticks()
			continue
		}

		chunk := buf[:n]
		if bytes.IndexByte(chunk, frame.ENQ) >= 0 {
			tr.Write([]byte{frame.ACK})
			tr.Flush()
		}
		acc = append(acc, chunk...)

		if bytes.IndexByte(acc, frame.ETX) >= 0 {
			break
		}
		if bytes.IndexByte(acc, frame.EOT) >= 0 && bytes.IndexByte(acc, frame.STX) < 0 {
			return nil, false, errors.New("terminal aborted (EOT without STX)")
		}
	}
	return acc, false, nil
}

// buildSerialPayload picks the C2 builder matching protocol.
func buildSerialPayload(protocol payload.Protocol, pos string, amountCents uint32) ([]byte, error) {
	switch protocol {
	case payload.ConcertV2Binary:
		return payload.BuildConcertV2(pos, amountCents)
	case payload.ConcertV3Binary:
		return payload.BuildConcertV3(pos, amountCents)
	case payload.SmilePay:
		return payload.BuildSmilePay(pos, amountCents)
	default:
		return payload.BuildConcertV3TLV(payload.CaisseAPIPParams{POSNumber: pos, AmountCents: amountCents})
	}
}

func cancelledOutcome(amountCents uint32) PaymentOutcome {
	return PaymentOutcome{
		Success:      false,
		ResultCode:   "CANCELLED",
		AmountCents:  amountCents,
		ErrorMessage: "Transaction cancelled by user",
	}
}

func toPaymentOutcome(o response.Outcome, amountCents uint32) PaymentOutcome {
	return PaymentOutcome{
		Success:             o.Success,
		ResultCode:          o.ResultCode,
		AmountCents:         amountCents,
		AuthorizationNumber: o.Authorization,
		ErrorMessage:        o.ErrorMessage,
		RawResponse:         o.Raw,
	}
}
