package session

import "sync/atomic"

// State is one step of the per-transaction state machine (spec §4.4):
// Idle -> Opening -> Handshaking -> Sending -> AwaitingAck ->
// AwaitingResponse -> Finalizing -> Done, with Cancelled, TransportError,
// and ProtocolFallback (out of AwaitingAck, into an ASCII attempt) reachable
// from any state. Done, Cancelled, and TransportError are terminal.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateHandshaking
	StateSending
	StateAwaitingAck
	StateAwaitingResponse
	StateFinalizing
	StateDone
	StateCancelled
	StateProtocolFallback
	StateTransportError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateOpening:
		return "Opening"
	case StateHandshaking:
		return "Handshaking"
	case StateSending:
		return "Sending"
	case StateAwaitingAck:
		return "AwaitingAck"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateFinalizing:
		return "Finalizing"
	case StateDone:
		return "Done"
	case StateCancelled:
		return "Cancelled"
	case StateProtocolFallback:
		return "ProtocolFallback"
	case StateTransportError:
		return "TransportError"
	default:
		return "Unknown"
	}
}

// PaymentOutcome is the result of a pay call, spec §3. success=true implies
// AuthorizationNumber may be set and ErrorMessage is empty; success=false
// implies ErrorMessage is set.
type PaymentOutcome struct {
	Success             bool
	ResultCode          string
	AmountCents         uint32
	AuthorizationNumber string
	ErrorMessage        string
	RawResponse         string
}

// ConnectionTestResult is the result of test_connection, spec §3.
type ConnectionTestResult struct {
	Connected bool
	Message   string
	RawData   string
}

// CancellationFlag is the single piece of process-wide mutable state the
// driver owns (spec §3, §5): cleared at the start of every pay, set by any
// cancel call, polled during long reads. Reads are unordered acquires,
// writes unordered releases — plain atomics are enough since no other state
// is ever read alongside it.
type CancellationFlag struct {
	flag int32
}

// Set marks a cancellation request.
func (f *CancellationFlag) Set() {
	atomic.StoreInt32(&f.flag, 1)
}

// Clear resets the flag, called at the start of every pay.
func (f *CancellationFlag) Clear() {
	atomic.StoreInt32(&f.flag, 0)
}

// IsSet reports whether a cancellation is pending.
func (f *CancellationFlag) IsSet() bool {
	return atomic.LoadInt32(&f.flag) == 1
}
