// Package tpe is the payment-terminal driver's public surface (spec §6):
// list_serial_ports, test_tpe_connection, send_tpe_payment,
// cancel_tpe_transaction, get_tpe_logs, clear_tpe_logs. Every blocking
// operation is dispatched onto a single dedicated worker goroutine, so the
// terminal I/O never runs on the caller's goroutine: test and pay wait on a
// channel for the worker's result, and cancel does not touch the worker at
// all — the same started/stopped/quit/request-
// channel shape the teacher's fundingManager uses to serialize channel-
// funding requests onto one goroutine (fundingmanager.go's
// newFundingManager/Start/Stop and its fundingRequests channel), adapted
// here to serialize payment requests instead of channel-open requests.
package tpe

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Kadem9/caissefacile-tpe/clock"
	"github.com/Kadem9/caissefacile-tpe/metrics"
	"github.com/Kadem9/caissefacile-tpe/payload"
	"github.com/Kadem9/caissefacile-tpe/portlist"
	"github.com/Kadem9/caissefacile-tpe/session"
	"github.com/Kadem9/caissefacile-tpe/tpelog"
)

// ErrManagerShuttingDown is returned by any public method invoked after
// Stop has been called.
var ErrManagerShuttingDown = errors.New("tpe: manager shutting down")

// request is the closure the single worker goroutine runs; resp is closed
// once run has returned.
type request struct {
	run  func()
	resp chan struct{}
}

// Manager owns the one dedicated blocking worker the session driver must
// run on (spec §5) and the one piece of process-wide state, the driver's
// CancellationFlag (reached through Driver.Cancel, not duplicated here).
type Manager struct {
	started sync.Once
	stopped sync.Once

	driver  *session.Driver
	logBuf  *tpelog.Buffer
	metrics *metrics.Collector

	requests chan *request
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewManager constructs a Manager with a real clock, a fresh log buffer,
// and metrics registered against reg (pass nil to skip metrics).
func NewManager(reg prometheus.Registerer) *Manager {
	logBuf := tpelog.New(clock.Default{})
	var collector *metrics.Collector
	if reg != nil {
		collector = metrics.New(reg)
	}
	return &Manager{
		driver:   session.New(clock.Default{}, logBuf),
		logBuf:   logBuf,
		metrics:  collector,
		requests: make(chan *request, 8),
		quit:     make(chan struct{}),
	}
}

// Start launches the worker goroutine. Idempotent.
func (m *Manager) Start() {
	m.started.Do(func() {
		m.wg.Add(1)
		go m.worker()
	})
}

// Stop signals the worker to exit and waits for it. Idempotent. A request
// the worker is already running finishes before Stop returns; requests
// still queued may never run, and every caller still waiting in dispatch
// gets ErrManagerShuttingDown. Stop does not cancel an in-progress
// payment — callers that need that should call CancelTpeTransaction first.
func (m *Manager) Stop() {
	m.stopped.Do(func() {
		close(m.quit)
		m.wg.Wait()
	})
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case req := <-m.requests:
			req.run()
			close(req.resp)
		case <-m.quit:
			return
		}
	}
}

// dispatch runs fn on the worker goroutine and blocks until it completes,
// or returns ErrManagerShuttingDown if the manager has already stopped.
func (m *Manager) dispatch(fn func()) error {
	req := &request{run: fn, resp: make(chan struct{})}
	select {
	case m.requests <- req:
	case <-m.quit:
		return ErrManagerShuttingDown
	}
	select {
	case <-req.resp:
		return nil
	case <-m.quit:
		return ErrManagerShuttingDown
	}
}

// TestTpeConnection implements spec §6's test_tpe_connection.
func (m *Manager) TestTpeConnection(descriptor string, baud int) (session.ConnectionTestResult, error) {
	var out session.ConnectionTestResult
	err := m.dispatch(func() {
		out = m.driver.TestConnection(descriptor, baud)
	})
	return out, err
}

// SendTpePayment implements spec §6's send_tpe_payment. protocolVersion is
// the raw u8 argument; ParseProtocolVersion maps it onto a
// payload.Protocol, defaulting unknown values to ConcertV3TLV.
func (m *Manager) SendTpePayment(descriptor string, baud int, pos string, protocolVersion uint8, amountCents uint32) (session.PaymentOutcome, error) {
	protocol := payload.ParseProtocolVersion(protocolVersion)
	if m.metrics != nil {
		m.metrics.Attempt(protocol)
	}

	var (
		out   session.PaymentOutcome
		opErr error
	)
	err := m.dispatch(func() {
		out, opErr = m.driver.Pay(descriptor, baud, pos, protocol, amountCents)
	})
	if err != nil {
		return out, err
	}
	if opErr != nil {
		if m.metrics != nil {
			if opErr == session.ErrTCPTimeout || opErr == session.ErrSerialTimeout {
				m.metrics.Timeout(protocol)
			} else {
				m.metrics.TransportError(protocol)
			}
		}
		return out, opErr
	}

	if m.metrics != nil {
		switch {
		case out.ResultCode == "CANCELLED":
			m.metrics.Cancellation(protocol)
		case out.Success:
			m.metrics.Approval(protocol)
		default:
			m.metrics.Refusal(protocol)
		}
	}
	return out, nil
}

// CancelTpeTransaction implements spec §6's cancel_tpe_transaction. Unlike
// every other operation, this one does not go through the worker: the
// point of CancellationFlag is that it's observable from outside the
// in-flight pay without itself blocking on the worker queue.
func (m *Manager) CancelTpeTransaction() string {
	return m.driver.Cancel()
}

// GetTpeLogs implements spec §6's get_tpe_logs.
func (m *Manager) GetTpeLogs() string {
	return m.logBuf.Dump()
}

// ClearTpeLogs implements spec §6's clear_tpe_logs.
func (m *Manager) ClearTpeLogs() string {
	m.logBuf.Clear()
	return "logs cleared"
}

// ListSerialPorts implements spec §6's list_serial_ports. It does not go
// through the worker: enumeration never touches an open transport or the
// cancellation flag.
func (m *Manager) ListSerialPorts() ([]portlist.Port, error) {
	return portlist.ListSerialPorts()
}
