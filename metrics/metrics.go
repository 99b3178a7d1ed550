// Package metrics exposes prometheus counters for the session driver's
// per-transaction outcomes, labeled by protocol selector. This mirrors the
// teacher's PROM subsystem (root log.go wires monitoring.UseLogger
// alongside every other subsystem logger) without pulling in the
// teacher's gRPC-interceptor monitoring package, which has no analogue
// here — a payment driver has no RPC surface to instrument.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Kadem9/caissefacile-tpe/payload"
)

// Collector groups the counters one tpe.Manager reports through. A nil
// *Collector is valid and every method becomes a no-op, so callers that
// don't wire metrics don't need a conditional at every call site.
type Collector struct {
	attempts      *prometheus.CounterVec
	approvals     *prometheus.CounterVec
	refusals      *prometheus.CounterVec
	timeouts      *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	transportErrs *prometheus.CounterVec
}

// New creates a Collector and registers its counters against reg. Passing
// prometheus.NewRegistry() keeps tests isolated from the global default
// registry; passing prometheus.DefaultRegisterer wires it into the
// process's default /metrics endpoint.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		attempts:      newCounterVec("tpe_payment_attempts_total", "Payment attempts started, by protocol."),
		approvals:     newCounterVec("tpe_payment_approvals_total", "Payments approved, by protocol."),
		refusals:      newCounterVec("tpe_payment_refusals_total", "Payments refused by the terminal, by protocol."),
		timeouts:      newCounterVec("tpe_payment_timeouts_total", "Payments that hit the total-transaction deadline, by protocol."),
		cancellations: newCounterVec("tpe_payment_cancellations_total", "Payments cancelled by the caller, by protocol."),
		transportErrs: newCounterVec("tpe_transport_errors_total", "Transport-level errors (open/write/read), by protocol."),
	}
	reg.MustRegister(c.attempts, c.approvals, c.refusals, c.timeouts, c.cancellations, c.transportErrs)
	return c
}

func newCounterVec(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, []string{"protocol"})
}

// Attempt records a payment attempt starting.
func (c *Collector) Attempt(p payload.Protocol) {
	c.inc(func() *prometheus.CounterVec { return c.attempts }, p)
}

// Approval records a terminal approval.
func (c *Collector) Approval(p payload.Protocol) {
	c.inc(func() *prometheus.CounterVec { return c.approvals }, p)
}

// Refusal records a terminal refusal (a well-formed, unsuccessful outcome).
func (c *Collector) Refusal(p payload.Protocol) {
	c.inc(func() *prometheus.CounterVec { return c.refusals }, p)
}

// Timeout records a payment that hit its total-transaction deadline.
func (c *Collector) Timeout(p payload.Protocol) {
	c.inc(func() *prometheus.CounterVec { return c.timeouts }, p)
}

// Cancellation records a payment cancelled by the caller.
func (c *Collector) Cancellation(p payload.Protocol) {
	c.inc(func() *prometheus.CounterVec { return c.cancellations }, p)
}

// TransportError records an open/write/read failure below the protocol layer.
func (c *Collector) TransportError(p payload.Protocol) {
	c.inc(func() *prometheus.CounterVec { return c.transportErrs }, p)
}

// inc takes the counter as a closure so a nil receiver is checked before any
// of its fields is read.
func (c *Collector) inc(vec func() *prometheus.CounterVec, p payload.Protocol) {
	if c == nil {
		return
	}
	vec().WithLabelValues(p.String()).Inc()
}
