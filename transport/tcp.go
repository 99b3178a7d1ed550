package transport

import (
	stderrors "errors"
	"net"
	"time"

	"github.com/go-errors/errors"
)

// TCPTransport wraps a TCP_NODELAY socket. Latency matters here: per-read
// buffering would coalesce ENQ bytes that must be answered immediately
// (spec §4.3).
type TCPTransport struct {
	conn *net.TCPConn
}

// OpenTCP dials addr ("host:port") with a TCPConnectTimeout connect deadline
// and enables TCP_NODELAY on the resulting socket.
func OpenTCP(addr string) (*TCPTransport, error) {
	conn, err := net.DialTimeout("tcp", addr, TCPConnectTimeout)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, errors.New("transport: dialed connection is not TCP")
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		tcpConn.Close()
		return nil, errors.Wrap(err, 0)
	}

	transportLog.Debugf("opened TCP transport to %s (nodelay)", addr)
	return &TCPTransport{conn: tcpConn}, nil
}

// Write writes data with a TCPWriteTimeout deadline.
func (t *TCPTransport) Write(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(TCPWriteTimeout)); err != nil {
		return errors.Wrap(err, 0)
	}
	_, err := t.conn.Write(data)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// Read reads into buf with the given per-call deadline, falling back to
// TCPReadTimeout when timeout <= 0.
func (t *TCPTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = TCPReadTimeout
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, errors.Wrap(err, 0)
	}
	n, err := t.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, ErrReadTimeout
		}
		if stderrors.Is(err, net.ErrClosed) {
			return n, ErrTransportClosed
		}
		return n, errors.Wrap(err, 0)
	}
	return n, nil
}

// Flush is a no-op: TCP_NODELAY already disables Nagle buffering, and the
// kernel socket has no user-space write buffer to drain.
func (t *TCPTransport) Flush() error {
	return nil
}

// Close closes the socket. Safe to call concurrently with a blocked Read:
// the read unblocks with a "use of closed network connection" error.
func (t *TCPTransport) Close() error {
	return t.conn.Close()
}
