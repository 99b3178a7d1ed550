package transport

import (
	"strings"
	"time"

	"github.com/daedaluz/goserial"
	"github.com/go-errors/errors"
)

// SerialTransport drives a physical serial line at 7E1 (7 data bits, even
// parity, 1 stop bit). Spec §4.3: the Ingenico "Concert" family and every
// terminal tested so far speak 7E1; 8N1 yields garbled bytes.
type SerialTransport struct {
	port *serial.Port
}

// OpenSerial opens path at baud (DefaultBaud when baud <= 0) in 7E1 mode and
// sets the default SerialReadTimeout.
func OpenSerial(path string, baud int) (*SerialTransport, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}

	opts := serial.NewOptions().SetReadTimeout(SerialReadTimeout)
	port, err := serial.Open(path, opts)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	attrs, err := port.GetAttr()
	if err != nil {
		port.Close()
		return nil, errors.Wrap(err, 0)
	}
	attrs.MakeRaw()
	attrs.SetSpeed(baudToCFlag(baud))
	// 7 data bits, even parity (PARENB without PARODD), one stop bit
	// (CSTOPB unset), receiver enabled, ignore modem control lines.
	attrs.Cflag &^= serial.CSIZE | serial.CSTOPB | serial.PARODD
	attrs.Cflag |= serial.CS7 | serial.PARENB | serial.CREAD | serial.CLOCAL

	if err := port.SetAttr(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, errors.Wrap(err, 0)
	}

	transportLog.Debugf("opened serial port %s at %d baud (7E1)", path, baud)
	return &SerialTransport{port: port}, nil
}

func baudToCFlag(baud int) serial.CFlag {
	switch baud {
	case 1200:
		return serial.B1200
	case 2400:
		return serial.B2400
	case 4800:
		return serial.B4800
	case 9600:
		return serial.B9600
	case 19200:
		return serial.B19200
	case 38400:
		return serial.B38400
	case 57600:
		return serial.B57600
	case 115200:
		return serial.B115200
	default:
		return serial.B9600
	}
}

// Write writes data in a single call; the terminal protocols in this driver
// never span a write across multiple syscalls.
func (s *SerialTransport) Write(data []byte) error {
	_, err := s.port.Write(data)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// Read reads into buf with a per-call timeout, translating the underlying
// poll timeout into ErrReadTimeout so callers can distinguish "nothing
// arrived yet" from a hard transport failure (spec §4.4 step 3c).
func (s *SerialTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	n, err := s.port.ReadTimeout(buf, timeout)
	if err != nil {
		if err == serial.ErrClosed {
			return 0, ErrTransportClosed
		}
		if isTimeout(err) {
			return 0, ErrReadTimeout
		}
		return 0, errors.Wrap(err, 0)
	}
	return n, nil
}

// isTimeout reports whether err represents a read deadline expiring rather
// than a hard transport failure. net.Error.Timeout() covers the TCP side;
// the serial poll layer surfaces timeouts as a plain error whose message
// names it, since it has no typed timeout error of its own.
func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	if t, ok := err.(timeout); ok {
		return t.Timeout()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded")
}

// Flush discards unread input and unwritten output, the POSIX TCIOFLUSH
// queue.
func (s *SerialTransport) Flush() error {
	return s.port.Flush(serial.TCIOFLUSH)
}

// Close closes the underlying file descriptor. Safe to call concurrently
// with a blocked Read: the next poll wakes with serial.ErrClosed.
func (s *SerialTransport) Close() error {
	return s.port.Close()
}
