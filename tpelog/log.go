// Package tpelog is the driver's diagnostic log: a bounded in-memory ring
// (spec §3 LogBuffer, cap 500) with best-effort mirroring to a file in the
// user's documents directory, retrievable and clearable by the host via
// the GetLogs/ClearLogs operations in spec §6.
//
// Logging within the driver's other packages goes through btclog, the
// teacher's logging facade (see peer/log.go, channeldb/log.go for the
// pattern this file follows); tpelog.Buffer sits alongside that facade, not
// in place of it: the session driver writes each diagnostic line to both.
package tpelog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/Kadem9/caissefacile-tpe/clock"
	"github.com/Kadem9/caissefacile-tpe/queue"
)

const (
	// Capacity is the fixed in-memory ring size mandated by spec §3.
	Capacity = 500

	logFileName = "ma-caisse-tpe-debug.log"

	// timeLayout matches spec §6: "[YYYY-MM-DD HH:MM:SS.mmm] <message>".
	timeLayout = "2006-01-02 15:04:05.000"
)

// Buffer is the bounded, timestamped, file-backed log described by spec §3.
// It is safe for concurrent use; writes are infrequent enough that a
// single mutex-guarded ring plus a best-effort file write is never a
// bottleneck (spec §5).
type Buffer struct {
	ring     *queue.Ring
	clk      clock.Clock
	fileMu      sync.Mutex
	filePath    string
	rotator     *rotator.Rotator
	fileAttempted bool
}

// New creates a Buffer. File-backing is attempted lazily on first Write,
// not here, so construction never fails even if no writable directory
// exists.
func New(clk clock.Clock) *Buffer {
	if clk == nil {
		clk = clock.Default{}
	}
	return &Buffer{
		ring: queue.NewRing(Capacity),
		clk:  clk,
	}
}

// Write appends a timestamped line to the ring and, best-effort, to the
// log file. It never returns an error: a failure to open the file is itself
// logged to the ring so it's visible via GetLogs; a later failed file write
// is dropped silently.
func (b *Buffer) Write(message string) {
	line := fmt.Sprintf("[%s] %s", b.clk.Now().Format(timeLayout), message)
	b.ring.Push(line)
	b.appendToFile(line)
}

// appendToFile lazily initializes the rotator on first use and tees the
// line to it. Rotation itself is configured off (maxRolls=0): spec §1
// places log-file rotation outside this driver's scope, so the rotator
// here is used purely as the teacher's thread-safe append-writer, never
// asked to retain a rolled-over predecessor.
func (b *Buffer) appendToFile(line string) {
	b.fileMu.Lock()
	defer b.fileMu.Unlock()

	if b.rotator == nil {
		if b.fileAttempted {
			return
		}
		b.fileAttempted = true

		path, err := resolveLogPath()
		if err != nil {
			b.ring.Push(fmt.Sprintf("[%s] log file unavailable: %v",
				b.clk.Now().Format(timeLayout), err))
			return
		}
		r, err := rotator.New(path, 10*1024, false, 0) // threshold in KB: 10 MiB
		if err != nil {
			b.ring.Push(fmt.Sprintf("[%s] log file unavailable: %v",
				b.clk.Now().Format(timeLayout), err))
			return
		}
		b.filePath = path
		b.rotator = r
	}

	_, _ = b.rotator.Write([]byte(line + "\n"))
}

// Snapshot returns the retained ring entries, oldest first.
func (b *Buffer) Snapshot() []string {
	return b.ring.Snapshot()
}

// Clear empties the ring. The backing file is left alone: clearing the
// diagnostic view the host sees is not the same as truncating history on
// disk, and spec §6 describes ClearLogs only in terms of the retrievable
// text blob.
func (b *Buffer) Clear() {
	b.ring.Clear()
}

// Dump renders the header (path, timestamp) plus every retained line, the
// exact shape spec §6's GetLogs text blob describes.
func (b *Buffer) Dump() string {
	var out bytes.Buffer
	path := b.filePath
	if path == "" {
		path = "(not yet written)"
	}
	fmt.Fprintf(&out, "log file: %s\n", path)
	fmt.Fprintf(&out, "generated: %s\n", b.clk.Now().Format(timeLayout))
	fmt.Fprintln(&out, "----")
	for _, line := range b.Snapshot() {
		fmt.Fprintln(&out, line)
	}
	return out.String()
}

// resolveLogPath picks <documents>/ma-caisse-tpe-debug.log if a documents
// directory exists, else <home>/..., else the current directory, per
// spec §6.
func resolveLogPath() (string, error) {
	if dir, err := documentsDir(); err == nil && dir != "" {
		return filepath.Join(dir, logFileName), nil
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, logFileName), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, logFileName), nil
}

// documentsDir returns a platform "Documents" directory if one can be
// located, purely by convention (no platform API dependency): ~/Documents
// on Unix-likes, stat-checked so we fall back cleanly when absent.
func documentsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	candidate := filepath.Join(home, "Documents")
	info, err := os.Stat(candidate)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("no documents directory")
	}
	return candidate, nil
}

// Logger returns a btclog.Logger that writes formatted records into this
// Buffer, so whatever is logged through it lands in GetLogs. The root
// package's SetupLoggers does not use it: it wires every subsystem logger
// to the btclog.Backend its caller passes in.
func (b *Buffer) Logger(subsystem string) btclog.Logger {
	backend := btclog.NewBackend(&bufferWriter{buf: b})
	return backend.Logger(subsystem)
}

// bufferWriter adapts Buffer to io.Writer so btclog.NewBackend can drive
// it like any other sink.
type bufferWriter struct {
	buf *Buffer
}

func (w *bufferWriter) Write(p []byte) (int, error) {
	w.buf.Write(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}
