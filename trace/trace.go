package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// A Sink accepts the lines of one node.
type Sink interface {
	// Emit writes an event line.
	Emit(e Event) error

	// Logf writes a line that is not an event.
	Logf(format string, args ...any) error

	// Close flushes and releases the sink.
	Close() error
}

// A Trace is an append-only Sink writing to an io.WriteCloser. It is safe for
// concurrent use; lines keep the order in which the calls were made.
type Trace struct {
	lock   sync.Mutex
	out    io.WriteCloser
	w      *bufio.Writer
	now    func() time.Time
	closed bool
}

// New creates a trace writing to out.
func New(out io.WriteCloser) *Trace {
	return &Trace{
		out: out,
		w:   bufio.NewWriter(out),
		now: time.Now,
	}
}

// Create creates (or truncates) the file at path and returns a trace writing
// to it.
func Create(path string) (*Trace, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open trace %s: %w", path, err)
	}

	return New(f), nil
}

// Emit writes the line of e, timestamped with e.WallTime.
func (t *Trace) Emit(e Event) error {
	return t.write(FormatLine(e.WallTime, FormatEvent(e)))
}

// Logf writes a free-form line timestamped with the current time.
func (t *Trace) Logf(format string, args ...any) error {
	return t.write(FormatLine(t.now(), fmt.Sprintf(format, args...)))
}

func (t *Trace) write(line string) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.closed {
		return os.ErrClosed
	}

	_, err := t.w.WriteString(line)
	if err != nil {
		return fmt.Errorf("write trace: %w", err)
	}

	return nil
}

// Flush writes buffered lines to the underlying writer.
func (t *Trace) Flush() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.w.Flush()
}

// Close flushes and closes the underlying writer. Closing twice is a no-op.
func (t *Trace) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	flushErr := t.w.Flush()
	closeErr := t.out.Close()

	if flushErr != nil {
		return fmt.Errorf("flush trace: %w", flushErr)
	}

	return closeErr
}

var _ Sink = (*Trace)(nil)
