package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNotALine is returned by ParseLine for text without a leading timestamp.
var ErrNotALine = errors.New("not a trace line")

var (
	timestampRe   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})(\.\d+)?`)
	systemTimeRe  = regexp.MustCompile(`System time: (\d+)\.(\d+)`)
	logicalRe     = regexp.MustCompile(`Logical clock: (\d+)`)
	queueLengthRe = regexp.MustCompile(`Queue length: (\d+)`)
	sendRe        = regexp.MustCompile(`SEND to (\S+)`)
	receiveRe     = regexp.MustCompile(`RECEIVE from (\S+)`)
)

// A Line is one parsed line of a trace file.
type Line struct {
	Time    time.Time
	Message string

	// Event is set when the line records an event.
	Event *Event
}

// IsStartup tells if the line marks the start of a node.
func (l Line) IsStartup() bool {
	return strings.Contains(l.Message, "Starting machine")
}

// IsShutdown tells if the line marks the stop of a node.
func (l Line) IsShutdown() bool {
	return strings.Contains(l.Message, "shutdown")
}

// ParseLine parses one line of a trace file. Peers are reported in the short
// form written to the file.
func ParseLine(text string) (Line, error) {
	text = strings.TrimRight(text, "\r\n")

	m := timestampRe.FindStringSubmatch(text)
	if m == nil {
		return Line{}, ErrNotALine
	}

	layout := "2006-01-02 15:04:05"
	stamp := m[1]
	if m[2] != "" {
		layout += "." + strings.Repeat("0", len(m[2])-1)
		stamp += m[2]
	}

	t, err := time.ParseInLocation(layout, stamp, time.Local)
	if err != nil {
		return Line{}, fmt.Errorf("%w: %v", ErrNotALine, err)
	}

	line := Line{
		Time:    t,
		Message: strings.TrimPrefix(text[len(m[0]):], separator),
	}

	line.Event, err = parseEvent(line.Message)
	if err != nil {
		return Line{}, err
	}

	return line, nil
}

func parseEvent(msg string) (*Event, error) {
	st := systemTimeRe.FindStringSubmatch(msg)
	lc := logicalRe.FindStringSubmatch(msg)
	if st == nil || lc == nil {
		return nil, nil
	}

	e := &Event{}

	switch {
	case strings.HasPrefix(msg, "INTERNAL EVENT"):
		e.Kind = KindInternal
	case strings.HasPrefix(msg, "SEND to"):
		e.Kind = KindSend
		e.Peer = sendRe.FindStringSubmatch(msg)[1]
	case strings.HasPrefix(msg, "RECEIVE from"):
		e.Kind = KindReceive
		e.Peer = receiveRe.FindStringSubmatch(msg)[1]

		q := queueLengthRe.FindStringSubmatch(msg)
		if q == nil {
			return nil, fmt.Errorf("receive line without queue length: %q", msg)
		}
		e.QueueLength, _ = strconv.Atoi(q[1])
	default:
		return nil, nil
	}

	sec, _ := strconv.ParseInt(st[1], 10, 64)
	frac := (st[2] + "000000000")[:9]
	nsec, _ := strconv.ParseInt(frac, 10, 64)
	e.WallTime = time.Unix(sec, nsec)

	value, err := strconv.ParseUint(lc[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad logical clock in %q: %w", msg, err)
	}
	e.LogicalClock = value

	return e, nil
}

// A Summary describes a verified trace file.
type Summary struct {
	Started   bool
	Shutdown  bool
	Events    int
	Internal  int
	Sends     int
	Receives  int
	LastClock uint64

	// MaxQueueLength is the largest queue length recorded on a RECEIVE.
	MaxQueueLength int
}

// ErrNotMonotonic is returned by Verify when a logical clock value is not
// larger than the one before it.
var ErrNotMonotonic = errors.New("logical clock not strictly increasing")

// Verify reads a whole trace and checks that the logical clock strictly
// increases from event to event. Lines that are not trace lines are skipped.
func Verify(r io.Reader) (Summary, error) {
	s := Summary{}
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line, err := ParseLine(scanner.Text())
		if errors.Is(err, ErrNotALine) {
			continue
		}
		if err != nil {
			return s, fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch {
		case line.IsStartup():
			s.Started = true
		case line.IsShutdown():
			s.Shutdown = true
		case line.Event != nil:
			err = s.add(*line.Event)
			if err != nil {
				return s, fmt.Errorf("line %d: %w", lineNo, err)
			}
		}
	}

	return s, scanner.Err()
}

func (s *Summary) add(e Event) error {
	if s.Events > 0 && e.LogicalClock <= s.LastClock {
		return fmt.Errorf("%w: %d after %d",
			ErrNotMonotonic, e.LogicalClock, s.LastClock)
	}

	s.Events++
	s.LastClock = e.LogicalClock

	switch e.Kind {
	case KindInternal:
		s.Internal++
	case KindSend:
		s.Sends++
	case KindReceive:
		s.Receives++
		if e.QueueLength > s.MaxQueueLength {
			s.MaxQueueLength = e.QueueLength
		}
	}

	return nil
}
