package trace

import (
	"fmt"
	"time"
)

// TimeLayout is the layout of the timestamp that starts every line.
const TimeLayout = "2006-01-02 15:04:05.000000"

const separator = " - "

// SystemTime formats t as seconds since the epoch with microseconds.
func SystemTime(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

// FormatEvent returns the message part of the line of an event.
func FormatEvent(e Event) string {
	switch e.Kind {
	case KindSend:
		return fmt.Sprintf("SEND to %s - System time: %s, Logical clock: %d",
			Endpoint(e.Peer), SystemTime(e.WallTime), e.LogicalClock)
	case KindReceive:
		return fmt.Sprintf(
			"RECEIVE from %s - System time: %s, Queue length: %d, Logical clock: %d",
			Endpoint(e.Peer), SystemTime(e.WallTime), e.QueueLength, e.LogicalClock)
	default:
		return fmt.Sprintf("INTERNAL EVENT - System time: %s, Logical clock: %d",
			SystemTime(e.WallTime), e.LogicalClock)
	}
}

// FormatLine prefixes msg with the timestamp t.
func FormatLine(t time.Time, msg string) string {
	return t.Format(TimeLayout) + separator + msg + "\n"
}

// StartupMessage returns the message written when a node starts.
func StartupMessage(id, tickRate int) string {
	return fmt.Sprintf("Starting machine %d with clock rate %d ticks/second",
		id, tickRate)
}

// RangeMessage returns the message recording the internal event range.
func RangeMessage(lo, hi int) string {
	return fmt.Sprintf("Internal event range: (%d, %d)", lo, hi)
}

// ShutdownMessage returns the message written when a node stops.
func ShutdownMessage(id int) string {
	return fmt.Sprintf("Machine %d shutdown", id)
}
