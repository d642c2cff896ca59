package types

import "time"

// Timestamp is a 64-bit monotonic nanosecond count from process start. It is
// not wall-clock time; use a Clock to convert between the two domains.
type Timestamp int64

// Clock captures a single wall-clock/monotonic calibration at process start
// and uses it to translate wire timestamps into the engine's Timestamp
// domain. Per spec.md §9, a single offset captured at startup is sufficient;
// the clock is never re-calibrated during the process lifetime.
type Clock struct {
	startWall time.Time
	startMono time.Time
}

// NewClock captures the calibration point. Call once, at process start.
func NewClock() Clock {
	now := time.Now()
	return Clock{startWall: now, startMono: now}
}

// Now returns the current engine Timestamp.
func (c Clock) Now() Timestamp {
	return Timestamp(time.Since(c.startMono).Nanoseconds())
}

// ToEngineTime converts a wall-clock instant (e.g. decoded from the wire's
// sending-time field) into the engine's monotonic Timestamp domain using the
// calibration offset captured at startup.
func (c Clock) ToEngineTime(wallClock time.Time) Timestamp {
	return Timestamp(wallClock.Sub(c.startWall).Nanoseconds())
}

// WireTimeLayout is the wire protocol's sending-time format: YYYYMMDD-HH:MM:SS.sss UTC.
const WireTimeLayout = "20060102-15:04:05.000"

// ParseWireTime parses a wire sending-time field into a UTC time.Time.
func ParseWireTime(s string) (time.Time, error) {
	return time.Parse(WireTimeLayout, s)
}
