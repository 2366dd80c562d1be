package clock

import "time"

// Clock provides the current time. Windowed statistics and retention
// cleanup depend on an injectable clock so tests can pin "now".
type Clock interface {
	Now() time.Time
}

// System is the wall-clock implementation used outside tests.
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

// Fixed is a test clock frozen at a specific instant.
type Fixed struct {
	Time time.Time
}

func (f Fixed) Now() time.Time {
	return f.Time
}
