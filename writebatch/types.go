package writebatch

import "time"

// Reason says which threshold triggered a flush
type Reason string

const (
	// ReasonNone means no threshold was crossed
	ReasonNone Reason = ""
	// ReasonBytes means the buffer reached the byte threshold
	ReasonBytes Reason = "bytes"
	// ReasonRows means the buffer reached the row threshold
	ReasonRows Reason = "rows"
	// ReasonInterval means the time since the last flush reached the interval
	ReasonInterval Reason = "interval"
)

// Config holds the auto-flush thresholds. A zero threshold is off.
type Config struct {
	Enabled  bool
	Rows     int           // Flush once this many rows are buffered
	Bytes    int           // Flush once the buffer holds this many bytes
	Interval time.Duration // Flush once this much time passed since the last flush
}

// DefaultHTTPConfig returns the thresholds used over HTTP
func DefaultHTTPConfig() Config {
	return Config{
		Enabled:  true,
		Rows:     75000,
		Bytes:    0,
		Interval: time.Second,
	}
}

// DefaultTCPConfig returns the thresholds used over TCP
func DefaultTCPConfig() Config {
	return Config{
		Enabled:  true,
		Rows:     600,
		Bytes:    0,
		Interval: time.Second,
	}
}

// Disabled returns a config that never triggers
func Disabled() Config {
	return Config{}
}
