package writebatch

import "time"

// Controller decides after each appended row whether the buffer should be
// flushed. It runs no timers: the interval is only checked when Check is
// called, so an idle buffer waits for the next row.
//
// Not safe for concurrent use, like the Sender that owns it.
type Controller struct {
	config    Config
	lastFlush time.Time
	suspended int
	now       func() time.Time
}

// New creates a controller; the interval starts counting now
func New(config Config) *Controller {
	c := &Controller{
		config: config,
		now:    time.Now,
	}
	c.lastFlush = c.now()
	return c
}

// Validate checks the thresholds
func (c Config) Validate() error {
	if c.Rows < 0 || c.Bytes < 0 || c.Interval < 0 {
		return ErrNegativeThreshold
	}
	if c.Enabled && c.Rows == 0 && c.Bytes == 0 && c.Interval == 0 {
		return ErrNoThreshold
	}
	return nil
}

// Config returns the thresholds in use
func (c *Controller) Config() Config {
	return c.config
}

// Enabled reports whether auto-flush is on and not suspended
func (c *Controller) Enabled() bool {
	return c.config.Enabled && c.suspended == 0
}

// Check returns the first crossed threshold for a buffer holding rows rows
// and size bytes, testing bytes, then rows, then elapsed time.
func (c *Controller) Check(rows, size int) Reason {
	if !c.Enabled() || rows == 0 {
		return ReasonNone
	}
	if c.config.Bytes > 0 && size >= c.config.Bytes {
		return ReasonBytes
	}
	if c.config.Rows > 0 && rows >= c.config.Rows {
		return ReasonRows
	}
	if c.config.Interval > 0 && c.SinceLastFlush() >= c.config.Interval {
		return ReasonInterval
	}
	return ReasonNone
}

// Flushed restarts the interval; call it after every flush attempt
func (c *Controller) Flushed() {
	c.lastFlush = c.now()
}

// Suspend stops Check from triggering until the matching Resume
func (c *Controller) Suspend() {
	c.suspended++
}

// Resume undoes one Suspend
func (c *Controller) Resume() {
	if c.suspended > 0 {
		c.suspended--
	}
}

// SinceLastFlush returns the time elapsed since the last flush
func (c *Controller) SinceLastFlush() time.Duration {
	return c.now().Sub(c.lastFlush)
}
