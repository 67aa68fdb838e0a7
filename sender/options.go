package sender

import (
	"log/slog"

	"github.com/mevdschee/tqingest/transport"
)

// Option configures New
type Option func(*options)

type options struct {
	log       *slog.Logger
	transport transport.Transport
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithTransport sends rows through t instead of dialing the configured
// address. The sender takes ownership of t and closes it.
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.transport = t }
}

// FlushOption changes how FlushBuffer treats its buffer
type FlushOption func(*flushOptions)

type flushOptions struct {
	transactional bool
	keep          bool
}

// Transactional requires the buffer to hold rows for a single table, which
// the server then applies atomically. Only supported over HTTP.
func Transactional() FlushOption {
	return func(o *flushOptions) { o.transactional = true }
}

// KeepBuffer leaves the rows in the buffer after a successful flush and
// marks them as flushed, so later Truncate calls can't cut into them.
func KeepBuffer() FlushOption {
	return func(o *flushOptions) { o.keep = true }
}
