// Package sender buffers rows and ships them to the server, flushing
// automatically when the configured thresholds are reached.
//
// A Sender is not safe for concurrent use. Goroutines can build their own
// buffers with NewBuffer and hand them to FlushBuffer one at a time.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mevdschee/tqingest/config"
	"github.com/mevdschee/tqingest/ilp"
	"github.com/mevdschee/tqingest/metrics"
	"github.com/mevdschee/tqingest/transport"
	"github.com/mevdschee/tqingest/writebatch"
)

// Sender owns a buffer and a transport
type Sender struct {
	cfg       *config.Config
	transport transport.Transport
	buf       *ilp.Buffer
	autoFlush *writebatch.Controller
	version   ilp.ProtocolVersion
	txn       *Transaction
	closed    bool
	log       *slog.Logger
}

// New connects a sender. Over HTTP with protocol_version=auto the server is
// asked which protocol version to use; TCP defaults to version 1.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.New(slog.DiscardHandler)
	}
	metrics.Init()

	t := o.transport
	if t == nil {
		var err error
		if t, err = transport.Open(ctx, cfg, o.log); err != nil {
			return nil, err
		}
	}

	version := cfg.ProtocolVersion
	if version == 0 {
		version = ilp.ProtocolVersion1
		if n, ok := t.(transport.Negotiator); ok && cfg.Protocol.IsHTTP() {
			v, err := n.Negotiate(ctx)
			if err != nil {
				t.Close()
				return nil, err
			}
			version = v
		}
	}

	s := &Sender{
		cfg:       cfg,
		transport: t,
		autoFlush: writebatch.New(cfg.AutoFlush),
		version:   version,
		log:       o.log.With("component", "sender"),
	}
	s.buf = s.NewBuffer()
	s.log.Info("sender ready", "protocol", cfg.Protocol, "addr", cfg.Addr(), "protocol_version", int(version))
	return s, nil
}

// FromConf parses a configuration string and connects
func FromConf(ctx context.Context, conf string, opts ...Option) (*Sender, error) {
	cfg, err := config.Parse(conf)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts...)
}

// FromEnv connects using the configuration string in QDB_CLIENT_CONF
func FromEnv(ctx context.Context, opts ...Option) (*Sender, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts...)
}

// NewBuffer returns an empty buffer with the sender's size limits and
// protocol version
func (s *Sender) NewBuffer() *ilp.Buffer {
	return ilp.NewBuffer(
		ilp.WithInitCapacity(s.cfg.InitBufSize),
		ilp.WithMaxCapacity(s.cfg.MaxBufSize),
		ilp.WithMaxNameLen(s.cfg.MaxNameLen),
		ilp.WithProtocolVersion(s.version),
	)
}

// ProtocolVersion is the version in use for this connection
func (s *Sender) ProtocolVersion() ilp.ProtocolVersion { return s.version }

// Config returns the resolved configuration
func (s *Sender) Config() *config.Config { return s.cfg }

// Len is the number of pending bytes in the sender's buffer
func (s *Sender) Len() int { return s.buf.Len() }

// RowCount is the number of pending rows in the sender's buffer
func (s *Sender) RowCount() int { return s.buf.RowCount() }

// Row appends a row to the sender's buffer and flushes if a threshold is
// crossed. A failed auto-flush still discards the buffered rows.
func (s *Sender) Row(ctx context.Context, r ilp.Row) error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.txn != nil {
		return ilp.Errorf(ilp.ErrInvalidAPICall,
			"Cannot append rows to the sender while a transaction on table %q is open. Use the transaction instead.", s.txn.table)
	}
	if err := s.buf.Row(r); err != nil {
		return err
	}
	return s.maybeAutoFlush(ctx)
}

func (s *Sender) maybeAutoFlush(ctx context.Context) error {
	reason := s.autoFlush.Check(s.buf.RowCount(), s.buf.Len())
	if reason == writebatch.ReasonNone {
		return nil
	}
	metrics.AutoFlushTotal.WithLabelValues(string(reason)).Inc()
	s.log.Debug("auto-flush", "reason", reason, "rows", s.buf.RowCount(), "bytes", s.buf.Len(),
		"since_last_flush", s.autoFlush.SinceLastFlush())
	return s.send(ctx, s.buf, false, false)
}

// Flush sends and clears the sender's buffer. The buffer is cleared even
// when sending fails.
func (s *Sender) Flush(ctx context.Context) error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.txn != nil {
		return ilp.Errorf(ilp.ErrInvalidAPICall,
			"Cannot flush explicitly inside a transaction. Commit or roll it back instead.")
	}
	return s.send(ctx, s.buf, false, false)
}

// FlushBuffer sends a caller owned buffer. It is cleared after a successful
// send unless KeepBuffer is given, and left untouched when sending fails.
func (s *Sender) FlushBuffer(ctx context.Context, buf *ilp.Buffer, opts ...FlushOption) error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.txn != nil {
		return ilp.Errorf(ilp.ErrInvalidAPICall,
			"Cannot flush explicitly inside a transaction. Commit or roll it back instead.")
	}
	var o flushOptions
	for _, opt := range opts {
		opt(&o)
	}

	if buf.ProtocolVersion() != s.version {
		return ilp.Errorf(ilp.ErrProtocol,
			"Buffer uses protocol version %d but the sender uses version %d. Create buffers with Sender.NewBuffer.",
			int(buf.ProtocolVersion()), int(s.version))
	}
	if buf.Len() > s.cfg.MaxBufSize {
		return ilp.Errorf(ilp.ErrBufferOverflow,
			"Could not flush buffer: buffer size of %d exceeds maximum configured allowed size of %d bytes.",
			buf.Len(), s.cfg.MaxBufSize)
	}
	if o.transactional {
		if !s.cfg.Protocol.IsHTTP() {
			return ilp.Errorf(ilp.ErrInvalidAPICall, "Transactional flushes are not supported for ILP over TCP.")
		}
		if !buf.Transactional() {
			return ilp.Errorf(ilp.ErrInvalidAPICall,
				"Buffer contains rows for tables %v, a transactional flush needs a single table.", buf.Tables())
		}
	}
	return s.send(ctx, buf, o.keep, true)
}

// send ships buf. The sender's own buffer is always cleared; an external
// buffer is only cleared or sealed after a successful send.
func (s *Sender) send(ctx context.Context, buf *ilp.Buffer, keep, external bool) error {
	if buf == s.buf {
		defer s.autoFlush.Flushed()
	}
	if buf.Len() == 0 {
		return nil
	}

	name := s.transport.Name()
	rows, size := buf.RowCount(), buf.Len()
	start := time.Now()
	err := s.transport.Send(ctx, buf.Bytes())
	elapsed := time.Since(start)

	metrics.FlushLatency.WithLabelValues(name).Observe(elapsed.Seconds())
	metrics.FlushBytes.WithLabelValues(name).Observe(float64(size))
	metrics.FlushRows.WithLabelValues(name).Observe(float64(rows))

	switch {
	case err == nil && keep:
		buf.Seal()
	case err == nil || !external:
		buf.Clear()
	}

	if err != nil {
		metrics.FlushTotal.WithLabelValues(name, "error").Inc()
		s.log.Error("flush failed", "rows", rows, "bytes", size, "error", err)
		return err
	}
	metrics.FlushTotal.WithLabelValues(name, "ok").Inc()
	s.log.Debug("flushed", "rows", rows, "bytes", size, "elapsed", elapsed)
	return nil
}

func (s *Sender) usable() error {
	if s.closed {
		return ilp.Errorf(ilp.ErrInvalidAPICall, "Sender is closed.")
	}
	return nil
}

// Close flushes pending rows and closes the transport. Closing with an
// open transaction rolls it back and reports an error. Calling Close again
// is a no-op.
func (s *Sender) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}

	var flushErr error
	if s.txn != nil {
		table := s.txn.table
		s.txn.Rollback()
		flushErr = ilp.Errorf(ilp.ErrInvalidAPICall,
			"Sender closed inside an open transaction on table %q, its rows were discarded.", table)
	} else {
		flushErr = s.send(ctx, s.buf, false, false)
	}
	s.closed = true

	closeErr := s.transport.Close()
	s.log.Info("sender closed")
	return errors.Join(flushErr, closeErr)
}
