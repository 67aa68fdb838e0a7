package sender

import (
	"context"

	"github.com/mevdschee/tqingest/ilp"
	"github.com/mevdschee/tqingest/metrics"
)

// Transaction collects rows for one table that are committed atomically
// over HTTP. Exactly one of Commit or Rollback must be called; a deferred
// Rollback after Commit returns an error and changes nothing.
type Transaction struct {
	s     *Sender
	table string
	start ilp.Position
	done  bool
}

// Begin opens a transaction for table. Pending rows are flushed first when
// auto-flush is on; otherwise they must have been flushed already.
func (s *Sender) Begin(ctx context.Context, table string) (*Transaction, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if !s.cfg.Protocol.IsHTTP() {
		return nil, ilp.Errorf(ilp.ErrInvalidAPICall,
			"Transactions aren't supported for ILP/TCP, use ILP/HTTP instead.")
	}
	if s.txn != nil {
		return nil, ilp.Errorf(ilp.ErrInvalidAPICall,
			"Already inside a transaction on table %q, can't start another.", s.txn.table)
	}
	if err := ilp.ValidateName(table, ilp.TableName, s.cfg.MaxNameLen); err != nil {
		return nil, err
	}
	if s.buf.Len() > 0 {
		if !s.autoFlush.Enabled() {
			return nil, ilp.Errorf(ilp.ErrInvalidAPICall,
				"Sender buffer must be clear when starting a transaction. Call Flush before Begin.")
		}
		if err := s.send(ctx, s.buf, false, false); err != nil {
			return nil, err
		}
	}

	s.autoFlush.Suspend()
	s.txn = &Transaction{s: s, table: table, start: s.buf.Tell()}
	s.log.Debug("transaction started", "table", table)
	return s.txn, nil
}

// Table is the table the transaction writes to
func (t *Transaction) Table() string { return t.table }

// Row appends a row. An empty r.Table means the transaction's table.
func (t *Transaction) Row(r ilp.Row) error {
	if t.done {
		return ilp.Errorf(ilp.ErrInvalidAPICall, "Transaction already completed, can't add rows.")
	}
	if r.Table == "" {
		r.Table = t.table
	}
	if r.Table != t.table {
		return ilp.Errorf(ilp.ErrInvalidAPICall,
			"Transaction is for table %q, can't add a row for table %q.", t.table, r.Table)
	}
	return t.s.buf.Row(r)
}

// Len is the number of bytes buffered by the transaction
func (t *Transaction) Len() int {
	if t.done {
		return 0
	}
	return t.s.buf.Len() - t.start.Offset()
}

// Commit sends the transaction's rows in a single request. The rows are
// discarded whether or not the server accepts them.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.done {
		return ilp.Errorf(ilp.ErrInvalidAPICall, "Transaction already completed, can't commit.")
	}
	t.finish()

	if err := t.s.send(ctx, t.s.buf, false, false); err != nil {
		metrics.TransactionsTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.TransactionsTotal.WithLabelValues("committed").Inc()
	t.s.log.Debug("transaction committed", "table", t.table)
	return nil
}

// Rollback discards the rows added since Begin
func (t *Transaction) Rollback() error {
	if t.done {
		return ilp.Errorf(ilp.ErrInvalidAPICall, "Transaction already completed, can't roll back.")
	}
	t.finish()
	t.s.buf.Truncate(t.start)

	metrics.TransactionsTotal.WithLabelValues("rolled_back").Inc()
	t.s.log.Debug("transaction rolled back", "table", t.table)
	return nil
}

func (t *Transaction) finish() {
	t.done = true
	t.s.txn = nil
	t.s.autoFlush.Resume()
}
