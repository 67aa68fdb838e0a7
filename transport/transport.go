// Package transport carries serialized ILP rows to the server over TCP or
// HTTP.
package transport

import (
	"context"
	"log/slog"

	"github.com/mevdschee/tqingest/config"
	"github.com/mevdschee/tqingest/ilp"
)

// Transport sends one payload of complete rows at a time
type Transport interface {
	// Send delivers payload. Rows accepted by a TCP transport may still be
	// rejected later by the server; HTTP reports the server's verdict.
	Send(ctx context.Context, payload []byte) error
	// Name is "tcp" or "http".
	Name() string
	Close() error
}

// Negotiator is implemented by transports that can ask the server which
// protocol versions it accepts.
type Negotiator interface {
	Negotiate(ctx context.Context) (ilp.ProtocolVersion, error)
}

// Open connects the transport described by cfg
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (Transport, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.Protocol.IsHTTP() {
		h, err := NewHTTP(cfg, WithLogger(log))
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	t, err := DialTCP(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return t, nil
}
