package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mevdschee/tqingest/auth"
	"github.com/mevdschee/tqingest/config"
	"github.com/mevdschee/tqingest/ilp"
)

// TCP streams rows over one long lived connection. The server gives no
// per-request feedback: a rejected row makes it close the connection, which
// surfaces as an error on a later Send.
type TCP struct {
	mu     sync.Mutex
	conn   net.Conn
	addr   string
	broken error
	log    *slog.Logger
}

// DialTCP connects to cfg.Addr(), negotiates TLS for tcps and authenticates
// when a key is configured.
func DialTCP(ctx context.Context, cfg *config.Config, log *slog.Logger) (*TCP, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("component", "transport.tcp")

	dialer := &net.Dialer{Timeout: cfg.AuthTimeout, KeepAlive: 30 * time.Second}
	if cfg.BindInterface != "" {
		ip := net.ParseIP(cfg.BindInterface)
		if ip == nil {
			return nil, ilp.Errorf(ilp.ErrConfig, "Invalid \"bind_interface\" address %q.", cfg.BindInterface)
		}
		dialer.LocalAddr = &net.TCPAddr{IP: ip}
	}

	addr := cfg.Addr()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ilp.Wrap(ilp.ErrConnect, err, "Could not connect to %q", addr)
	}

	if cfg.Protocol.IsTLS() {
		tc, err := TLSConfig(cfg)
		if err != nil {
			conn.Close()
			return nil, err
		}
		tlsConn := tls.Client(conn, tc)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, ilp.Wrap(ilp.ErrConnect, err, "TLS handshake with %q failed", addr)
		}
		conn = tlsConn
	}

	if cfg.Username != "" {
		signer, err := auth.NewSigner(cfg.Username, cfg.Token, cfg.TokenX, cfg.TokenY)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if err := signer.Handshake(conn, cfg.AuthTimeout); err != nil {
			conn.Close()
			return nil, err
		}
		log.Debug("authenticated", "key_id", signer.KeyID())
	}

	log.Info("connected", "addr", addr, "tls", cfg.Protocol.IsTLS())
	return &TCP{conn: conn, addr: addr, log: log}, nil
}

func (t *TCP) Name() string { return "tcp" }

// Send writes payload to the stream. After a failed write the connection is
// unusable and every later Send fails.
func (t *TCP) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.broken != nil {
		return ilp.Wrap(ilp.ErrConnect, t.broken, "Could not flush buffer: connection to %q is broken", t.addr)
	}
	if t.conn == nil {
		return ilp.Errorf(ilp.ErrInvalidAPICall, "Could not flush buffer: connection closed.")
	}

	if err := ctx.Err(); err != nil {
		code := ilp.ErrConnect
		if errors.Is(err, context.DeadlineExceeded) {
			code = ilp.ErrTimeout
		}
		return ilp.Wrap(code, err, "Could not flush buffer")
	}

	conn := t.conn
	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return t.fail(err)
	}
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		conn.SetWriteDeadline(time.Now())
		close(interrupted)
	})

	_, err := conn.Write(payload)
	if !stop() {
		// Cancelled while writing: wait for the interrupt so it can't
		// land on a later Send.
		<-interrupted
		if err == nil {
			if err := conn.SetWriteDeadline(time.Time{}); err != nil {
				return t.fail(err)
			}
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return t.fail(err)
	}
	return nil
}

func (t *TCP) fail(err error) error {
	t.broken = err
	t.conn.Close()
	t.log.Error("write failed", "addr", t.addr, "error", err)

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return ilp.Wrap(ilp.ErrTimeout, err, "Could not flush buffer: timed out writing to %q", t.addr)
	}
	return ilp.Wrap(ilp.ErrConnect, err, "Could not flush buffer: write to %q failed", t.addr)
}

// Close closes the connection
func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if t.broken != nil {
		return nil
	}
	return err
}
