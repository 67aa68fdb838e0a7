package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mevdschee/tqingest/auth"
	"github.com/mevdschee/tqingest/cache"
	"github.com/mevdschee/tqingest/config"
	"github.com/mevdschee/tqingest/ilp"
	"github.com/mevdschee/tqingest/metrics"
	"github.com/mevdschee/tqingest/retry"
)

const (
	writePath    = "/write"
	settingsPath = "/settings"

	// settingsTTL is how long a /settings answer is reused by new senders
	settingsTTL = time.Minute

	maxErrorBody = 1 << 20
)

// retryableStatus lists the HTTP statuses worth another attempt
var retryableStatus = map[int]bool{
	500: true, 503: true, 504: true, 507: true, 509: true,
	523: true, 524: true, 529: true, 599: true,
}

var sharedSettings = sync.OnceValues(func() (*cache.Cache, error) {
	return cache.New(cache.DefaultMaxSize)
})

// HTTP posts every payload to /write, retrying transient failures
type HTTP struct {
	client         *http.Client
	base           string
	auth           auth.HTTPAuth
	policy         *retry.Policy
	requestTimeout time.Duration
	minThroughput  int
	settings       *cache.Cache
	log            *slog.Logger
}

// HTTPOption configures NewHTTP
type HTTPOption func(*HTTP)

// WithLogger sets the logger
func WithLogger(log *slog.Logger) HTTPOption {
	return func(h *HTTP) {
		if log != nil {
			h.log = log
		}
	}
}

// WithSettingsCache replaces the process wide /settings cache
func WithSettingsCache(c *cache.Cache) HTTPOption {
	return func(h *HTTP) { h.settings = c }
}

// NewHTTP prepares an HTTP transport. No connection is made until the
// first request.
func NewHTTP(cfg *config.Config, opts ...HTTPOption) (*HTTP, error) {
	creds, err := auth.NewHTTPAuth(cfg.Username, cfg.Password, cfg.Token)
	if err != nil {
		return nil, err
	}

	scheme := "http"
	if cfg.Protocol.IsTLS() {
		scheme = "https"
	}
	h := &HTTP{
		base:           scheme + "://" + cfg.Addr(),
		auth:           creds,
		policy:         retry.NewPolicy(cfg.RetryTimeout),
		requestTimeout: cfg.RequestTimeout,
		minThroughput:  cfg.RequestMinThroughput,
		log:            slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With("component", "transport.http")

	rt := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.RequestTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.Protocol.IsTLS() {
		tc, err := TLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		rt.TLSClientConfig = tc
	}
	h.client = &http.Client{Transport: rt}

	if h.settings == nil {
		if h.settings, err = sharedSettings(); err != nil {
			return nil, ilp.Wrap(ilp.ErrConfig, err, "Could not create settings cache")
		}
	}

	h.policy.Retryable = isRetryable
	h.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.RetriesTotal.Inc()
		h.log.Warn("retrying request", "attempt", attempt, "delay", delay, "error", err)
	}
	return h, nil
}

func (h *HTTP) Name() string { return "http" }

// Timeout returns the per-request timeout for a payload of n bytes: the
// request timeout plus the time n bytes take at the minimum throughput.
// The result saturates at the largest Duration.
func (h *HTTP) Timeout(n int) time.Duration {
	d := h.requestTimeout
	if h.minThroughput <= 0 || n <= 0 {
		return d
	}
	mt := int64(h.minThroughput)
	secs, rem := int64(n)/mt, int64(n)%mt
	if secs > (math.MaxInt64-int64(d))/int64(time.Second)-1 {
		return time.Duration(math.MaxInt64)
	}
	extra := time.Duration(secs) * time.Second
	// rem < mt, so the sub-second part fits unless mt exceeds ~9 GB/s
	if mt <= math.MaxInt64/int64(time.Second) {
		extra += time.Duration(rem) * time.Second / time.Duration(mt)
	}
	return d + extra
}

// Send posts payload to /write
func (h *HTTP) Send(ctx context.Context, payload []byte) error {
	return h.policy.Do(ctx, func(ctx context.Context) error {
		return h.post(ctx, payload)
	})
}

func (h *HTTP) post(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout(len(payload)))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+writePath, bytes.NewReader(payload))
	if err != nil {
		return ilp.Wrap(ilp.ErrConfig, err, "Could not build request for %q", h.base)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	h.auth.Apply(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return requestErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return requestErr(err)
	}
	return serverErr(resp, body)
}

func requestErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ilp.Wrap(ilp.ErrTimeout, err, "Could not flush buffer: timed out reading response")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ilp.Wrap(ilp.ErrTimeout, err, "Could not flush buffer: timed out reading response")
	}
	return ilp.Wrap(ilp.ErrConnect, err, "Could not flush buffer")
}

// serverError is the JSON body of a rejected write
type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	ErrorID string `json:"errorId"`
}

func serverErr(resp *http.Response, body []byte) error {
	e := &ilp.Error{Code: ilp.ErrServer, Status: resp.StatusCode}

	var se serverError
	if json.Unmarshal(body, &se) == nil && se.Message != "" {
		e.ServerCode, e.Line, e.ErrorID = se.Code, se.Line, se.ErrorID
		e.Msg = fmt.Sprintf("Could not flush buffer: %s [id: %s, code: %s, line: %d]",
			se.Message, se.ErrorID, se.Code, se.Line)
		return e
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	e.Msg = fmt.Sprintf("Could not flush buffer: %s [HTTP %d]", text, resp.StatusCode)
	return e
}

func isRetryable(err error) bool {
	var e *ilp.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case ilp.ErrConnect, ilp.ErrTimeout:
		return true
	case ilp.ErrServer:
		return retryableStatus[e.Status]
	}
	return false
}

// Negotiate asks /settings for the protocol versions the server accepts
// and returns the highest one this client also speaks. Servers without the
// endpoint, or without the setting, get version 1.
func (h *HTTP) Negotiate(ctx context.Context) (ilp.ProtocolVersion, error) {
	body, err := h.settings.GetOrLoad(h.base, settingsTTL, func() ([]byte, error) {
		return h.fetchSettings(ctx)
	})
	if err != nil {
		return 0, err
	}
	versions, err := parseVersions(body)
	if err != nil {
		h.settings.Delete(h.base)
		return 0, err
	}
	if len(versions) == 0 {
		h.log.Info("server reports no protocol versions, using v1", "url", h.base)
		return ilp.ProtocolVersion1, nil
	}
	for _, v := range []ilp.ProtocolVersion{ilp.ProtocolVersion2, ilp.ProtocolVersion1} {
		if slices.Contains(versions, int(v)) {
			h.log.Info("negotiated protocol version", "url", h.base, "version", int(v))
			return v, nil
		}
	}
	h.settings.Delete(h.base)
	return 0, ilp.Errorf(ilp.ErrProtocol,
		"Server does not support any of the client's protocol versions %v, it supports %v.",
		[]int{1, 2}, versions)
}

func (h *HTTP) fetchSettings(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, h.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+settingsPath, nil)
	if err != nil {
		return nil, ilp.Wrap(ilp.ErrConfig, err, "Could not build request for %q", h.base)
	}
	h.auth.Apply(req)

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ilp.Wrap(ilp.ErrTimeout, err, "Timed out reading %s%s", h.base, settingsPath)
		}
		return nil, ilp.Wrap(ilp.ErrConnect, err, "Could not connect to %q", h.base)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, ilp.Wrap(ilp.ErrConnect, err, "Could not read %s%s", h.base, settingsPath)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return []byte("{}"), nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &ilp.Error{
			Code:   ilp.ErrServer,
			Status: resp.StatusCode,
			Msg: fmt.Sprintf("Could not detect server's line protocol version: %s [HTTP %d]",
				strings.TrimSpace(string(body)), resp.StatusCode),
		}
	}
	return body, nil
}

const versionsKey = "line.proto.support.versions"

func parseVersions(body []byte) ([]int, error) {
	var settings struct {
		Versions []int                      `json:"line.proto.support.versions"`
		Config   map[string]json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(body, &settings); err != nil {
		return nil, ilp.Wrap(ilp.ErrProtocol, err, "Malformed server settings")
	}
	if settings.Versions != nil {
		return settings.Versions, nil
	}
	raw, ok := settings.Config[versionsKey]
	if !ok {
		return nil, nil
	}
	var versions []int
	if err := json.Unmarshal(raw, &versions); err != nil {
		return nil, ilp.Wrap(ilp.ErrProtocol, err, "Malformed %q in server settings", versionsKey)
	}
	return versions, nil
}

// Close releases idle keep-alive connections
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
