package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mevdschee/tqingest/ilp"
	"github.com/mevdschee/tqingest/writebatch"
)

// EnvVar holds a configuration string for FromEnv
const EnvVar = "QDB_CLIENT_CONF"

// Protocol is the scheme of a configuration string
type Protocol string

const (
	ProtocolTCP   Protocol = "tcp"
	ProtocolTCPS  Protocol = "tcps"
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
)

// ParseProtocol accepts tcp, tcps, http and https
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(s); p {
	case ProtocolTCP, ProtocolTCPS, ProtocolHTTP, ProtocolHTTPS:
		return p, nil
	}
	return "", ilp.Errorf(ilp.ErrConfig, "Unsupported protocol %q, expected one of tcp, tcps, http, https.", s)
}

// IsHTTP reports whether rows are sent over HTTP
func (p Protocol) IsHTTP() bool { return p == ProtocolHTTP || p == ProtocolHTTPS }

// IsTLS reports whether the connection is encrypted
func (p Protocol) IsTLS() bool { return p == ProtocolTCPS || p == ProtocolHTTPS }

// DefaultPort returns 9000 for HTTP and 9009 for TCP
func (p Protocol) DefaultPort() int {
	if p.IsHTTP() {
		return 9000
	}
	return 9009
}

// CARoots selects where trusted certificates come from
type CARoots string

const (
	CAWebPKI      CARoots = "webpki_roots"
	CAOS          CARoots = "os_roots"
	CAWebPKIAndOS CARoots = "webpki_and_os_roots"
	CAPEMFile     CARoots = "pem_file"
)

// Defaults
const (
	DefaultAuthTimeout          = 15 * time.Second
	DefaultInitBufSize          = ilp.DefaultInitCapacity
	DefaultMaxBufSize           = ilp.DefaultMaxCapacity
	DefaultMaxNameLen           = ilp.DefaultMaxNameLen
	DefaultRequestTimeout       = 10 * time.Second
	DefaultRequestMinThroughput = 100 * 1024
	DefaultRetryTimeout         = 10 * time.Second
)

// Config holds the resolved sender options
type Config struct {
	Protocol      Protocol
	Host          string
	Port          int
	BindInterface string

	// TCP: Username is the key id, Token, TokenX and TokenY the key parts.
	// HTTP: Username and Password, or Token alone.
	Username    string
	Password    string
	Token       string
	TokenX      string
	TokenY      string
	AuthTimeout time.Duration

	TLSVerify bool
	TLSCA     CARoots
	TLSRoots  string // PEM file path

	AutoFlush writebatch.Config

	InitBufSize int
	MaxBufSize  int
	MaxNameLen  int

	RequestTimeout       time.Duration
	RequestMinThroughput int // bytes per second, 0 disables the extra allowance
	RetryTimeout         time.Duration

	// ProtocolVersion is 0 for auto: negotiated over HTTP, v1 over TCP.
	ProtocolVersion ilp.ProtocolVersion
}

// New returns the defaults for protocol p and address addr ("host" or "host:port")
func New(p Protocol, addr string) (*Config, error) {
	if _, err := ParseProtocol(string(p)); err != nil {
		return nil, err
	}
	c := &Config{
		Protocol:             p,
		AuthTimeout:          DefaultAuthTimeout,
		TLSVerify:            true,
		InitBufSize:          DefaultInitBufSize,
		MaxBufSize:           DefaultMaxBufSize,
		MaxNameLen:           DefaultMaxNameLen,
		RequestTimeout:       DefaultRequestTimeout,
		RequestMinThroughput: DefaultRequestMinThroughput,
		RetryTimeout:         DefaultRetryTimeout,
	}
	if p.IsHTTP() {
		c.AutoFlush = writebatch.DefaultHTTPConfig()
	} else {
		c.AutoFlush = writebatch.DefaultTCPConfig()
	}
	if err := c.setAddr(addr); err != nil {
		return nil, err
	}
	return c, nil
}

// Addr returns host:port
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) setAddr(addr string) error {
	if addr == "" {
		return ilp.Errorf(ilp.ErrConfig, "Missing \"addr\" parameter in config string.")
	}
	host, port := addr, c.Protocol.DefaultPort()
	if h, p, err := net.SplitHostPort(addr); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return ilp.Errorf(ilp.ErrConfig, "Invalid port %q in \"addr\".", p)
		}
		host, port = h, n
	} else if strings.HasPrefix(addr, "[") && strings.HasSuffix(addr, "]") {
		host = addr[1 : len(addr)-1]
	}
	if host == "" {
		return ilp.Errorf(ilp.ErrConfig, "Missing host in \"addr\" %q.", addr)
	}
	c.Host, c.Port = host, port
	return nil
}

// Validate checks that the options agree with each other and the protocol
func (c *Config) Validate() error {
	if c.Protocol.IsHTTP() {
		if c.BindInterface != "" {
			return ilp.Errorf(ilp.ErrConfig, "\"bind_interface\" is only supported for TCP.")
		}
		if c.TokenX != "" || c.TokenY != "" {
			return ilp.Errorf(ilp.ErrConfig, "\"token_x\" and \"token_y\" are only supported for TCP.")
		}
		if c.Token != "" && (c.Username != "" || c.Password != "") {
			return ilp.Errorf(ilp.ErrConfig, "Use either \"token\" or \"username\" and \"password\", not both.")
		}
		if (c.Username == "") != (c.Password == "") {
			return ilp.Errorf(ilp.ErrConfig, "\"username\" and \"password\" must be set together.")
		}
	} else {
		if c.Password != "" {
			return ilp.Errorf(ilp.ErrConfig, "\"password\" is only supported for HTTP.")
		}
		set := 0
		for _, s := range []string{c.Username, c.Token, c.TokenX, c.TokenY} {
			if s != "" {
				set++
			}
		}
		if set != 0 && set != 4 {
			return ilp.Errorf(ilp.ErrConfig,
				"TCP authentication needs all of \"username\", \"token\", \"token_x\" and \"token_y\".")
		}
	}

	if c.TLSRoots != "" {
		if c.TLSCA != "" && c.TLSCA != CAPEMFile {
			return ilp.Errorf(ilp.ErrConfig, "\"tls_roots\" conflicts with \"tls_ca=%s\".", c.TLSCA)
		}
	} else if c.TLSCA == CAPEMFile {
		return ilp.Errorf(ilp.ErrConfig, "\"tls_ca=pem_file\" requires \"tls_roots\".")
	}
	if !c.Protocol.IsTLS() && (c.TLSCA != "" || c.TLSRoots != "" || !c.TLSVerify) {
		return ilp.Errorf(ilp.ErrConfig, "TLS options require the %ss protocol.", c.Protocol)
	}

	if err := c.AutoFlush.Validate(); err != nil {
		return ilp.Wrap(ilp.ErrConfig, err, "Invalid auto-flush settings")
	}
	if c.InitBufSize <= 0 || c.MaxBufSize <= 0 || c.InitBufSize > c.MaxBufSize {
		return ilp.Errorf(ilp.ErrConfig,
			"\"init_buf_size\" (%d) must be positive and not above \"max_buf_size\" (%d).", c.InitBufSize, c.MaxBufSize)
	}
	if c.MaxNameLen < 16 {
		return ilp.Errorf(ilp.ErrConfig, "\"max_name_len\" must be at least 16 bytes, got %d.", c.MaxNameLen)
	}
	if c.AuthTimeout <= 0 || c.RequestTimeout <= 0 {
		return ilp.Errorf(ilp.ErrConfig, "\"auth_timeout\" and \"request_timeout\" must be positive.")
	}
	if c.RetryTimeout < 0 || c.RequestMinThroughput < 0 {
		return ilp.Errorf(ilp.ErrConfig, "\"retry_timeout\" and \"request_min_throughput\" must not be negative.")
	}
	if c.ProtocolVersion != 0 && !c.ProtocolVersion.Valid() {
		return ilp.Errorf(ilp.ErrConfig, "Unsupported protocol version %d.", c.ProtocolVersion)
	}
	return nil
}

// FromEnv parses the configuration string held by QDB_CLIENT_CONF
func FromEnv() (*Config, error) {
	conf, ok := os.LookupEnv(EnvVar)
	if !ok || conf == "" {
		return nil, ilp.Errorf(ilp.ErrConfig, "Environment variable %s is not set.", EnvVar)
	}
	return Parse(conf)
}

// String renders the configuration string that Parse reads back.
// Secrets are included.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString(string(c.Protocol))
	sb.WriteString("::")
	for _, kv := range c.pairs() {
		sb.WriteString(kv[0])
		sb.WriteByte('=')
		sb.WriteString(strings.ReplaceAll(kv[1], ";", ";;"))
		sb.WriteByte(';')
	}
	return sb.String()
}

func (c *Config) pairs() [][2]string {
	ms := func(d time.Duration) string { return strconv.FormatInt(d.Milliseconds(), 10) }
	orOff := func(n int) string {
		if n == 0 {
			return "off"
		}
		return strconv.Itoa(n)
	}
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}

	p := [][2]string{{"addr", c.Addr()}}
	add := func(k, v string) {
		if v != "" {
			p = append(p, [2]string{k, v})
		}
	}
	add("bind_interface", c.BindInterface)
	add("username", c.Username)
	add("password", c.Password)
	add("token", c.Token)
	add("token_x", c.TokenX)
	add("token_y", c.TokenY)
	if !c.Protocol.IsHTTP() {
		add("auth_timeout", ms(c.AuthTimeout))
	}
	if c.Protocol.IsTLS() {
		if c.TLSVerify {
			add("tls_verify", "on")
		} else {
			add("tls_verify", "unsafe_off")
		}
		add("tls_ca", string(c.TLSCA))
		add("tls_roots", c.TLSRoots)
	}
	add("auto_flush", onOff(c.AutoFlush.Enabled))
	add("auto_flush_rows", orOff(c.AutoFlush.Rows))
	add("auto_flush_bytes", orOff(c.AutoFlush.Bytes))
	if c.AutoFlush.Interval == 0 {
		add("auto_flush_interval", "off")
	} else {
		add("auto_flush_interval", ms(c.AutoFlush.Interval))
	}
	add("init_buf_size", strconv.Itoa(c.InitBufSize))
	add("max_buf_size", strconv.Itoa(c.MaxBufSize))
	add("max_name_len", strconv.Itoa(c.MaxNameLen))
	if c.Protocol.IsHTTP() {
		add("request_timeout", ms(c.RequestTimeout))
		add("request_min_throughput", strconv.Itoa(c.RequestMinThroughput))
		add("retry_timeout", ms(c.RetryTimeout))
	}
	if c.ProtocolVersion == 0 {
		add("protocol_version", "auto")
	} else {
		add("protocol_version", strconv.Itoa(int(c.ProtocolVersion)))
	}
	return p
}
