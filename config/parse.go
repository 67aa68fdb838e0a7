package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/mevdschee/tqingest/ilp"
)

// keyScope says which protocols accept a key
type keyScope int

const (
	scopeAny keyScope = iota
	scopeTCP
	scopeHTTP
	scopeTLS
)

var keyScopes = map[string]keyScope{
	"addr":                   scopeAny,
	"bind_interface":         scopeTCP,
	"username":               scopeAny,
	"password":               scopeHTTP,
	"token":                  scopeAny,
	"token_x":                scopeTCP,
	"token_y":                scopeTCP,
	"auth_timeout":           scopeTCP,
	"tls_verify":             scopeTLS,
	"tls_ca":                 scopeTLS,
	"tls_roots":              scopeTLS,
	"auto_flush":             scopeAny,
	"auto_flush_rows":        scopeAny,
	"auto_flush_bytes":       scopeAny,
	"auto_flush_interval":    scopeAny,
	"init_buf_size":          scopeAny,
	"max_buf_size":           scopeAny,
	"max_name_len":           scopeAny,
	"request_timeout":        scopeHTTP,
	"request_min_throughput": scopeHTTP,
	"retry_timeout":          scopeHTTP,
	"protocol_version":       scopeAny,
}

// Parse reads a configuration string of the form
//
//	http::addr=localhost:9000;username=admin;password=quest;;db;
//
// A ';' inside a value is written as ";;". The trailing ';' is required.
func Parse(conf string) (*Config, error) {
	proto, rest, ok := strings.Cut(conf, "::")
	if !ok {
		return nil, ilp.Errorf(ilp.ErrConfig, "Missing \"::\" after the protocol in config string.")
	}
	p, err := ParseProtocol(proto)
	if err != nil {
		return nil, err
	}
	pairs, err := splitPairs(rest)
	if err != nil {
		return nil, err
	}
	return build(p, pairs)
}

type pair struct {
	key, value string
}

func splitPairs(s string) ([]pair, error) {
	var pairs []pair
	for i := 0; i < len(s); {
		eq := strings.IndexByte(s[i:], '=')
		if eq < 0 {
			return nil, ilp.Errorf(ilp.ErrConfig, "Missing '=' after key %q in config string.", s[i:])
		}
		key := s[i : i+eq]
		if key == "" || strings.ContainsAny(key, "; \t") {
			return nil, ilp.Errorf(ilp.ErrConfig, "Invalid key %q in config string.", key)
		}
		i += eq + 1

		var value strings.Builder
		terminated := false
		for i < len(s) {
			if s[i] == ';' {
				if i+1 < len(s) && s[i+1] == ';' {
					value.WriteByte(';')
					i += 2
					continue
				}
				i++
				terminated = true
				break
			}
			value.WriteByte(s[i])
			i++
		}
		if !terminated {
			return nil, ilp.Errorf(ilp.ErrConfig, "Missing trailing ';' after key %q in config string.", key)
		}
		pairs = append(pairs, pair{key: key, value: value.String()})
	}
	return pairs, nil
}

func build(p Protocol, pairs []pair) (*Config, error) {
	seen := make(map[string]bool, len(pairs))
	var addr string
	for _, kv := range pairs {
		scope, ok := keyScopes[kv.key]
		if !ok {
			return nil, ilp.Errorf(ilp.ErrConfig, "Unknown config key %q.", kv.key)
		}
		if seen[kv.key] {
			return nil, ilp.Errorf(ilp.ErrConfig, "Duplicate config key %q.", kv.key)
		}
		seen[kv.key] = true
		switch {
		case scope == scopeTCP && p.IsHTTP():
			return nil, ilp.Errorf(ilp.ErrConfig, "Config key %q is only supported for TCP.", kv.key)
		case scope == scopeHTTP && !p.IsHTTP():
			return nil, ilp.Errorf(ilp.ErrConfig, "Config key %q is only supported for HTTP.", kv.key)
		case scope == scopeTLS && !p.IsTLS():
			return nil, ilp.Errorf(ilp.ErrConfig, "Config key %q requires the %ss protocol.", kv.key, p)
		}
		if kv.key == "addr" {
			addr = kv.value
		}
	}

	c, err := New(p, addr)
	if err != nil {
		return nil, err
	}
	for _, kv := range pairs {
		if err := c.set(kv.key, kv.value); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) set(key, value string) error {
	var err error
	switch key {
	case "addr":
		// applied by New
	case "bind_interface":
		c.BindInterface = value
	case "username":
		c.Username = value
	case "password":
		c.Password = value
	case "token":
		c.Token = value
	case "token_x":
		c.TokenX = value
	case "token_y":
		c.TokenY = value
	case "auth_timeout":
		c.AuthTimeout, err = parseMillis(key, value)
	case "tls_verify":
		switch value {
		case "on":
			c.TLSVerify = true
		case "unsafe_off":
			c.TLSVerify = false
		default:
			err = invalid(key, value, "expected on or unsafe_off")
		}
	case "tls_ca":
		switch r := CARoots(value); r {
		case CAWebPKI, CAOS, CAWebPKIAndOS, CAPEMFile:
			c.TLSCA = r
		default:
			err = invalid(key, value, "expected webpki_roots, os_roots, webpki_and_os_roots or pem_file")
		}
	case "tls_roots":
		c.TLSRoots = value
	case "auto_flush":
		switch value {
		case "on":
			c.AutoFlush.Enabled = true
		case "off":
			c.AutoFlush.Enabled = false
		default:
			err = invalid(key, value, "expected on or off")
		}
	case "auto_flush_rows":
		c.AutoFlush.Rows, err = parseIntOrOff(key, value)
	case "auto_flush_bytes":
		c.AutoFlush.Bytes, err = parseIntOrOff(key, value)
	case "auto_flush_interval":
		if value == "off" {
			c.AutoFlush.Interval = 0
		} else {
			c.AutoFlush.Interval, err = parseMillis(key, value)
		}
	case "init_buf_size":
		c.InitBufSize, err = parseInt(key, value)
	case "max_buf_size":
		c.MaxBufSize, err = parseInt(key, value)
	case "max_name_len":
		c.MaxNameLen, err = parseInt(key, value)
	case "request_timeout":
		c.RequestTimeout, err = parseMillis(key, value)
	case "request_min_throughput":
		c.RequestMinThroughput, err = parseInt(key, value)
	case "retry_timeout":
		c.RetryTimeout, err = parseMillis(key, value)
	case "protocol_version":
		switch value {
		case "auto":
			c.ProtocolVersion = 0
		case "1":
			c.ProtocolVersion = ilp.ProtocolVersion1
		case "2":
			c.ProtocolVersion = ilp.ProtocolVersion2
		default:
			err = invalid(key, value, "expected 1, 2 or auto")
		}
	default:
		err = ilp.Errorf(ilp.ErrConfig, "Unknown config key %q.", key)
	}
	return err
}

func invalid(key, value, hint string) error {
	return ilp.Errorf(ilp.ErrConfig, "Invalid value %q for %q: %s.", value, key, hint)
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, invalid(key, value, "expected a non-negative integer")
	}
	return n, nil
}

func parseIntOrOff(key, value string) (int, error) {
	if value == "off" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, invalid(key, value, "expected a positive integer or off")
	}
	return n, nil
}

func parseMillis(key, value string) (time.Duration, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0, invalid(key, value, "expected milliseconds")
	}
	return time.Duration(n) * time.Millisecond, nil
}
