package config

import (
	"os"

	"gopkg.in/ini.v1"

	"github.com/mevdschee/tqingest/ilp"
)

// FileEnvVar overrides the configuration file when set
const FileEnvVar = "TQINGEST_CONF"

// Load reads the [sender] section of an INI file. The section holds either
// a complete configuration string under "conf", or "protocol" plus the
// configuration string keys one per line:
//
//	[sender]
//	protocol = http
//	addr = localhost:9000
//	auto_flush_rows = 1000
//
// A configuration string in TQINGEST_CONF takes precedence over the file.
func Load(path string) (*Config, error) {
	if v := os.Getenv(FileEnvVar); v != "" {
		return Parse(v)
	}

	// ';' is part of configuration strings, not a comment marker.
	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, ilp.Wrap(ilp.ErrConfig, err, "Failed to read config file %q", path)
	}
	sec := cfg.Section("sender")

	if sec.HasKey("conf") {
		conf := sec.Key("conf").String()
		if len(sec.Keys()) > 1 {
			return nil, ilp.Errorf(ilp.ErrConfig, "Config file %q mixes \"conf\" with individual keys.", path)
		}
		return Parse(conf)
	}

	p, err := ParseProtocol(sec.Key("protocol").MustString(string(ProtocolHTTP)))
	if err != nil {
		return nil, err
	}
	var pairs []pair
	for _, key := range sec.Keys() {
		if key.Name() == "protocol" {
			continue
		}
		pairs = append(pairs, pair{key: key.Name(), value: key.Value()})
	}
	return build(p, pairs)
}
