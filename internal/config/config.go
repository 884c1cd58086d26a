// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

// Package config defines the bot configuration and loads it from a YAML
// file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/garcia/cassium/internal/access"
)

// Error codes returned while loading configuration.
const (
	CodeInvalid  = "CONFIG_INVALID"
	CodeNotFound = "CONFIG_NOT_FOUND"
	CodeLoad     = "CONFIG_LOAD_FAILED"
)

// ServerConfig is the chat server to connect to.
type ServerConfig struct {
	Host     string `koanf:"host" json:"host,omitempty" jsonschema:"description=Server hostname"`
	Port     int    `koanf:"port" json:"port,omitempty" jsonschema:"minimum=1,maximum=65535"`
	TLS      bool   `koanf:"tls" json:"tls,omitempty"`
	Password string `koanf:"password" json:"password,omitempty" jsonschema:"description=Server password sent with PASS"`
}

// PluginsConfig controls plugin discovery.
type PluginsConfig struct {
	Dir      string   `koanf:"dir" json:"dir,omitempty" jsonschema:"description=Root directory of plugin units"`
	Autoload []string `koanf:"autoload" json:"autoload,omitempty" jsonschema:"description=Dotted plugin paths loaded after discovery"`
	Watch    bool     `koanf:"watch" json:"watch,omitempty" jsonschema:"description=Reload units when their files change"`
}

// StoreConfig selects where plugin state is persisted.
type StoreConfig struct {
	DSN string `koanf:"dsn" json:"dsn,omitempty" jsonschema:"description=A postgres:// URL or a SQLite path or memory:"`
}

// LogConfig controls log output.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Config is the complete bot configuration. It is built once at startup
// and passed to the components that need it.
type Config struct {
	Server           ServerConfig  `koanf:"server" json:"server,omitempty"`
	Nick             string        `koanf:"nick" json:"nick,omitempty"`
	Username         string        `koanf:"username" json:"username,omitempty"`
	Realname         string        `koanf:"realname" json:"realname,omitempty"`
	NickServPassword string        `koanf:"nickserv_password" json:"nickserv_password,omitempty"`
	Channels         []string      `koanf:"channels" json:"channels,omitempty" jsonschema:"description=Channels joined on connect; a key may follow after a space"`
	Admins           []string      `koanf:"admins" json:"admins,omitempty" jsonschema:"description=Glob patterns of nicks allowed to run operator commands"`
	CommandPrefix    string        `koanf:"command_prefix" json:"command_prefix,omitempty" jsonschema:"minLength=1"`
	Encoding         string        `koanf:"encoding" json:"encoding,omitempty" jsonschema:"description=WHATWG label of the outbound message encoding"`
	Plugins          PluginsConfig `koanf:"plugins" json:"plugins,omitempty"`
	Store            StoreConfig   `koanf:"store" json:"store,omitempty"`
	Log              LogConfig     `koanf:"log" json:"log,omitempty"`
	MetricsAddr      string        `koanf:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"description=Metrics and health listen address; empty disables"`
}

// Default returns the configuration used for keys that are not set.
func Default() Config {
	return Config{
		Server:        ServerConfig{Host: "localhost", Port: 6667},
		Nick:          "cassium",
		Username:      "cassium",
		Realname:      "Cassium",
		CommandPrefix: "`",
		Encoding:      "utf-8",
		Plugins:       PluginsConfig{Dir: "plugins"},
		Log:           LogConfig{Format: "json", Level: "info"},
		MetricsAddr:   "127.0.0.1:9100",
	}
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"server":         "server.host",
	"port":           "server.port",
	"tls":            "server.tls",
	"nick":           "nick",
	"channel":        "channels",
	"admin":          "admins",
	"plugins-dir":    "plugins.dir",
	"autoload":       "plugins.autoload",
	"watch":          "plugins.watch",
	"store":          "store.dsn",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"metrics-addr":   "metrics_addr",
	"encoding":       "encoding",
	"command-prefix": "command_prefix",
}

// BindFlags registers the flags that override configuration keys.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("server", d.Server.Host, "chat server host")
	fs.Int("port", d.Server.Port, "chat server port")
	fs.Bool("tls", d.Server.TLS, "connect with TLS")
	fs.String("nick", d.Nick, "nickname")
	fs.StringSlice("channel", nil, "channel to join on connect (repeatable)")
	fs.StringSlice("admin", nil, "admin nick pattern (repeatable)")
	fs.String("plugins-dir", d.Plugins.Dir, "plugin root directory")
	fs.StringSlice("autoload", nil, "dotted plugin path to load after discovery (repeatable)")
	fs.Bool("watch", d.Plugins.Watch, "reload plugin units when their files change")
	fs.String("store", d.Store.DSN, "plugin state store (postgres URL, SQLite path or memory:)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("encoding", d.Encoding, "outbound message encoding")
	fs.String("command-prefix", d.CommandPrefix, "operator command prefix")
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is not empty) and the flags the user changed, in that order of
// precedence. The file is checked against the JSON schema first.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, oops.In("config").Code(CodeNotFound).With("path", path).
					Errorf("config file %s does not exist", path)
			}
			return nil, oops.In("config").Code(CodeLoad).With("path", path).Wrap(err)
		}
		if err := ValidateSchema(data); err != nil {
			return nil, oops.In("config").Code(CodeInvalid).With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.In("config").Code(CodeLoad).With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.In("config").Code(CodeLoad).Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.In("config").Code(CodeLoad).Wrap(err)
	}
	return &cfg, nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Host) == "" {
		errs = append(errs, errors.New("server.host is required"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if strings.TrimSpace(c.Nick) == "" || strings.ContainsAny(c.Nick, " ,*?!@") {
		errs = append(errs, fmt.Errorf("nick %q is not a valid nickname", c.Nick))
	}
	if c.CommandPrefix == "" {
		errs = append(errs, errors.New("command_prefix must not be empty"))
	}
	if _, err := htmlindex.Get(c.Encoding); err != nil {
		errs = append(errs, fmt.Errorf("encoding %q is not a known encoding", c.Encoding))
	}
	if _, err := access.NewAdminList(c.Admins); err != nil {
		errs = append(errs, fmt.Errorf("admins: %w", err))
	}
	if c.Plugins.Dir == "" {
		errs = append(errs, errors.New("plugins.dir is required"))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return oops.In("config").Code(CodeInvalid).Wrap(errors.Join(errs...))
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q is not a valid level", c.Log.Level)
	}
	return level, nil
}
