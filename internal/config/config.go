// Package config loads the proxy's startup configuration from the
// environment.
package config

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"

	"github.com/userhive/ldapoidc/internal/plog"
)

// EnvPrefix is the optional prefix accepted for every variable. The
// unprefixed name takes precedence.
const EnvPrefix = "LDAP_PROXY_"

// Config is the proxy configuration. It is immutable once loaded.
type Config struct {
	TokenURL             string        `env:"TOKEN_URL"`
	ClientID             string        `env:"CLIENT_ID"`
	ClientSecret         Secret        `env:"CLIENT_SECRET"`
	TokenScope           string        `env:"TOKEN_SCOPE"`
	TokenTimeout         time.Duration `env:"TOKEN_TIMEOUT" default:"10s"`
	ListenAddr           string        `env:"LISTEN_ADDR" default:":389"`
	UsernameAttribute    string        `env:"USERNAME_ATTRIBUTE" default:"cn"`
	LegacyUnbindResponse bool          `env:"LEGACY_UNBIND_RESPONSE" default:"false"`
	IdleTimeout          time.Duration `env:"IDLE_TIMEOUT" default:"0s"`
	MaxMessageSize       int           `env:"MAX_MESSAGE_SIZE" default:"1048576"`
	TLSCertFile          string        `env:"TLS_CERT_FILE"`
	TLSKeyFile           string        `env:"TLS_KEY_FILE"`
	LogLevel             plog.LogLevel `env:"LOG_LEVEL" default:"info"`
	LogFormat            plog.Format   `env:"LOG_FORMAT" default:"json"`
}

// Secret is a string that is redacted when formatted or logged.
type Secret string

// String satisfies the fmt.Stringer interface.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "REDACTED"
}

// GoString satisfies the fmt.GoStringer interface.
func (s Secret) GoString() string {
	return strconv.Quote(s.String())
}

// MarshalLog satisfies the logr.Marshaler interface.
func (s Secret) MarshalLog() interface{} {
	return s.String()
}

// Value returns the secret itself.
func (s Secret) Value() string {
	return string(s)
}

// Error lists every problem found while loading the configuration.
type Error []string

// Error satisfies the error interface.
func (err Error) Error() string {
	return "invalid configuration: " + strings.Join(err, "; ")
}

// LookupFunc looks up an environment variable, like os.LookupEnv.
type LookupFunc func(string) (string, bool)

// Load builds the configuration from defaults overlaid with the variables
// found by lookup. All problems are reported together in an Error.
func Load(lookup LookupFunc) (*Config, error) {
	cfg := new(Config)
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("unable to set defaults: %w", err)
	}
	var errs Error
	v := reflect.ValueOf(cfg).Elem()
	typ := v.Type()
	for i := 0; i < typ.NumField(); i++ {
		name := typ.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		s, ok := lookup(name)
		if !ok {
			s, ok = lookup(EnvPrefix + name)
		}
		if !ok {
			continue
		}
		if err := setField(v.Field(i), strings.TrimSpace(s)); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	errs = append(errs, cfg.validate()...)
	if len(errs) != 0 {
		return nil, errs
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func setField(f reflect.Value, s string) error {
	switch {
	case f.Type() == durationType:
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q", s)
		}
		f.SetInt(int64(d))
	case f.Kind() == reflect.String:
		f.SetString(s)
	case f.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", s)
		}
		f.SetBool(b)
	case f.Kind() == reflect.Int:
		i, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid integer %q", s)
		}
		f.SetInt(int64(i))
	default:
		return fmt.Errorf("unsupported field type %s", f.Type())
	}
	return nil
}

func (cfg *Config) validate() []string {
	var errs []string
	switch u, err := url.Parse(cfg.TokenURL); {
	case cfg.TokenURL == "":
		errs = append(errs, "TOKEN_URL is required")
	case err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
		errs = append(errs, "TOKEN_URL must be an absolute http or https url")
	}
	if cfg.ClientID == "" {
		errs = append(errs, "CLIENT_ID is required")
	}
	if cfg.ClientSecret == "" {
		errs = append(errs, "CLIENT_SECRET is required")
	}
	if cfg.TokenTimeout <= 0 {
		errs = append(errs, "TOKEN_TIMEOUT must be positive")
	}
	if cfg.ListenAddr == "" {
		errs = append(errs, "LISTEN_ADDR must not be empty")
	}
	if cfg.UsernameAttribute == "" || strings.ContainsAny(cfg.UsernameAttribute, "=, ") {
		errs = append(errs, "USERNAME_ATTRIBUTE must be a plain attribute name")
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, "IDLE_TIMEOUT must not be negative")
	}
	if cfg.MaxMessageSize <= 0 {
		errs = append(errs, "MAX_MESSAGE_SIZE must be positive")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		errs = append(errs, "TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if err := cfg.LogLevel.Validate(); err != nil {
		errs = append(errs, "LOG_LEVEL: "+err.Error())
	}
	if err := cfg.LogFormat.Validate(); err != nil {
		errs = append(errs, "LOG_FORMAT: "+err.Error())
	}
	return errs
}

// TLS returns true when LDAPS is configured.
func (cfg *Config) TLS() bool {
	return cfg.TLSCertFile != ""
}

// MarshalLog satisfies the logr.Marshaler interface. The client secret is
// omitted.
func (cfg *Config) MarshalLog() interface{} {
	return map[string]interface{}{
		"tokenURL":             cfg.TokenURL,
		"clientID":             cfg.ClientID,
		"tokenScope":           cfg.TokenScope,
		"tokenTimeout":         cfg.TokenTimeout.String(),
		"listenAddr":           cfg.ListenAddr,
		"usernameAttribute":    cfg.UsernameAttribute,
		"legacyUnbindResponse": cfg.LegacyUnbindResponse,
		"idleTimeout":          cfg.IdleTimeout.String(),
		"maxMessageSize":       cfg.MaxMessageSize,
		"tls":                  cfg.TLS(),
	}
}
