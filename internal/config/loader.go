package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/radiobridge/internal/relay"
)

// ErrMissingCredentials is returned when a required token or API key is not
// configured. The bot cannot start without them.
var ErrMissingCredentials = errors.New("config: missing credentials")

// Defaults applied by [ApplyDefaults].
const (
	DefaultLogLevel          = LogInfo
	DefaultMetadataTimeout   = 10 * time.Second
	DefaultPacing            = time.Second
	DefaultIdleInterval      = 200 * time.Millisecond
	DefaultDeliveryTimeout   = 10 * time.Second
	DefaultIdleCheckInterval = 10 * time.Second
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset optional field.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}
	if cfg.Metadata.Timeout == 0 {
		cfg.Metadata.Timeout = DefaultMetadataTimeout
	}
	if cfg.Poller.Pacing == 0 {
		cfg.Poller.Pacing = DefaultPacing
	}
	if cfg.Poller.IdleInterval == 0 {
		cfg.Poller.IdleInterval = DefaultIdleInterval
	}
	if cfg.Poller.DeliveryTimeout == 0 {
		cfg.Poller.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.Relay.IdleCheckInterval == 0 {
		cfg.Relay.IdleCheckInterval = DefaultIdleCheckInterval
	}
	if strings.TrimSpace(cfg.Relay.DecoderCommand) == "" {
		cfg.Relay.DecoderCommand = relay.DefaultDecoderCommand
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. Missing
// credentials match [ErrMissingCredentials].
func Validate(cfg *Config) error {
	var errs []error

	// Credentials
	if cfg.Discord.Token == "" {
		errs = append(errs, fmt.Errorf("%w: discord.token is required", ErrMissingCredentials))
	}
	if cfg.Metadata.RadioFrance.APIKey == "" {
		errs = append(errs, fmt.Errorf("%w: metadata.radiofrance.api_key is required", ErrMissingCredentials))
	}
	if cfg.Metadata.LastFM.APIKey == "" {
		errs = append(errs, fmt.Errorf("%w: metadata.lastfm.api_key is required", ErrMissingCredentials))
	}

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Durations
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"metadata.timeout", cfg.Metadata.Timeout},
		{"poller.pacing", cfg.Poller.Pacing},
		{"poller.idle_interval", cfg.Poller.IdleInterval},
		{"poller.delivery_timeout", cfg.Poller.DeliveryTimeout},
		{"relay.idle_check_interval", cfg.Relay.IdleCheckInterval},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("%s %s must not be negative", d.name, d.v))
		}
	}

	// Relay
	if cfg.Relay.DecoderCommand != "" {
		if _, err := relay.NewCommandDecoder(cfg.Relay.DecoderCommand); err != nil {
			errs = append(errs, fmt.Errorf("relay.decoder_command: %w", err))
		}
	}

	return errors.Join(errs...)
}
