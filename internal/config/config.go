// Package config provides the configuration schema, loader, and file watcher
// for the radiobridge bot.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the radiobridge server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to a [slog.Level]. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for radiobridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	Metadata MetadataConfig `yaml:"metadata"`
	Poller   PollerConfig   `yaml:"poller"`
	Relay    RelayConfig    `yaml:"relay"`
	Feed     FeedConfig     `yaml:"feed"`
	Links    LinksConfig    `yaml:"links"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP server serving health,
	// metrics and the feed (e.g., ":8080"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// DiscordConfig holds the bot credentials.
type DiscordConfig struct {
	// Token is the bot token.
	Token string `yaml:"token"`

	// GuildID registers commands in a single guild instead of globally.
	// Useful during development since guild commands update instantly.
	GuildID string `yaml:"guild_id"`
}

// MetadataConfig configures the two now-playing APIs.
type MetadataConfig struct {
	RadioFrance APIConfig `yaml:"radiofrance"`
	LastFM      APIConfig `yaml:"lastfm"`

	// Timeout bounds each API call.
	Timeout time.Duration `yaml:"timeout"`
}

// APIConfig is the configuration block shared by the metadata APIs.
type APIConfig struct {
	// APIKey authenticates against the API.
	APIKey string `yaml:"api_key"`

	// Endpoint overrides the built-in API URL. Leave empty for the default.
	Endpoint string `yaml:"endpoint"`
}

// PollerConfig tunes the live state polling loop.
type PollerConfig struct {
	// Pacing is the pause after refreshing each followed channel.
	Pacing time.Duration `yaml:"pacing"`

	// IdleInterval is the pause between two passes.
	IdleInterval time.Duration `yaml:"idle_interval"`

	// DeliveryTimeout bounds a single announcement delivery.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

// RelayConfig tunes audio relay sessions.
type RelayConfig struct {
	// IdleCheckInterval is how often the watchdog counts voice channel members.
	IdleCheckInterval time.Duration `yaml:"idle_check_interval"`

	// DecoderCommand is the decoder command line; "{url}" is replaced by the
	// stream URL. It must write 48 kHz stereo s16le PCM to stdout.
	DecoderCommand string `yaml:"decoder_command"`
}

// FeedConfig configures the WebSocket feed.
type FeedConfig struct {
	// OriginPatterns lists host patterns allowed to open cross-origin feeds.
	OriginPatterns []string `yaml:"origin_patterns"`
}

// LinksConfig overrides the URLs answered by /github and /invite.
type LinksConfig struct {
	GitHub string `yaml:"github"`
	Invite string `yaml:"invite"`
}
