// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// ChannelRef identifies a channel inside a guild.
type ChannelRef struct {
	GuildID   string
	ChannelID string
}

// Config holds every runtime setting of the bot.
type Config struct {
	NATSURL  string
	NATSName string

	RedisAddr   string // empty = in-memory report-ban list, no rate limiting
	DatabaseURL string // empty = no review archive
	OpsAddr     string

	LogLevel  string
	LogFormat string

	ModChannels  []ChannelRef
	UserChannels []ChannelRef

	PerspectiveAPIKey string
	PerspectiveURL    string
	VisionURL         string
	VisionAPIKey      string
	TranslateAPIKey   string
	TranslateURL      string
	DisplayLanguage   string

	AnthropicAPIKey string
	AnthropicModel  string

	AutoReportThreshold float64
	EnrichmentTimeout   time.Duration // 0 = wait without limit
	ReportRateLimit     int
	ReportRateWindow    time.Duration

	OTLPEndpoint string // empty = tracing disabled
}

// Default returns the settings used when no environment overrides exist.
func Default() Config {
	return Config{
		NATSURL:             "nats://localhost:4222",
		NATSName:            "modbot",
		OpsAddr:             ":9090",
		LogLevel:            "info",
		LogFormat:           "json",
		DisplayLanguage:     "en",
		AnthropicModel:      "claude-sonnet-4-20250514",
		AutoReportThreshold: 0.5,
		EnrichmentTimeout:   30 * time.Second,
		ReportRateLimit:     5,
		ReportRateWindow:    10 * time.Minute,
	}
}

// Load reads .env if present, then the environment, and validates the
// result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	cfg, err := FromEnv(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from lookup, falling back to Default for unset
// keys. Malformed values are reported together.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	var errs []error

	get := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	get("NATS_URL", &cfg.NATSURL)
	get("NATS_NAME", &cfg.NATSName)
	get("REDIS_ADDR", &cfg.RedisAddr)
	get("DATABASE_URL", &cfg.DatabaseURL)
	get("OPS_ADDR", &cfg.OpsAddr)
	get("LOG_LEVEL", &cfg.LogLevel)
	get("LOG_FORMAT", &cfg.LogFormat)
	get("PERSPECTIVE_API_KEY", &cfg.PerspectiveAPIKey)
	get("PERSPECTIVE_URL", &cfg.PerspectiveURL)
	get("VISION_URL", &cfg.VisionURL)
	get("VISION_API_KEY", &cfg.VisionAPIKey)
	get("TRANSLATE_API_KEY", &cfg.TranslateAPIKey)
	get("TRANSLATE_URL", &cfg.TranslateURL)
	get("DISPLAY_LANGUAGE", &cfg.DisplayLanguage)
	get("ANTHROPIC_API_KEY", &cfg.AnthropicAPIKey)
	get("ANTHROPIC_MODEL", &cfg.AnthropicModel)
	get("OTLP_ENDPOINT", &cfg.OTLPEndpoint)

	if v, ok := lookup("MOD_CHANNELS"); ok {
		refs, err := ParseChannels(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MOD_CHANNELS: %w", err))
		}
		cfg.ModChannels = refs
	}
	if v, ok := lookup("USER_CHANNELS"); ok {
		refs, err := ParseChannels(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("USER_CHANNELS: %w", err))
		}
		cfg.UserChannels = refs
	}
	if v, ok := lookup("AUTO_REPORT_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid AUTO_REPORT_THRESHOLD %q", v))
		} else {
			cfg.AutoReportThreshold = f
		}
	}
	if v, ok := lookup("ENRICHMENT_TIMEOUT"); ok {
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid ENRICHMENT_TIMEOUT %q", v))
		} else {
			cfg.EnrichmentTimeout = d
		}
	}
	if v, ok := lookup("REPORT_RATE_LIMIT"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid REPORT_RATE_LIMIT %q", v))
		} else {
			cfg.ReportRateLimit = n
		}
	}
	if v, ok := lookup("REPORT_RATE_WINDOW"); ok {
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid REPORT_RATE_WINDOW %q", v))
		} else {
			cfg.ReportRateWindow = d
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

// parseDuration accepts Go durations and a bare "0".
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "0" {
		return 0, nil
	}
	return time.ParseDuration(v)
}

// ParseChannels parses a comma-separated list of guild_id:channel_id pairs.
// Empty entries are skipped.
func ParseChannels(s string) ([]ChannelRef, error) {
	var out []ChannelRef
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		guild, channel, ok := strings.Cut(part, ":")
		guild, channel = strings.TrimSpace(guild), strings.TrimSpace(channel)
		if !ok || guild == "" || channel == "" {
			return nil, fmt.Errorf("invalid channel %q (want guild_id:channel_id)", part)
		}
		out = append(out, ChannelRef{GuildID: guild, ChannelID: channel})
	}
	return out, nil
}

// ChannelIDs returns the channel ids of refs.
func ChannelIDs(refs []ChannelRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.ChannelID
	}
	return out
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	var errs []error

	if c.NATSURL == "" {
		errs = append(errs, errors.New("NATS_URL is required"))
	}
	if len(c.ModChannels) == 0 {
		errs = append(errs, errors.New("MOD_CHANNELS must name at least one channel"))
	}
	if c.OpsAddr == "" {
		errs = append(errs, errors.New("OPS_ADDR is required"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("invalid LOG_FORMAT %q (must be json or text)", c.LogFormat))
	}
	if c.DisplayLanguage == "" {
		errs = append(errs, errors.New("DISPLAY_LANGUAGE is required"))
	}
	if c.AutoReportThreshold < 0 || c.AutoReportThreshold > 1 {
		errs = append(errs, fmt.Errorf("invalid AUTO_REPORT_THRESHOLD %v (must be 0..1)", c.AutoReportThreshold))
	}
	if c.EnrichmentTimeout < 0 {
		errs = append(errs, fmt.Errorf("invalid ENRICHMENT_TIMEOUT %s (must not be negative)", c.EnrichmentTimeout))
	}
	if c.ReportRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("invalid REPORT_RATE_LIMIT %d (must be positive)", c.ReportRateLimit))
	}
	if c.ReportRateWindow <= 0 {
		errs = append(errs, fmt.Errorf("invalid REPORT_RATE_WINDOW %s (must be positive)", c.ReportRateWindow))
	}
	if c.AnthropicAPIKey != "" && c.AnthropicModel == "" {
		errs = append(errs, errors.New("ANTHROPIC_MODEL is required when ANTHROPIC_API_KEY is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
