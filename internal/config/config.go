package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	TransportWebSocket = "websocket"
	TransportPostgres  = "postgres"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	Secret   string `mapstructure:"secret"`
	LogLevel string `mapstructure:"log_level"`
	ServerID string `mapstructure:"server_id"`

	Transport TransportConfig `mapstructure:"transport"`
	WebRTC    WebRTCConfig    `mapstructure:"webrtc"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Signaling SignalingConfig `mapstructure:"signaling"`
	Reaper    ReaperConfig    `mapstructure:"reaper"`
}

type TransportConfig struct {
	Kind               string        `mapstructure:"kind"`
	DatabaseURL        string        `mapstructure:"database_url"`
	SignalingRetention time.Duration `mapstructure:"signaling_retention"`
	CallRetention      time.Duration `mapstructure:"call_retention"`
	JanitorInterval    time.Duration `mapstructure:"janitor_interval"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ReadLimit          int64         `mapstructure:"read_limit"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	RateLimit          int           `mapstructure:"rate_limit"`
	RateWindow         time.Duration `mapstructure:"rate_window"`
}

type WebRTCConfig struct {
	ICEServers          []string      `mapstructure:"ice_servers"`
	DisconnectedTimeout time.Duration `mapstructure:"disconnected_timeout"`
	FailedTimeout       time.Duration `mapstructure:"failed_timeout"`
	KeepAliveInterval   time.Duration `mapstructure:"keepalive_interval"`
	OfferTimeout        time.Duration `mapstructure:"offer_timeout"`
}

type AnalysisConfig struct {
	URL           string        `mapstructure:"url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	AlertTimeout  time.Duration `mapstructure:"alert_timeout"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	SampleRate    int           `mapstructure:"sample_rate"`
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
}

type SignalingConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type ReaperConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("server_id", "SFU_SERVER")

	v.SetDefault("transport.kind", TransportWebSocket)
	v.SetDefault("transport.database_url", "")
	v.SetDefault("transport.signaling_retention", "5m")
	v.SetDefault("transport.call_retention", "24h")
	v.SetDefault("transport.janitor_interval", "1m")
	v.SetDefault("transport.write_timeout", "5s")
	v.SetDefault("transport.read_limit", 65536)
	v.SetDefault("transport.ping_period", "54s")
	v.SetDefault("transport.rate_limit", 5)
	v.SetDefault("transport.rate_window", "10s")

	v.SetDefault("webrtc.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("webrtc.disconnected_timeout", "5s")
	v.SetDefault("webrtc.failed_timeout", "25s")
	v.SetDefault("webrtc.keepalive_interval", "2s")
	v.SetDefault("webrtc.offer_timeout", "10s")

	v.SetDefault("analysis.url", "http://127.0.0.1:8000/call/analyze/")
	v.SetDefault("analysis.timeout", "10s")
	v.SetDefault("analysis.alert_timeout", "5s")
	v.SetDefault("analysis.flush_interval", "3s")
	v.SetDefault("analysis.sample_rate", 48000)
	v.SetDefault("analysis.workers", 4)
	v.SetDefault("analysis.queue_size", 64)

	v.SetDefault("signaling.workers", 4)
	v.SetDefault("signaling.queue_size", 256)

	v.SetDefault("reaper.interval", "15s")
	v.SetDefault("reaper.negotiation_timeout", "60s")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// CALLGUARD_* environment variables override both, e.g. CALLGUARD_TRANSPORT_KIND.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("CALLGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("transport", cfg.Transport.Kind).
		Msg("config ready")
	return &cfg, nil
}

var ErrInvalidConfig = errors.New("invalid config")

func (c *Config) Validate() error {
	var errs []error
	if c.ServerID == "" {
		errs = append(errs, errors.New("server_id is empty"))
	}
	switch c.Transport.Kind {
	case TransportWebSocket:
	case TransportPostgres:
		if c.Transport.DatabaseURL == "" {
			errs = append(errs, errors.New("transport.database_url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport.kind %q", c.Transport.Kind))
	}
	if c.Analysis.FlushInterval <= 0 {
		errs = append(errs, errors.New("analysis.flush_interval must be positive"))
	}
	if c.Analysis.SampleRate <= 0 {
		errs = append(errs, errors.New("analysis.sample_rate must be positive"))
	}
	if c.Analysis.Workers <= 0 || c.Signaling.Workers <= 0 {
		errs = append(errs, errors.New("worker counts must be positive"))
	}
	if c.Analysis.QueueSize <= 0 || c.Signaling.QueueSize <= 0 {
		errs = append(errs, errors.New("queue sizes must be positive"))
	}
	if c.WebRTC.OfferTimeout <= 0 || c.Transport.WriteTimeout <= 0 || c.Analysis.Timeout <= 0 {
		errs = append(errs, errors.New("offer, write and analysis timeouts must be positive"))
	}
	if c.Reaper.Interval <= 0 || c.Reaper.NegotiationTimeout <= 0 {
		errs = append(errs, errors.New("reaper intervals must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
