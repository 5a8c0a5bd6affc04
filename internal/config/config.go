package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dkeye/voicenet/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Voice   VoiceConfig    `mapstructure:"voice"`
	Session SessionConfig  `mapstructure:"session"`
	Store   StoreConfig    `mapstructure:"store"`
	Join    JoinLimit      `mapstructure:"join_limit"`
	Nets    []NetConfig    `mapstructure:"nets"`
	Members []MemberConfig `mapstructure:"members"`
}

// VoiceConfig holds the realtime backend settings. All three of endpoint, key
// and secret must be present or the simulated backend is used.
type VoiceConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type ReconnectConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	MaxDuration  time.Duration `mapstructure:"max_duration"`
	Jitter       float64       `mapstructure:"jitter"`
}

type SessionConfig struct {
	HeartbeatInterval     time.Duration   `mapstructure:"heartbeat_interval"`
	PreferredBackend      string          `mapstructure:"preferred_backend"`
	RetryCredentialErrors bool            `mapstructure:"retry_credential_errors"`
	SpeakingHold          time.Duration   `mapstructure:"speaking_hold"`
	TeardownTimeout       time.Duration   `mapstructure:"teardown_timeout"`
	MinFocusedTier        string          `mapstructure:"min_focused_tier"`
	Reconnect             ReconnectConfig `mapstructure:"reconnect"`
}

type StoreConfig struct {
	Path string        `mapstructure:"path"` // empty keeps the roster store in memory
	TTL  time.Duration `mapstructure:"ttl"`
}

// JoinLimit caps join requests per client within a sliding window.
type JoinLimit struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type NetConfig struct {
	ID         string `mapstructure:"id"`
	Code       string `mapstructure:"code"`
	Label      string `mapstructure:"label"`
	Discipline string `mapstructure:"discipline"`
	Temporary  bool   `mapstructure:"temporary"`
	Group      string `mapstructure:"group"`
	Default    bool   `mapstructure:"default"`
}

func (n NetConfig) VoiceNet() (domain.VoiceNet, error) {
	d, err := domain.ParseDiscipline(n.Discipline)
	if err != nil {
		return domain.VoiceNet{}, fmt.Errorf("net %q: %w", n.ID, err)
	}
	vn := domain.VoiceNet{
		ID:            domain.NetID(n.ID),
		Code:          n.Code,
		Label:         n.Label,
		Discipline:    d,
		Temporary:     n.Temporary,
		LinkedGroupID: domain.GroupID(n.Group),
		IsDefault:     n.Default,
	}
	return vn, vn.Validate()
}

type MemberConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	Tier string `mapstructure:"tier"`
}

func (m MemberConfig) User() (domain.User, error) {
	tier, err := domain.ParseTier(m.Tier)
	if err != nil {
		return domain.User{}, fmt.Errorf("member %q: %w", m.ID, err)
	}
	return domain.NewUser(domain.UserID(m.ID), m.Name, tier)
}

func (c *Config) VoiceNets() ([]domain.VoiceNet, error) {
	out := make([]domain.VoiceNet, 0, len(c.Nets))
	for _, n := range c.Nets {
		vn, err := n.VoiceNet()
		if err != nil {
			return nil, err
		}
		out = append(out, vn)
	}
	return out, nil
}

func (c *Config) Users() ([]domain.User, error) {
	out := make([]domain.User, 0, len(c.Members))
	for _, m := range c.Members {
		u, err := m.User()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (c *Config) Backend() (domain.Backend, error) {
	switch b := domain.Backend(c.Session.PreferredBackend); b {
	case domain.BackendRealtime, domain.BackendSimulated:
		return b, nil
	default:
		return "", fmt.Errorf("unknown preferred backend %q", c.Session.PreferredBackend)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")

	v.SetDefault("voice.token_ttl", "10m")

	v.SetDefault("session.heartbeat_interval", "10s")
	v.SetDefault("session.preferred_backend", string(domain.BackendRealtime))
	v.SetDefault("session.retry_credential_errors", false)
	v.SetDefault("session.speaking_hold", "2s")
	v.SetDefault("session.teardown_timeout", "5s")
	v.SetDefault("session.min_focused_tier", "member")
	v.SetDefault("session.reconnect.max_attempts", 5)
	v.SetDefault("session.reconnect.initial_delay", "1s")
	v.SetDefault("session.reconnect.max_delay", "8s")
	v.SetDefault("session.reconnect.max_duration", "30s")
	v.SetDefault("session.reconnect.jitter", 0.2)

	v.SetDefault("store.ttl", "30s")

	v.SetDefault("join_limit.limit", 5)
	v.SetDefault("join_limit.interval", "10s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev when unset).
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads one yaml file over the defaults. A missing file is not an
// error. The backend credentials can always be overridden from the environment.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	setDefaults(v)

	for key, env := range map[string]string{
		"voice.endpoint":   "VOICE_ENDPOINT",
		"voice.api_key":    "VOICE_API_KEY",
		"voice.api_secret": "VOICE_API_SECRET",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Err(err).Msg("config file not loaded, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("backend", cfg.Session.PreferredBackend).
		Bool("voice_configured", cfg.Voice.Endpoint != "" && cfg.Voice.APIKey != "" && cfg.Voice.APISecret != "").
		Int("nets", len(cfg.Nets)).
		Msg("config ready")
	return &cfg, nil
}
