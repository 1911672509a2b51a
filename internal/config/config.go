package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("invalid config")

// DefaultSecret signs cookie sessions when none is configured. Release mode refuses it.
const DefaultSecret = "change-me"

const (
	IdentityStatic = "static"
	IdentityHTTP   = "http"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	Secret   string `mapstructure:"secret"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	SendBuffer int           `mapstructure:"send_buffer"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`

	ResolveTimeout   time.Duration `mapstructure:"resolve_timeout"`
	DirectoryTimeout time.Duration `mapstructure:"directory_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`

	// Takeover closes an older session of the same user when a new one joins the panel.
	Takeover bool `mapstructure:"takeover"`

	// AllowedOrigins lists browser origins allowed to open panel sockets.
	// Empty means same host only.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	RateLimit  RateLimit   `mapstructure:"rate_limit"`
	Identity   Identity    `mapstructure:"identity"`
	Directory  Directory   `mapstructure:"directory"`
	ICEServers []ICEServer `mapstructure:"ice_servers"`
}

type RateLimit struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type Identity struct {
	Mode  string       `mapstructure:"mode"`
	URL   string       `mapstructure:"url"`
	Users []StaticUser `mapstructure:"users"`
}

// StaticUser maps a bearer token to an account for the static resolver.
type StaticUser struct {
	Token    string `mapstructure:"token"`
	ID       int64  `mapstructure:"id"`
	Username string `mapstructure:"username"`
}

type Directory struct {
	Panels  []PanelSeed  `mapstructure:"panels"`
	Members []MemberSeed `mapstructure:"members"`
}

type PanelSeed struct {
	ID         string `mapstructure:"id"`
	Title      string `mapstructure:"title"`
	Topic      string `mapstructure:"topic"`
	HostID     int64  `mapstructure:"host_id"`
	Active     bool   `mapstructure:"active"`
	MaxMembers int    `mapstructure:"max_members"`
}

type MemberSeed struct {
	Panel  string `mapstructure:"panel"`
	UserID int64  `mapstructure:"user_id"`
	Role   string `mapstructure:"role"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// WebRTC converts the configured servers into the form browsers expect in RTCConfiguration.
func (c *Config) WebRTC() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}

// Flags returns the command-line flags understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("voicepanel", pflag.ContinueOnError)
	fs.String("config-env", "", "config environment, selects config/config.<env>.yaml (env CONFIG_ENV)")
	fs.String("config", "", "explicit config file path")
	fs.IntP("port", "p", 8080, "listen port")
	fs.StringP("log-level", "l", "info", "log level")
	fs.String("mode", "release", "gin mode: release or debug")
	fs.Bool("takeover", true, "close older sessions of a user who rejoins the same panel")
	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", DefaultSecret)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("send_buffer", 32)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("resolve_timeout", "5s")
	v.SetDefault("directory_timeout", "5s")
	v.SetDefault("shutdown_timeout", "5s")
	v.SetDefault("takeover", true)
	v.SetDefault("rate_limit.messages", 50)
	v.SetDefault("rate_limit.interval", "1s")
	v.SetDefault("identity.mode", IdentityStatic)
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

// Load parses args, reads the YAML file for the selected environment and applies
// VOICE_* environment overrides. A missing config file is not an error.
func Load(args []string) (*Config, error) {
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"port":      "port",
		"log_level": "log-level",
		"mode":      "mode",
		"takeover":  "takeover",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	fileName, _ := fs.GetString("config")
	if fileName == "" {
		env, _ := fs.GetString("config-env")
		if env == "" {
			env = os.Getenv("CONFIG_ENV")
		}
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not loaded, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("identity", cfg.Identity.Mode).
		Bool("takeover", cfg.Takeover).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Port <= 0 || c.Port > 65535 {
		bad("port %d out of range", c.Port)
	}
	if c.ReadLimit <= 0 {
		bad("read_limit must be positive")
	}
	if c.SendBuffer <= 0 {
		bad("send_buffer must be positive")
	}
	if c.Secret == "" {
		bad("secret is required")
	} else if c.Mode == "release" && c.Secret == DefaultSecret {
		bad("secret must be changed from the default in release mode")
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"ping_period", c.PingPeriod},
		{"pong_wait", c.PongWait},
		{"write_wait", c.WriteWait},
		{"resolve_timeout", c.ResolveTimeout},
		{"directory_timeout", c.DirectoryTimeout},
		{"shutdown_timeout", c.ShutdownTimeout},
		{"rate_limit.interval", c.RateLimit.Interval},
	} {
		if d.val <= 0 {
			bad("%s must be positive", d.name)
		}
	}
	if c.PingPeriod >= c.PongWait {
		bad("ping_period (%s) must be shorter than pong_wait (%s)", c.PingPeriod, c.PongWait)
	}
	if c.RateLimit.Messages <= 0 {
		bad("rate_limit.messages must be positive")
	}

	switch c.Identity.Mode {
	case IdentityStatic:
		for _, u := range c.Identity.Users {
			if u.Token == "" || u.ID <= 0 {
				bad("identity user %q needs a token and a positive id", u.Username)
			}
		}
	case IdentityHTTP:
		if c.Identity.URL == "" {
			bad("identity.url is required for http mode")
		}
	default:
		bad("unknown identity mode %q", c.Identity.Mode)
	}

	for _, o := range c.AllowedOrigins {
		if o == "*" {
			continue
		}
		u, err := url.Parse(o)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			bad("allowed origin %q must be scheme://host[:port] or *", o)
		}
	}

	for _, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			bad("ice server without urls")
		}
		for _, raw := range s.URLs {
			if _, err := stun.ParseURI(raw); err != nil {
				bad("ice server url %q: %v", raw, err)
			}
		}
	}

	return errors.Join(errs...)
}
