package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultLockedToken is the token handed back to callers that have not
// (or no longer) supplied the shared passphrase.
const DefaultLockedToken = "x"

// bodyLimitPattern accepts the sizes echo's BodyLimit middleware parses.
var bodyLimitPattern = regexp.MustCompile(`^\d+(\.\d+)?\s?([KMGTPE]B?|B?)$`)

// Config holds all configuration for the voice bridge.
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Interpreter InterpreterConfig `mapstructure:"interpreter"`
	Turn        TurnConfig        `mapstructure:"turn"`
	Slides      SlidesConfig      `mapstructure:"slides"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	CORSOrigins       []string      `mapstructure:"cors_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	BodyLimit         string        `mapstructure:"body_limit"` // e.g. "16K", "1M"
}

// Normalize trims origins and drops blanks and duplicates.
func (s ServerConfig) Normalize() ServerConfig {
	seen := make(map[string]struct{}, len(s.CORSOrigins))
	var origins []string
	for _, o := range s.CORSOrigins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		origins = append(origins, o)
	}
	s.CORSOrigins = origins
	s.Address = strings.TrimSpace(s.Address)
	s.BodyLimit = strings.ToUpper(strings.TrimSpace(s.BodyLimit))
	return s
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server.address required")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout cannot be negative")
	}
	if !bodyLimitPattern.MatchString(s.BodyLimit) {
		return fmt.Errorf("server.body_limit %q must look like 16K or 1M", s.BodyLimit)
	}
	return nil
}

// AuthConfig describes where the shared passphrase comes from and how
// password guesses are throttled.
type AuthConfig struct {
	Password     string  `mapstructure:"password"`
	PasswordFile string  `mapstructure:"password_file"`
	LockedToken  string  `mapstructure:"locked_token"`
	UnlockRate   float64 `mapstructure:"unlock_rate"` // wrong guesses per minute per caller, 0 disables throttling
	UnlockBurst  int     `mapstructure:"unlock_burst"`
}

func (a AuthConfig) Validate() error {
	if strings.TrimSpace(a.LockedToken) == "" {
		return fmt.Errorf("auth.locked_token required")
	}
	if a.Password == "" && strings.TrimSpace(a.PasswordFile) == "" {
		return fmt.Errorf("auth.password or auth.password_file required")
	}
	if a.UnlockRate < 0 {
		return fmt.Errorf("auth.unlock_rate cannot be negative")
	}
	if a.UnlockRate > 0 && a.UnlockBurst <= 0 {
		return fmt.Errorf("auth.unlock_burst must be > 0 when unlock_rate is set")
	}
	return nil
}

// InterpreterConfig controls how the interpreter subprocess is spawned and
// how long a turn waits for it to answer.
type InterpreterConfig struct {
	Command     string        `mapstructure:"command"`
	Args        []string      `mapstructure:"args"`
	PTY         bool          `mapstructure:"pty"`
	KillSignal  string        `mapstructure:"kill_signal"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// WriteTimeout is how long a turn may wait on an interpreter that stopped
	// reading before it is killed.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (i InterpreterConfig) Normalize() InterpreterConfig {
	i.Command = strings.TrimSpace(i.Command)
	i.KillSignal = strings.ToUpper(strings.TrimSpace(i.KillSignal))
	return i
}

func (i InterpreterConfig) Validate() error {
	if strings.TrimSpace(i.Command) == "" {
		return fmt.Errorf("interpreter.command required")
	}
	if i.SettleDelay <= 0 {
		return fmt.Errorf("interpreter.settle_delay must be > 0")
	}
	if i.WriteTimeout <= 0 {
		return fmt.Errorf("interpreter.write_timeout must be > 0")
	}
	return nil
}

// TurnConfig shapes replies.
type TurnConfig struct {
	AssistantName string `mapstructure:"assistant_name"`
	DisplayLimit  int    `mapstructure:"display_limit"`
	Apology       string `mapstructure:"apology"`
}

// Normalize collapses runs of whitespace in the assistant name so the
// "talk to" phrase matches what speech recognition produces.
func (t TurnConfig) Normalize() TurnConfig {
	t.AssistantName = strings.Join(strings.Fields(t.AssistantName), " ")
	return t
}

func (t TurnConfig) Validate() error {
	if strings.TrimSpace(t.AssistantName) == "" {
		return fmt.Errorf("turn.assistant_name required")
	}
	if t.DisplayLimit < 0 {
		return fmt.Errorf("turn.display_limit cannot be negative")
	}
	return nil
}

// SlidesConfig controls the slide-command side channel.
type SlidesConfig struct {
	PollTimeout time.Duration `mapstructure:"poll_timeout"` // 0 blocks until a command arrives
	Redis       RedisConfig   `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings for mirroring slide
// commands. An empty host disables the mirror.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Channel  string        `mapstructure:"channel"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis mirror was configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("slides.redis.port required when host is set")
	}
	if strings.TrimSpace(r.Channel) == "" {
		return fmt.Errorf("slides.redis.channel required when host is set")
	}
	return nil
}

func (s SlidesConfig) Validate() error {
	if s.PollTimeout < 0 {
		return fmt.Errorf("slides.poll_timeout cannot be negative")
	}
	return s.Redis.Validate()
}

// Normalize cleans every section in place.
func (c *Config) Normalize() {
	c.Server = c.Server.Normalize()
	c.Interpreter = c.Interpreter.Normalize()
	c.Turn = c.Turn.Normalize()
	c.Slides.Redis.Host = strings.TrimSpace(c.Slides.Redis.Host)
	c.Auth.LockedToken = strings.TrimSpace(c.Auth.LockedToken)
}

// Validate checks every section.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		c.Server, c.Auth, c.Interpreter, c.Turn, c.Slides,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.body_limit", "16K")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.password_file", "passwd")
	v.SetDefault("auth.locked_token", DefaultLockedToken)
	v.SetDefault("auth.unlock_rate", 0)
	v.SetDefault("auth.unlock_burst", 5)
	v.SetDefault("interpreter.command", "gforth")
	v.SetDefault("interpreter.args", []string{"-e", "quit"})
	v.SetDefault("interpreter.pty", false)
	v.SetDefault("interpreter.kill_signal", "SIGTERM")
	v.SetDefault("interpreter.settle_delay", 50*time.Millisecond)
	v.SetDefault("interpreter.write_timeout", 2*time.Second)
	v.SetDefault("turn.assistant_name", "voice forth")
	v.SetDefault("turn.display_limit", 600)
	v.SetDefault("turn.apology", "Sorry, the interpreter is not available right now.")
	v.SetDefault("slides.poll_timeout", time.Duration(0))
	v.SetDefault("slides.redis.host", "")
	v.SetDefault("slides.redis.port", "6379")
	v.SetDefault("slides.redis.password", "")
	v.SetDefault("slides.redis.db", 0)
	v.SetDefault("slides.redis.channel", "voiceforth:slides")
	v.SetDefault("slides.redis.timeout", 2*time.Second)
}

// Load reads configuration from path (or the default search locations when
// path is empty) and from VOICEFORTH_* environment variables. A missing
// config file in the default locations is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("VOICEFORTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSecret resolves the shared passphrase once: auth.password wins,
// otherwise the trimmed contents of auth.password_file.
func LoadSecret(cfg AuthConfig) (string, error) {
	secret := strings.TrimSpace(cfg.Password)
	if secret == "" {
		data, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		secret = strings.TrimSpace(string(data))
	}
	if secret == "" {
		return "", errors.New("shared passphrase is empty")
	}
	if secret == cfg.LockedToken {
		return "", fmt.Errorf("shared passphrase must differ from auth.locked_token")
	}
	return secret, nil
}
