package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8000" {
		t.Fatalf("expected default address :8000, got %q", cfg.Server.Address)
	}
	if cfg.Interpreter.Command != "gforth" {
		t.Fatalf("expected gforth, got %q", cfg.Interpreter.Command)
	}
	if len(cfg.Interpreter.Args) != 2 || cfg.Interpreter.Args[0] != "-e" || cfg.Interpreter.Args[1] != "quit" {
		t.Fatalf("unexpected interpreter args %v", cfg.Interpreter.Args)
	}
	if cfg.Interpreter.SettleDelay != 50*time.Millisecond {
		t.Fatalf("expected 50ms settle delay, got %s", cfg.Interpreter.SettleDelay)
	}
	if cfg.Auth.LockedToken != DefaultLockedToken {
		t.Fatalf("expected locked token %q, got %q", DefaultLockedToken, cfg.Auth.LockedToken)
	}
	if cfg.Server.BodyLimit != "16K" {
		t.Fatalf("expected 16K body limit, got %q", cfg.Server.BodyLimit)
	}
	if cfg.Interpreter.WriteTimeout != 2*time.Second {
		t.Fatalf("expected 2s write timeout, got %s", cfg.Interpreter.WriteTimeout)
	}
	if cfg.Auth.UnlockRate != 0 {
		t.Fatalf("wrong-guess throttling should be off by default, got %v per minute", cfg.Auth.UnlockRate)
	}
	if cfg.Turn.DisplayLimit != 600 {
		t.Fatalf("expected display limit 600, got %d", cfg.Turn.DisplayLimit)
	}
	if cfg.Slides.Redis.Enabled() {
		t.Fatalf("redis mirror should be disabled by default")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"server": {"address": ":9100"},
		"interpreter": {"command": "cat", "args": [], "settle_delay": "20ms"},
		"slides": {"poll_timeout": "30s"}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VOICEFORTH_TURN_ASSISTANT_NAME", "forth bot")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9100" {
		t.Fatalf("expected :9100, got %q", cfg.Server.Address)
	}
	if cfg.Interpreter.Command != "cat" || cfg.Interpreter.SettleDelay != 20*time.Millisecond {
		t.Fatalf("unexpected interpreter config %+v", cfg.Interpreter)
	}
	if cfg.Slides.PollTimeout != 30*time.Second {
		t.Fatalf("expected 30s poll timeout, got %s", cfg.Slides.PollTimeout)
	}
	if cfg.Turn.AssistantName != "forth bot" {
		t.Fatalf("expected env override, got %q", cfg.Turn.AssistantName)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "no address", mutate: func(c *Config) { c.Server.Address = "" }, wantErr: true},
		{name: "no command", mutate: func(c *Config) { c.Interpreter.Command = " " }, wantErr: true},
		{name: "zero settle", mutate: func(c *Config) { c.Interpreter.SettleDelay = 0 }, wantErr: true},
		{name: "zero write timeout", mutate: func(c *Config) { c.Interpreter.WriteTimeout = 0 }, wantErr: true},
		{name: "body limit in megabytes", mutate: func(c *Config) { c.Server.BodyLimit = "1MB" }},
		{name: "no body limit", mutate: func(c *Config) { c.Server.BodyLimit = "" }, wantErr: true},
		{name: "garbage body limit", mutate: func(c *Config) { c.Server.BodyLimit = "lots" }, wantErr: true},
		{name: "no password source", mutate: func(c *Config) { c.Auth.PasswordFile = "" }, wantErr: true},
		{name: "rate without burst", mutate: func(c *Config) { c.Auth.UnlockBurst = 0 }, wantErr: true},
		{name: "redis without channel", mutate: func(c *Config) {
			c.Slides.Redis.Host = "localhost"
			c.Slides.Redis.Channel = ""
		}, wantErr: true},
		{name: "negative poll timeout", mutate: func(c *Config) { c.Slides.PollTimeout = -time.Second }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadSecret(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "passwd")
	if err := os.WriteFile(file, []byte("  swordfish\n"), 0o600); err != nil {
		t.Fatalf("write passwd: %v", err)
	}

	got, err := LoadSecret(AuthConfig{PasswordFile: file, LockedToken: "x"})
	if err != nil {
		t.Fatalf("LoadSecret: %v", err)
	}
	if got != "swordfish" {
		t.Fatalf("expected trimmed secret, got %q", got)
	}

	got, err = LoadSecret(AuthConfig{Password: "inline", PasswordFile: file, LockedToken: "x"})
	if err != nil || got != "inline" {
		t.Fatalf("expected inline password to win, got %q, %v", got, err)
	}

	if _, err := LoadSecret(AuthConfig{Password: "x", LockedToken: "x"}); err == nil {
		t.Fatalf("expected error when secret equals the locked token")
	}
	if _, err := LoadSecret(AuthConfig{PasswordFile: filepath.Join(dir, "missing"), LockedToken: "x"}); err == nil {
		t.Fatalf("expected error for missing password file")
	}
}

func TestNormalize(t *testing.T) {
	cfg := validConfig()
	cfg.Server.CORSOrigins = []string{" https://a.example ", "", "https://a.example", "*"}
	cfg.Interpreter.Command = " gforth "
	cfg.Interpreter.KillSignal = " sigquit"
	cfg.Turn.AssistantName = "  voice   forth "
	cfg.Normalize()

	if got := cfg.Server.CORSOrigins; len(got) != 2 || got[0] != "https://a.example" || got[1] != "*" {
		t.Fatalf("unexpected origins %q", got)
	}
	if cfg.Interpreter.Command != "gforth" || cfg.Interpreter.KillSignal != "SIGQUIT" {
		t.Fatalf("unexpected interpreter config %+v", cfg.Interpreter)
	}
	if cfg.Turn.AssistantName != "voice forth" {
		t.Fatalf("expected collapsed assistant name, got %q", cfg.Turn.AssistantName)
	}
}

func validConfig() *Config {
	return &Config{
		Server:      ServerConfig{Address: ":8000", ShutdownTimeout: time.Second, BodyLimit: "16K"},
		Auth:        AuthConfig{PasswordFile: "passwd", LockedToken: "x", UnlockRate: 30, UnlockBurst: 5},
		Interpreter: InterpreterConfig{Command: "gforth", SettleDelay: 50 * time.Millisecond, WriteTimeout: 2 * time.Second},
		Turn:        TurnConfig{AssistantName: "voice forth", DisplayLimit: 600},
	}
}
