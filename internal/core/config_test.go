package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port want = %d, got = %d", DefaultPort, cfg.Port)
	}
	if cfg.Admission.Backlog != 2 {
		t.Errorf("Admission.Backlog want = 2, got = %d", cfg.Admission.Backlog)
	}
	if cfg.Admission.MaxTokenSize != 1024 {
		t.Errorf("Admission.MaxTokenSize want = 1024, got = %d", cfg.Admission.MaxTokenSize)
	}
	if cfg.Admission.ReadTimeout != 5*time.Second {
		t.Errorf("Admission.ReadTimeout want = 5s, got = %s", cfg.Admission.ReadTimeout)
	}
	if cfg.Session.DwellTime != time.Minute {
		t.Errorf("Session.DwellTime want = 1m, got = %s", cfg.Session.DwellTime)
	}
	if cfg.Session.LogFlushDelay != 3*time.Second {
		t.Errorf("Session.LogFlushDelay want = 3s, got = %s", cfg.Session.LogFlushDelay)
	}
	if cfg.LogFile() != filepath.Join("logs", "myserver1935.log") {
		t.Errorf("LogFile() want = logs/myserver1935.log, got = %s", cfg.LogFile())
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	contents := []byte("port: 7777\nlog_level: debug\nsession:\n  dwell_time: 30s\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), contents, 0600); err != nil {
		t.Fatalf("error writing test config: %v", err)
	}
	t.Setenv("GAMESERVER_SESSION_DWELL_TIME", "45s")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", DefaultPort, "")
	if err := fs.Parse([]string{"--port", "9000"}); err != nil {
		t.Fatalf("error parsing flags: %v", err)
	}

	cfg, err := LoadConfig(dir, map[string]*pflag.Flag{"port": fs.Lookup("port")})
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("flag did not override file: Port = %d", cfg.Port)
	}
	if cfg.Session.DwellTime != 45*time.Second {
		t.Errorf("env did not override file: DwellTime = %s", cfg.Session.DwellTime)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("file value not read: LogLevel = %s", cfg.LogLevel)
	}
}

func TestLoadConfig_UnchangedFlagKeepsFileValue(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("port: 7777\n"), 0600); err != nil {
		t.Fatalf("error writing test config: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", DefaultPort, "")

	cfg, err := LoadConfig(dir, map[string]*pflag.Flag{"port": fs.Lookup("port")})
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}
	if cfg.Port != 7777 {
		t.Errorf("Port want = 7777, got = %d", cfg.Port)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("port: [\n"), 0600); err != nil {
		t.Fatalf("error writing test config: %v", err)
	}

	if _, err := LoadConfig(dir, nil); err == nil {
		t.Error("LoadConfig() expected an error for a malformed file")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig("", nil)
		if err != nil {
			t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(c *Config) {}},
		{name: "port too large", modify: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "zero backlog", modify: func(c *Config) { c.Admission.Backlog = 0 }, wantErr: true},
		{name: "zero token size", modify: func(c *Config) { c.Admission.MaxTokenSize = 0 }, wantErr: true},
		{name: "no read timeout", modify: func(c *Config) { c.Admission.ReadTimeout = 0 }, wantErr: true},
		{name: "zero poll interval", modify: func(c *Config) { c.Session.PollInterval = 0 }, wantErr: true},
		{name: "duplicate check disabled", modify: func(c *Config) { c.Admission.DuplicateTokenTTL = 0 }},
		{name: "unknown database", modify: func(c *Config) { c.Database.Engine = "mongo" }, wantErr: true},
		{name: "database disabled", modify: func(c *Config) { c.Database.Engine = "none" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() wantErr = %v, error = %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_ListenAddress(t *testing.T) {
	cfg := &Config{Hostname: "0.0.0.0", Port: 1935}

	if addr := cfg.ListenAddress(); addr != "0.0.0.0:1935" {
		t.Errorf("ListenAddress() want = 0.0.0.0:1935, got = %s", addr)
	}
}

func TestConfig_DatabaseURL(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.Name = "testdb"
	cfg.Database.Username = "testuser"
	cfg.Database.Password = "testpassword"

	url := cfg.DatabaseURL()
	expected := "host=localhost port=5432 dbname=testdb user=testuser password=testpassword sslmode="
	if url != expected {
		t.Errorf("DatabaseURL() want = %s, got = %s", expected, url)
	}
}

func TestLoadConfig_SampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "setup"), nil)
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error for the sample config: %v", err)
	}
	if cfg.Port != DefaultPort || cfg.Session.DwellTime != 60*time.Second || cfg.Database.Engine != "sqlite" {
		t.Errorf("sample config did not match defaults: %+v", cfg)
	}
}
