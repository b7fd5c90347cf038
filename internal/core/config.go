package core

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the game server.
type Config struct {
	// Hostname or IP address on which the admission listener binds.
	Hostname string `mapstructure:"hostname"`
	// Port players connect to. GameLift passes it on the command line.
	Port int `mapstructure:"port"`
	// Full path to file to which logs will be written. Blank uses logs/myserver<port>.log.
	LogFilePath string `mapstructure:"log_file_path"`
	// Minimum level of a log required to be written. Options: debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`
	// Size in megabytes at which the log file is rotated, and how many rotated files to keep.
	LogMaxSizeMB  int `mapstructure:"log_max_size_mb"`
	LogMaxBackups int `mapstructure:"log_max_backups"`
	// Maximum number of connections handled concurrently by the admission listener.
	MaxConnections int `mapstructure:"max_connections"`

	Admission struct {
		// Length of the pending connection queue of the listening socket.
		Backlog int `mapstructure:"backlog"`
		// How long a client has to send its token after connecting.
		ReadTimeout time.Duration `mapstructure:"read_timeout"`
		// Largest token read from a single connection.
		MaxTokenSize int `mapstructure:"max_token_size"`
		// Window in which an already accepted token is refused. 0 disables the check.
		DuplicateTokenTTL time.Duration `mapstructure:"duplicate_token_ttl"`
	} `mapstructure:"admission"`

	Session struct {
		// How often the supervisor checks whether GameLift started a session.
		PollInterval time.Duration `mapstructure:"poll_interval"`
		// How long a started session runs before the server shuts it down.
		DwellTime time.Duration `mapstructure:"dwell_time"`
		// Pause before ProcessEnding so the log agent can ship the last lines.
		LogFlushDelay time.Duration `mapstructure:"log_flush_delay"`
	} `mapstructure:"session"`

	// Only needed on GameLift Anywhere fleets; managed EC2 fleets leave these blank.
	GameLift struct {
		WebSocketURL string `mapstructure:"websocket_url"`
		ProcessID    string `mapstructure:"process_id"`
		HostID       string `mapstructure:"host_id"`
		FleetID      string `mapstructure:"fleet_id"`
		AuthToken    string `mapstructure:"auth_token"`
	} `mapstructure:"gamelift"`

	Database struct {
		// One of sqlite, postgres or none.
		Engine   string `mapstructure:"engine"`
		Filename string `mapstructure:"filename"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Name     string `mapstructure:"name"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Debugging struct {
		// Enable the pprof and metrics HTTP server.
		Enabled   bool `mapstructure:"enabled"`
		PprofPort int  `mapstructure:"pprof_port"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "GAMESERVER"

// DefaultPort is used when GameLift does not pass -port.
const DefaultPort = 1935

var defaults = map[string]interface{}{
	"hostname":                      "0.0.0.0",
	"port":                          DefaultPort,
	"log_file_path":                 "",
	"log_level":                     "info",
	"log_max_size_mb":               100,
	"log_max_backups":               3,
	"max_connections":               2,
	"admission.backlog":             2,
	"admission.read_timeout":        "5s",
	"admission.max_token_size":      1024,
	"admission.duplicate_token_ttl": "10m",
	"session.poll_interval":         "10s",
	"session.dwell_time":            "60s",
	"session.log_flush_delay":       "3s",
	"gamelift.websocket_url":        "",
	"gamelift.process_id":           "",
	"gamelift.host_id":              "",
	"gamelift.fleet_id":             "",
	"gamelift.auth_token":           "",
	"database.engine":               "sqlite",
	"database.filename":             "logs/sessions.db",
	"database.host":                 "localhost",
	"database.port":                 5432,
	"database.name":                 "gameserver",
	"database.username":             "",
	"database.password":             "",
	"database.sslmode":              "disable",
	"debugging.enabled":             false,
	"debugging.pprof_port":          6060,
}

// LoadConfig reads config.yaml from configPath (if present), environment variables
// prefixed with GAMESERVER_ and any flags in flags, in increasing precedence.
// Flags are bound by their config key; pass nil to skip them.
func LoadConfig(configPath string, flags map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if configPath != "" {
		v.AddConfigPath(configPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, session.dwell_time can be set using: GAMESERVER_SESSION_DWELL_TIME
	v.SetEnvPrefix(envVarPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", flag.Name, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports the first option that would keep the server from starting.
func (c *Config) Validate() error {
	switch {
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.MaxConnections < 1:
		return fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections)
	case c.Admission.Backlog < 1:
		return fmt.Errorf("admission.backlog must be positive, got %d", c.Admission.Backlog)
	case c.Admission.MaxTokenSize < 1:
		return fmt.Errorf("admission.max_token_size must be positive, got %d", c.Admission.MaxTokenSize)
	case c.Admission.ReadTimeout <= 0:
		return fmt.Errorf("admission.read_timeout must be positive, got %s", c.Admission.ReadTimeout)
	case c.Admission.DuplicateTokenTTL < 0:
		return fmt.Errorf("admission.duplicate_token_ttl must not be negative, got %s", c.Admission.DuplicateTokenTTL)
	case c.Session.PollInterval <= 0:
		return fmt.Errorf("session.poll_interval must be positive, got %s", c.Session.PollInterval)
	case c.Session.DwellTime < 0 || c.Session.LogFlushDelay < 0:
		return errors.New("session durations must not be negative")
	}

	switch c.Database.Engine {
	case "sqlite", "postgres", "none", "":
	default:
		return fmt.Errorf("unsupported database engine %q", c.Database.Engine)
	}
	return nil
}

// ListenAddress returns the address the admission listener binds to.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

// LogFile returns the configured log file, defaulting to one per port so that
// several server processes on an instance do not share a file.
func (c *Config) LogFile() string {
	if c.LogFilePath != "" {
		return c.LogFilePath
	}
	return filepath.Join("logs", fmt.Sprintf("myserver%d.log", c.Port))
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a database URL generated from the provided config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}
