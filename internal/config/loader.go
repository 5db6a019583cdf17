package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/accessmap/internal/db"
)

// EnvPrefix prefixes environment overrides, e.g. ACCESSMAP_SERVER_ADDR.
const EnvPrefix = "ACCESSMAP"

// Learning store backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type UploadConfig struct {
	MaxSizeMB         int
	AllowedExtensions []string
}

// MaxSizeBytes converts the configured limit to bytes.
func (c UploadConfig) MaxSizeBytes() int64 {
	return int64(c.MaxSizeMB) << 20
}

type LearningConfig struct {
	Backend    string
	Dir        string
	SQLitePath string
}

type ReviewConfig struct {
	MaxSessions int
}

type LogConfig struct {
	Level  string
	Format string
}

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig
	Upload   UploadConfig
	Learning LearningConfig
	Review   ReviewConfig
	Database db.Config
	Log      LogConfig
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("upload.max_size_mb", 100)
	v.SetDefault("upload.allowed_extensions", []string{".csv", ".json", ".xlsx", ".xls"})

	v.SetDefault("learning.backend", BackendFile)
	v.SetDefault("learning.dir", "data/device_learning")
	v.SetDefault("learning.sqlite_path", "data/accessmap.db")

	v.SetDefault("review.max_sessions", 256)

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func newViper(configPath string) (*viper.Viper, bool, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // allow environment overrides

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, false, nil
		}
		return nil, false, fmt.Errorf("failed to read config: %w", err)
	}
	return v, true, nil
}

// Load reads config.yaml from configPath, if present, then applies
// environment overrides. The second return reports whether a file was read.
func Load(configPath string) (Config, bool, error) {
	v, fromFile, err := newViper(configPath)
	if err != nil {
		return Config{}, false, err
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			AllowedOrigins:  v.GetStringSlice("server.allowed_origins"),
		},
		Upload: UploadConfig{
			MaxSizeMB:         v.GetInt("upload.max_size_mb"),
			AllowedExtensions: v.GetStringSlice("upload.allowed_extensions"),
		},
		Learning: LearningConfig{
			Backend:    strings.ToLower(strings.TrimSpace(v.GetString("learning.backend"))),
			Dir:        v.GetString("learning.dir"),
			SQLitePath: v.GetString("learning.sqlite_path"),
		},
		Review: ReviewConfig{
			MaxSessions: v.GetInt("review.max_sessions"),
		},
		Database: databaseConfig(v),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fromFile, err
	}
	return cfg, fromFile, nil
}

// LoadDBConfig loads only the database section.
func LoadDBConfig(configPath string) (db.Config, error) {
	v, _, err := newViper(configPath)
	if err != nil {
		return db.Config{}, err
	}
	return databaseConfig(v), nil
}

func databaseConfig(v *viper.Viper) db.Config {
	return db.Config{
		Host:     v.GetString("database.host"),
		Port:     v.GetInt("database.port"),
		User:     v.GetString("database.user"),
		Password: v.GetString("database.password"),
		DBName:   v.GetString("database.dbname"),
		SSLMode:  v.GetString("database.sslmode"),
	}
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Learning.Backend {
	case BackendFile:
		if c.Learning.Dir == "" {
			return errors.New("learning.dir is required for the file backend")
		}
	case BackendSQLite:
		if c.Learning.SQLitePath == "" {
			return errors.New("learning.sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
	default:
		return fmt.Errorf("unknown learning.backend %q", c.Learning.Backend)
	}
	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("upload.max_size_mb must be positive, got %d", c.Upload.MaxSizeMB)
	}
	if c.Review.MaxSessions <= 0 {
		return fmt.Errorf("review.max_sessions must be positive, got %d", c.Review.MaxSessions)
	}
	return nil
}
