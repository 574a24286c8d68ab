// Package config builds the runner configuration from the process environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultHost      = "localhost"
	defaultPort      = 5432
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// Config is constructed once at process start and passed down explicitly.
type Config struct {
	DB        DBConfig
	LogLevel  string
	LogFormat string

	// SuperAdmins are the accounts upserted by the super-admins migration.
	SuperAdmins []SuperAdmin
}

// DBConfig holds the connection parameters of the target database.
type DBConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	SSL      bool
}

// SuperAdmin is a tenant-less account definition.
type SuperAdmin struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Load reads an optional dotenv file and then the process environment.
// Variables already present in the environment win over the dotenv file.
// An empty envFile means ".env" in the working directory; a missing file is not an error.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to access %s: %w", envFile, err)
	}

	port, err := getEnvInt("DB_PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", defaultHost),
			Port:     port,
			Username: os.Getenv("DB_USERNAME"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: os.Getenv("DB_DATABASE"),
			SSL:      strings.EqualFold(os.Getenv("DB_SSL"), "true"),
		},
		LogLevel:  getEnv("LOG_LEVEL", defaultLogLevel),
		LogFormat: getEnv("LOG_FORMAT", defaultLogFormat),
	}

	if path := os.Getenv("SUPER_ADMINS_FILE"); path != "" {
		admins, err := LoadSuperAdmins(path)
		if err != nil {
			return Config{}, err
		}
		cfg.SuperAdmins = append(cfg.SuperAdmins, admins...)
	}

	if email := os.Getenv("SUPER_ADMIN_EMAIL"); email != "" {
		cfg.SuperAdmins = append(cfg.SuperAdmins, SuperAdmin{
			Name:     getEnv("SUPER_ADMIN_NAME", "Super Admin"),
			Email:    email,
			Password: os.Getenv("SUPER_ADMIN_PASSWORD"),
		})
	}

	return cfg, nil
}

// DSN renders the connection parameters as a lib/pq connection URL.
// Values are passed through unvalidated; the driver reports what it rejects.
func (c DBConfig) DSN() string {
	sslMode := "disable"
	if c.SSL {
		sslMode = "require"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}

	return u.String()
}

// Redacted is DSN with the password masked, safe for logs.
func (c DBConfig) Redacted() string {
	u, err := url.Parse(c.DSN())
	if err != nil {
		return ""
	}

	return u.Redacted()
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}

	return n, nil
}
