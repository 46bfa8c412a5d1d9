package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/rpattn/custimport/internal/db"
	"github.com/rpattn/custimport/internal/intake"
)

// Config is the full service configuration.
type Config struct {
	ServerAddr     string
	AllowedOrigins []string
	Database       db.Config
	Limits         intake.Limits
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ServerAddr:     ":8080",
		AllowedOrigins: []string{"http://localhost:3000"},
		Database:       db.DefaultConfig(),
		Limits:         intake.DefaultLimits(),
	}
}

// Load reads config.yaml from configPath, with environment overrides under
// the CUSTIMPORT prefix (CUSTIMPORT_SERVER_ADDR, CUSTIMPORT_DATABASE_HOST, ...).
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("CUSTIMPORT")

	v.BindEnv("server.addr", "CUSTIMPORT_SERVER_ADDR")
	v.BindEnv("database.host", "CUSTIMPORT_DATABASE_HOST")
	v.BindEnv("database.port", "CUSTIMPORT_DATABASE_PORT")
	v.BindEnv("database.user", "CUSTIMPORT_DATABASE_USER")
	v.BindEnv("database.password", "CUSTIMPORT_DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "CUSTIMPORT_DATABASE_DBNAME")
	v.BindEnv("database.sslmode", "CUSTIMPORT_DATABASE_SSLMODE")
	v.BindEnv("import.max_file_bytes", "CUSTIMPORT_IMPORT_MAX_FILE_BYTES")
	v.BindEnv("import.max_rows", "CUSTIMPORT_IMPORT_MAX_ROWS")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("server.addr") {
		cfg.ServerAddr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("import.max_file_bytes") {
		cfg.Limits.MaxFileBytes = v.GetInt64("import.max_file_bytes")
	}
	if v.IsSet("import.max_rows") {
		cfg.Limits.MaxRows = v.GetInt("import.max_rows")
	}

	return cfg, nil
}
