// Package config resolves nestql settings from the config file, the
// environment and .env files.
//
// Precedence, highest first: command-line flags (applied by the caller),
// NESTQL_* environment variables, .env.local, .env, .nestql.yaml in the
// working directory or the home directory, defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem config files are read from. Tests swap it for
// an in-memory filesystem.
var AppFs = afero.NewOsFs()

// Config holds the resolved settings.
type Config struct {
	Dialect   string
	Database  string
	Schema    string
	LogLevel  string
	LogFormat string

	// File is the config file that was read, empty if none.
	File string
}

// Options controls where configuration is looked up.
type Options struct {
	// ConfigFile, when set, is read instead of searching for .nestql.yaml.
	// A missing explicit file is an error.
	ConfigFile string

	// Dir is the directory searched for .nestql.yaml and .env files.
	// Defaults to ".".
	Dir string
}

// Load resolves the configuration.
func Load(opts Options) (*Config, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	// Load .env file if it exists
	if err := loadDotenv(filepath.Join(dir, ".env"), false); err != nil {
		return nil, err
	}
	// Load .env.local if it exists (higher priority)
	if err := loadDotenv(filepath.Join(dir, ".env.local"), true); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(AppFs)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(".nestql")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
			v.AddConfigPath(filepath.Join(home, ".config", "nestql"))
		}
	}

	// Set environment variable prefix
	v.SetEnvPrefix("NESTQL")
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("dialect", "postgres")
	v.SetDefault("schema", "schema")
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Dialect:   v.GetString("dialect"),
		Database:  v.GetString("database"),
		Schema:    v.GetString("schema"),
		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		File:      v.ConfigFileUsed(),
	}
	if cfg.Database == "" {
		cfg.Database = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

// loadDotenv sets the variables of a .env file. Existing variables are
// kept unless overload is set. A missing file is not an error.
func loadDotenv(path string, overload bool) error {
	if _, err := AppFs.Stat(path); err != nil {
		return nil
	}
	f, err := AppFs.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	env, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for k, val := range env {
		if _, exists := os.LookupEnv(k); exists && !overload {
			continue
		}
		if err := os.Setenv(k, val); err != nil {
			return err
		}
	}
	return nil
}
