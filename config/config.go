// Package config loads the settings of the henka command from a YAML file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

type Migrations struct {
	// Dir holds the V<version>_<name>.up.hmf / .down.hmf step files.
	Dir string `yaml:"dir" validate:"required"`
}

type Redis struct {
	Addr     string        `yaml:"addr" validate:"required"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	TTL      time.Duration `yaml:"ttl" validate:"omitempty,gte=1s"`
}

// Lock configures mutual exclusion between runs. Without Redis the lock of
// the database itself is used.
type Lock struct {
	Mode  string `yaml:"mode" validate:"oneof=wait fail"`
	Key   string `yaml:"key" validate:"required"`
	Redis *Redis `yaml:"redis"`
}

type Log struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Config contains the henka command config
type Config struct {
	Driver string `yaml:"driver" validate:"required,oneof=postgres mysql sqlite"`
	DSN    string `yaml:"dsn" validate:"required"`

	// Database qualifies the history table: a MySQL database or a
	// Postgres schema. Unused for SQLite.
	Database     string `yaml:"database"`
	HistoryTable string `yaml:"historyTable" validate:"required"`

	Migrations Migrations `yaml:"migrations"`
	Lock       Lock       `yaml:"lock"`
	Log        Log        `yaml:"log"`
}

func Default() Config {
	return Config{
		HistoryTable: "migrations_log",
		Migrations:   Migrations{Dir: "migrations"},
		Lock: Lock{
			Mode: "wait",
			Key:  "henka:migrations",
		},
		Log: Log{Level: "info"},
	}
}

// Load reads the config file, expanding ${VAR} references from the
// environment, on top of Default.
func Load(configFile string) (*Config, error) {
	fileContent, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("error read file config %s: %w", configFile, err)
	}

	return Parse(fileContent)
}

func Parse(content []byte) (*Config, error) {
	conf := Default()

	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(content)))))
	dec.KnownFields(true)
	if err := dec.Decode(&conf); err != nil {
		return nil, fmt.Errorf("error decode config: %w", err)
	}

	if err := validator.New().Struct(conf); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &conf, nil
}
