// Package config provides functionality for managing configuration options
// of the couplegram server and client using command-line flags, a JSON or
// YAML config file and environment variables.
//
// Sources are applied in order: flags, then the config file, then the
// environment, each overriding what came before.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// ServerOptions holds the configuration values of the gateway server.
type ServerOptions struct {
	// Address is the server's listening address (ip:port).
	Address string `json:"address" yaml:"address"`

	// PublicURL is the origin clients reach the server at; preview and
	// avatar URLs are built from it.
	PublicURL string `json:"public_url" yaml:"public_url"`

	// DatabaseDSN holds the PostgreSQL connection string.
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn"`

	// RedisURL enables the recent-posts timeline when set.
	RedisURL string `json:"redis_url" yaml:"redis_url"`

	// NatsURL enables domain event publishing when set.
	NatsURL string `json:"nats_url" yaml:"nats_url"`

	// JWTSecret signs session tokens.
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`

	// TLSCert and TLSKey switch the server to HTTPS when both are set.
	TLSCert string `json:"tls_cert" yaml:"tls_cert"`
	TLSKey  string `json:"tls_key" yaml:"tls_key"`

	LogLevel string `json:"log_level" yaml:"log_level"`

	// Config is the path to the config file.
	Config string `json:"-" yaml:"-"`
}

// ClientOptions holds the configuration values of the shell client.
type ClientOptions struct {
	// URL is the gateway base URL. Empty selects the in-memory gateway.
	URL string `json:"url" yaml:"url"`

	// CAFile is a PEM bundle trusted for the gateway's TLS certificate.
	CAFile string `json:"ca" yaml:"ca"`

	// StateFile persists the session between runs.
	StateFile string `json:"state" yaml:"state"`

	// NatsURL subscribes the cache to gateway events when set.
	NatsURL string `json:"nats_url" yaml:"nats_url"`

	LogLevel string `json:"log_level" yaml:"log_level"`

	ShowVersion bool   `json:"-" yaml:"-"`
	Config      string `json:"-" yaml:"-"`
}

// ParseServer parses the server flags in args and applies the config file
// and environment.
func ParseServer(args []string) (*ServerOptions, error) {
	o := &ServerOptions{}
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&o.Address, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&o.PublicURL, "public-url", "", "public base URL of the server")
	fs.StringVar(&o.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&o.RedisURL, "redis", "", "redis URL for the recent posts timeline")
	fs.StringVar(&o.NatsURL, "nats", "", "NATS URL for domain events")
	fs.StringVar(&o.JWTSecret, "jwt-secret", "", "session token signing secret")
	fs.StringVar(&o.TLSCert, "tls-cert", "", "path to server certificate")
	fs.StringVar(&o.TLSKey, "tls-key", "", "path to server private key")
	fs.StringVar(&o.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&o.Config, "config", "config.json", "path to config file")
	fs.StringVar(&o.Config, "c", "config.json", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if p := os.Getenv("CONFIG"); p != "" {
		o.Config = p
	}
	if err := loadFile(o.Config, o); err != nil {
		return nil, err
	}

	override(&o.Address, "SERVER_ADDRESS")
	override(&o.PublicURL, "PUBLIC_URL")
	override(&o.DatabaseDSN, "DATABASE_DSN")
	override(&o.RedisURL, "REDIS_URL")
	override(&o.NatsURL, "NATS_URL")
	override(&o.JWTSecret, "JWT_SECRET")
	override(&o.TLSCert, "TLS_CERT")
	override(&o.TLSKey, "TLS_KEY")
	override(&o.LogLevel, "LOG_LEVEL")

	if o.PublicURL == "" {
		scheme := "http"
		if o.TLSCert != "" && o.TLSKey != "" {
			scheme = "https"
		}
		o.PublicURL = scheme + "://" + o.Address
	}
	if o.JWTSecret == "" {
		return nil, errors.New("jwt secret is required (-jwt-secret or JWT_SECRET)")
	}
	return o, nil
}

// ParseClient parses the client flags in args and applies the config file
// and environment.
func ParseClient(args []string) (*ClientOptions, error) {
	o := &ClientOptions{}
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.StringVar(&o.URL, "url", "", "gateway base URL (empty: in-memory gateway)")
	fs.StringVar(&o.CAFile, "ca", "", "path to CA cert")
	fs.StringVar(&o.StateFile, "state", "couplegram.json", "path to session state file")
	fs.StringVar(&o.NatsURL, "nats", "", "NATS URL for live cache invalidation")
	fs.StringVar(&o.LogLevel, "log-level", "warn", "log level")
	fs.BoolVar(&o.ShowVersion, "version", false, "show build version and date")
	fs.StringVar(&o.Config, "config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if p := os.Getenv("CONFIG"); p != "" {
		o.Config = p
	}
	if err := loadFile(o.Config, o); err != nil {
		return nil, err
	}

	override(&o.URL, "GATEWAY_URL")
	override(&o.CAFile, "GATEWAY_CA")
	override(&o.NatsURL, "NATS_URL")
	override(&o.LogLevel, "LOG_LEVEL")
	return o, nil
}

// loadFile decodes the config file at path into dst. A missing file is not
// an error.
func loadFile(path string, dst any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, dst)
	default:
		err = json.Unmarshal(data, dst)
	}
	if err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}

func override(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
