// Package config is for parsing honeycollector's configuration.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

type validator interface {
	validate() error
}

// Config stores honeycollector's configuration.
type Config struct {
	Listen ListenConfig `json:"listen"`
	TSDB   TSDBConfig   `json:"tsdb"`
	Health HealthConfig `json:"health"`
}

// ListenConfig configures the mTLS WebSocket listener.
type ListenConfig struct {
	Addr           string `json:"addr"`
	CertFile       string `json:"cert_file"`
	KeyFile        string `json:"key_file"`
	ClientCAFile   string `json:"client_ca_file"`
	MaxMissedPings int    `json:"max_missed_pings"`
}

// TSDBConfig points the write client at the backing time-series database;
// the database itself lives outside this module.
type TSDBConfig struct {
	Addr     string `json:"addr"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// HealthConfig configures the shared healthapi surface.
type HealthConfig struct {
	Addr string `json:"addr"`
}

// New creates a configuration struct with default settings.
func New() *Config {
	return &Config{
		Listen: ListenConfig{Addr: ":8443", MaxMissedPings: 2},
		Health: HealthConfig{Addr: ":8146"},
	}
}

func (l ListenConfig) validate() error {
	if l.Addr == "" {
		return fmt.Errorf("listen addr must not be empty")
	}
	if l.CertFile == "" || l.KeyFile == "" || l.ClientCAFile == "" {
		return fmt.Errorf("listen cert_file, key_file, and client_ca_file are all required for mTLS")
	}
	if l.MaxMissedPings <= 0 {
		return fmt.Errorf("max_missed_pings must be a positive number")
	}
	return nil
}

func (t TSDBConfig) validate() error {
	if t.Addr == "" {
		return fmt.Errorf("tsdb addr must not be empty")
	}
	if t.Database == "" {
		return fmt.Errorf("tsdb database name must not be empty")
	}
	return nil
}

func (h HealthConfig) validate() error {
	if h.Addr == "" {
		return fmt.Errorf("health addr must not be empty")
	}
	return nil
}

// Validate checks all config sections.
func (c *Config) Validate() error {
	for _, section := range []validator{c.Listen, c.TSDB, c.Health} {
		if err := section.validate(); err != nil {
			return err
		}
	}
	return nil
}

// TLSConfig builds the mTLS server configuration the collector listens
// with, requiring and verifying a client certificate signed by the
// configured CA.
func (l ListenConfig) TLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(l.CertFile, l.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	caPEM, err := os.ReadFile(l.ClientCAFile)
	if err != nil {
		return nil, fmt.Errorf("read client ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates parsed from %s", l.ClientCAFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
