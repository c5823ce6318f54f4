// Package config is for parsing honeysensor's configuration.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// validator is a contract to show if a concrete section is configured
// according to its predefined value range.
type validator interface {
	validate() error
}

// Config stores honeysensor's configuration.
type Config struct {
	Interface InterfaceConfig `json:"interface"`
	Model     ModelConfig     `json:"model"`
	Anomaly   AnomalyConfig   `json:"anomaly"`
	Virtual   VirtualConfig   `json:"virtual"`
	Collector CollectorConfig `json:"collector"`
	Health    HealthConfig    `json:"health"`
}

// InterfaceConfig selects the capture interface and its kernel buffer.
type InterfaceConfig struct {
	Name           string `json:"name"`
	RingBufferSize int    `json:"ring_buffer_size"`
}

// ModelConfig points at the on-disk ONNX artifacts and their scaler
// descriptors.
type ModelConfig struct {
	SharedLibraryPath string `json:"shared_library_path"`

	AutoencoderPath   string `json:"autoencoder_path"`
	AutoencoderScaler string `json:"autoencoder_scaler"`

	ClassifierPath   string `json:"classifier_path"`
	ClassifierScaler string `json:"classifier_scaler"`
}

// AnomalyConfig carries the Anomaly Engine's policy knobs.
type AnomalyConfig struct {
	MAEThreshold            float64 `json:"mae_threshold"`
	MediumPriorityThreshold int     `json:"medium_priority_threshold"`
	HighPriorityThreshold   int     `json:"high_priority_threshold"`
	EvictionInterval        time.Duration `json:"eviction_interval"`
	EvictionMaxAge          time.Duration `json:"eviction_max_age"`
}

// VirtualConfig is the config-driven honeypot identity pool.
type VirtualConfig struct {
	Count        int `json:"count"`
	IPv4RangeMin int `json:"ipv4_range_min"`
	IPv4RangeMax int `json:"ipv4_range_max"`
}

// CollectorConfig points the Alert Transport at the collector and its
// mTLS material.
type CollectorConfig struct {
	URL            string        `json:"url"`
	CertFile       string        `json:"cert_file"`
	KeyFile        string        `json:"key_file"`
	CAFile         string        `json:"ca_file"`
	RingBufferSize int           `json:"ring_buffer_size"`
	ReconnectDelay time.Duration `json:"reconnect_delay"`
	DialTimeout    time.Duration `json:"dial_timeout"`
}

// HealthConfig configures the shared healthapi surface.
type HealthConfig struct {
	Addr string `json:"addr"`
}

// New creates a configuration struct with default settings.
func New() *Config {
	return &Config{
		Interface: InterfaceConfig{RingBufferSize: 0},
		Anomaly: AnomalyConfig{
			MAEThreshold:            0.15,
			MediumPriorityThreshold: 5,
			HighPriorityThreshold:   10,
			EvictionInterval:        30 * time.Second,
			EvictionMaxAge:          300 * time.Second,
		},
		Virtual: VirtualConfig{
			Count:        10,
			IPv4RangeMin: 100,
			IPv4RangeMax: 253,
		},
		Collector: CollectorConfig{
			RingBufferSize: 50,
			ReconnectDelay: 5 * time.Second,
			DialTimeout:    10 * time.Second,
		},
		Health: HealthConfig{Addr: ":8145"},
	}
}

func (i InterfaceConfig) validate() error {
	if i.Name == "" {
		return fmt.Errorf("no capture interface specified")
	}
	return nil
}

func (m ModelConfig) validate() error {
	if m.AutoencoderPath == "" || m.ClassifierPath == "" {
		return fmt.Errorf("autoencoder and classifier model paths must both be set")
	}
	if m.AutoencoderScaler == "" || m.ClassifierScaler == "" {
		return fmt.Errorf("autoencoder and classifier scaler descriptor paths must both be set")
	}
	return nil
}

func (a AnomalyConfig) validate() error {
	if a.MAEThreshold <= 0 {
		return fmt.Errorf("mae threshold must be a positive number")
	}
	if a.MediumPriorityThreshold <= 0 || a.HighPriorityThreshold <= a.MediumPriorityThreshold {
		return fmt.Errorf("high priority threshold must exceed medium priority threshold, which must be positive")
	}
	return nil
}

func (v VirtualConfig) validate() error {
	if v.Count <= 0 {
		return fmt.Errorf("virtual host count must be a positive number")
	}
	if v.IPv4RangeMax <= v.IPv4RangeMin {
		return fmt.Errorf("virtual.ipv4_range_max must exceed virtual.ipv4_range_min")
	}
	return nil
}

func (c CollectorConfig) validate() error {
	if c.URL == "" {
		return fmt.Errorf("collector url must not be empty")
	}
	if c.CertFile == "" || c.KeyFile == "" || c.CAFile == "" {
		return fmt.Errorf("collector cert_file, key_file, and ca_file are all required for mTLS")
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
	for _, section := range []validator{
		c.Interface,
		c.Model,
		c.Anomaly,
		c.Virtual,
		c.Collector,
		c.Health,
	} {
		if err := section.validate(); err != nil {
			return err
		}
	}
	return nil
}

// TLSConfig builds the mTLS client configuration the Alert Transport dials
// the collector with, loading the sensor's client certificate and the CA
// that signed the collector's server certificate.
func (c CollectorConfig) TLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}

	caPEM, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates parsed from %s", c.CAFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
