package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Package config provides configuration management for the Cutplane editor service.

// Config holds all configuration data for the service.
type Config struct {
	ListenAddr string `json:"listen_addr"`

	// Collaborator endpoints. CropServiceURL also serves split summaries
	// and the recent-splits fallback.
	CropServiceURL string `json:"crop_service_url"`
	SignerURL      string `json:"signer_url"`
	DetectorURL    string `json:"detector_url"`

	// SignedURLTTL is the soft expiry applied to preview URLs.
	SignedURLTTL time.Duration `json:"signed_url_ttl"`

	// RequestTimeout bounds a single collaborator call. Signing and
	// listing failures fall into the per-asset skip path.
	RequestTimeout time.Duration `json:"request_timeout"`

	// RequestsPerSecond throttles outbound collaborator calls.
	RequestsPerSecond float64 `json:"requests_per_second"`

	// Layout constraints for new sessions.
	MaxDisplayHeight float64 `json:"max_display_height"`
	ContainerWidth   float64 `json:"container_width"`
}

var (
	instance *Config
	once     sync.Once
)

// GetConfig returns the singleton instance of Config.
func GetConfig() *Config {
	once.Do(func() {
		instance = &Config{}
		if err := instance.loadFromFile(GetFilename()); err != nil {
			// Missing file is the common first-run case; fall back to defaults.
			instance.setDefaultValues()
		}
		instance.applyMinimums()
	})
	return instance
}

// ResetForTesting clears the singleton so tests can load fresh defaults.
func ResetForTesting() {
	instance = nil
	once = sync.Once{}
}

// GetFilename returns the path to the user's config file.
func GetFilename() string {
	return filepath.Join(GetPath(), "config.json")
}

// GetPath returns the path to the user's config directory.
func GetPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Error getting user home directory: %v", err)
	}
	return filepath.Join(homeDir, "."+strings.ToLower(ServiceName))
}

// loadFromFile loads configuration from the specified file.
func (c *Config) loadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

// setDefaultValues sets default values for the configuration.
func (c *Config) setDefaultValues() {
	c.ListenAddr = "127.0.0.1:49521"
	c.CropServiceURL = "http://127.0.0.1:49522"
	c.SignerURL = "http://127.0.0.1:49522"
	c.DetectorURL = "http://127.0.0.1:49522"
	c.SignedURLTTL = 5 * time.Minute
	c.RequestTimeout = 10 * time.Second
	c.RequestsPerSecond = 10
	c.MaxDisplayHeight = 1600
	c.ContainerWidth = 800
}

// applyMinimums backfills zero values so a hand-edited config file cannot
// disable expiry or timeouts entirely.
func (c *Config) applyMinimums() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:49521"
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = 5 * time.Minute
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.MaxDisplayHeight <= 0 {
		c.MaxDisplayHeight = 1600
	}
	if c.ContainerWidth <= 0 {
		c.ContainerWidth = 800
	}
}

// Save saves the current configuration to the user's config file.
func (c *Config) Save() error {
	cfgFile := GetFilename()
	if err := os.MkdirAll(filepath.Dir(cfgFile), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cfgFile, data, 0644)
}
