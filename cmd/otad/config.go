package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/otakitio/otakit/partition/filebank"
	"github.com/otakitio/otakit/record"
	"github.com/otakitio/otakit/updater"
)

// config is the daemon's JSON configuration file. Flags override any
// field set here.
type config struct {
	ManifestURL          string `json:"manifest_url"`
	CurrentVersion       string `json:"current_version"`
	CheckIntervalSeconds int    `json:"check_interval_seconds"`
	TimeoutSeconds       int    `json:"timeout_seconds"`
	TLSVerify            bool   `json:"tls_verify"`
	VersionCompare       string `json:"version_compare"`
	RecordPath           string `json:"record_path"`
	BankDir              string `json:"bank_dir"`
	BankSize             int64  `json:"bank_size"`
}

func defaultConfig() *config {
	return &config{
		CurrentVersion:       "0.0.0",
		CheckIntervalSeconds: 3600,
		RecordPath:           "/var/lib/otad/nvs.bin",
		BankDir:              "/var/lib/otad/banks",
		BankSize:             filebank.DefaultBankSize,
	}
}

func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

func (c *config) applyFlags() {
	if manifestURL != "" {
		c.ManifestURL = manifestURL
	}
	if currentVersion != "" {
		c.CurrentVersion = currentVersion
	}
	if checkInterval >= 0 {
		c.CheckIntervalSeconds = checkInterval
	}
	if tlsVerify {
		c.TLSVerify = true
	}
}

func (c *config) updaterConfig() updater.Config {
	compare := updater.CompareOrdinal
	if c.VersionCompare == string(updater.CompareSemantic) {
		compare = updater.CompareSemantic
	}
	return updater.Config{
		ManifestURL:    c.ManifestURL,
		CurrentVersion: c.CurrentVersion,
		CheckInterval:  time.Duration(c.CheckIntervalSeconds) * time.Second,
		Timeout:        time.Duration(c.TimeoutSeconds) * time.Second,
		TLSVerify:      c.TLSVerify,
		VersionCompare: compare,
	}
}

func buildUpdater(restart *processRestarter) (*updater.Updater, *config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.applyFlags()

	if cfg.ManifestURL == "" {
		return nil, nil, fmt.Errorf("manifest URL not configured")
	}

	device, err := filebank.New(filebank.Config{Dir: cfg.BankDir, BankSize: cfg.BankSize})
	if err != nil {
		return nil, nil, fmt.Errorf("open firmware banks: %w", err)
	}

	storage, err := record.NewFileStorage(cfg.RecordPath, record.RegionSize)
	if err != nil {
		return nil, nil, fmt.Errorf("open record storage: %w", err)
	}

	return updater.New(cfg.updaterConfig(), device, storage, restart), cfg, nil
}
