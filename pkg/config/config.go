// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/platform-engineering-labs/formae/pkg/model"
	"github.com/spf13/viper"
)

// DefaultRegion is the region profile looked up in cloudstack.ini when no
// explicit credentials are given.
const DefaultRegion = "cloudstack"

// Config holds CloudStack management API configuration.
// Note: Only the endpoint, HTTP method, timeout and region profile are stored
// in the target config. Credentials (APIKey, APISecret) are always read from
// environment variables or the region profile to avoid storing secrets in the
// database.
type Config struct {
	// Stored in target config (non-sensitive)
	APIURL        string `json:"apiURL"`        // https://cloud.example.com/client/api
	APIHTTPMethod string `json:"apiHTTPMethod"` // "get" (default) or "post"
	APITimeout    int    `json:"apiTimeout"`    // per-call transport timeout in seconds
	APIRegion     string `json:"apiRegion"`     // region profile in cloudstack.ini
	VerifySSL     *bool  `json:"verifySSL"`     // default true
	DryRun        bool   `json:"dryRun"`        // check mode: diff but never mutate

	// Read from environment variables or the region profile only (never stored)
	APIKey    string `json:"-"` // From CLOUDSTACK_KEY
	APISecret string `json:"-"` // From CLOUDSTACK_SECRET
}

// FromTarget extracts CloudStack configuration from a Target
func FromTarget(target *model.Target) (*Config, error) {
	if target == nil {
		return nil, fmt.Errorf("target is nil")
	}
	return FromTargetConfig(target.Config)
}

// FromTargetConfig extracts CloudStack configuration from a TargetConfig JSON.
// Resolution order per field: target config, CLOUDSTACK_* environment
// variables, then the named region profile in cloudstack.ini (the fallback
// chain CloudStack CLI tooling uses).
func FromTargetConfig(targetConfig json.RawMessage) (*Config, error) {
	var cfg Config

	if len(targetConfig) > 0 {
		if err := json.Unmarshal(targetConfig, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target config: %w", err)
		}
	}

	if cfg.APIURL == "" {
		cfg.APIURL = os.Getenv("CLOUDSTACK_ENDPOINT")
	}
	cfg.APIKey = os.Getenv("CLOUDSTACK_KEY")
	cfg.APISecret = os.Getenv("CLOUDSTACK_SECRET")
	if cfg.APIHTTPMethod == "" {
		cfg.APIHTTPMethod = os.Getenv("CLOUDSTACK_METHOD")
	}
	if cfg.APITimeout == 0 {
		if v := os.Getenv("CLOUDSTACK_TIMEOUT"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.APITimeout = n
			}
		}
	}
	if cfg.APIRegion == "" {
		cfg.APIRegion = os.Getenv("CLOUDSTACK_REGION")
	}
	if cfg.APIRegion == "" {
		cfg.APIRegion = DefaultRegion
	}

	// Region profile is the last resort for endpoint and credentials.
	if cfg.APIURL == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		if err := cfg.loadRegionProfile(); err != nil {
			return nil, err
		}
	}

	if cfg.APIHTTPMethod == "" {
		cfg.APIHTTPMethod = "get"
	}
	if cfg.APIHTTPMethod != "get" && cfg.APIHTTPMethod != "post" {
		return nil, fmt.Errorf("apiHTTPMethod must be 'get' or 'post', got %q", cfg.APIHTTPMethod)
	}
	if cfg.APITimeout <= 0 {
		cfg.APITimeout = 10
	}

	if cfg.APIURL == "" {
		return nil, fmt.Errorf("apiURL is required (set CLOUDSTACK_ENDPOINT, provide it in the target config or in a cloudstack.ini region profile)")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("CLOUDSTACK_KEY environment variable is required")
	}
	if cfg.APISecret == "" {
		return nil, fmt.Errorf("CLOUDSTACK_SECRET environment variable is required")
	}

	return &cfg, nil
}

// loadRegionProfile fills missing endpoint/credentials from the [region]
// section of cloudstack.ini, searched in the working directory and the user's
// home directory.
func (c *Config) loadRegionProfile() error {
	v := viper.New()
	v.SetConfigName("cloudstack")
	v.SetConfigType("ini")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No profile file at all is fine as long as the caller provided
			// everything another way; validation happens in FromTargetConfig.
			return nil
		}
		return fmt.Errorf("failed to read cloudstack.ini: %w", err)
	}

	section := v.Sub(c.APIRegion)
	if section == nil {
		return fmt.Errorf("region profile %q not found in cloudstack.ini", c.APIRegion)
	}

	if c.APIURL == "" {
		c.APIURL = section.GetString("endpoint")
	}
	if c.APIKey == "" {
		c.APIKey = section.GetString("key")
	}
	if c.APISecret == "" {
		c.APISecret = section.GetString("secret")
	}
	if c.APIHTTPMethod == "" {
		c.APIHTTPMethod = section.GetString("method")
	}
	if c.APITimeout == 0 {
		c.APITimeout = section.GetInt("timeout")
	}
	return nil
}

// ShouldVerifySSL reports whether TLS certificates must be verified.
func (c *Config) ShouldVerifySSL() bool {
	return c.VerifySSL == nil || *c.VerifySSL
}

// Timeout returns the per-call transport timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.APITimeout) * time.Second
}
