// Package config decodes a host binary's YAML configuration file into
// the fields nosqldb.Config needs (SPEC_FULL.md AMBIENT STACK
// "Configuration"). Adapted from the teacher's pkg/config/config.go:
// same os.ReadFile + gopkg.in/yaml.v3 Load pattern and env-override
// layering, retargeted from server listener/storage settings to client
// connection settings.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape a host binary (cmd/nosqlctl's --config
// flag) loads before building a nosqldb.Config.
// It mirrors the teacher's nested yaml-tagged struct style rather than a
// flat field list.
type FileConfig struct {
	Endpoint string `yaml:"endpoint"`
	Timeouts struct {
		DefaultMillis      int `yaml:"default_millis"`
		SecurityInfoMillis int `yaml:"security_info_millis"`
		MaxRequestMillis   int `yaml:"max_request_millis"`
	} `yaml:"timeouts"`
	Protocol struct {
		StartVersion int    `yaml:"start_version"`
		Transport    string `yaml:"transport"` // "nethttp" or "fasthttp"
	} `yaml:"protocol"`
	Namespace   string `yaml:"namespace"`
	Compartment string `yaml:"compartment"`
	RateLimiter struct {
		Enabled      bool    `yaml:"enabled"`
		Percentage   float64 `yaml:"percentage"`
		BurstSeconds float64 `yaml:"burst_seconds"`
	} `yaml:"rate_limiter"`
	Auth struct {
		Mode            string `yaml:"mode"` // "none" or "shared_secret"
		KeyID           string `yaml:"key_id"`
		SecretEnvVar    string `yaml:"secret_env_var"`
		DurationSeconds int    `yaml:"duration_seconds"`
	} `yaml:"auth"`
}

// Load reads and parses path, matching the teacher's Load(path)
// (*Config, error) signature and not-found handling.
func Load(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var fc FileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// EnvEndpointVar overrides FileConfig.Endpoint, mirroring the teacher's
// LoadEnvOverrides layering (env wins over file).
const EnvEndpointVar = "PROGRESSDB_NOSQL_ENDPOINT"

// ApplyEnvOverrides layers environment variables over fc in place,
// reporting whether any override was applied.
func ApplyEnvOverrides(fc *FileConfig) bool {
	used := false
	if v := strings.TrimSpace(os.Getenv(EnvEndpointVar)); v != "" {
		fc.Endpoint = v
		used = true
	}
	return used
}

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// DefaultTimeout, SecurityInfoTimeout and MaxRequestTimeout resolve the
// file's integer millisecond fields into
// time.Duration, returning 0 (meaning "use the driver's own default")
// when unset.
func (fc *FileConfig) DefaultTimeout() time.Duration      { return millis(fc.Timeouts.DefaultMillis) }
func (fc *FileConfig) SecurityInfoTimeout() time.Duration { return millis(fc.Timeouts.SecurityInfoMillis) }
func (fc *FileConfig) MaxRequestTimeout() time.Duration   { return millis(fc.Timeouts.MaxRequestMillis) }

// ParseStartVersion validates the configured protocol start version,
// defaulting to 4 (V4/NSON) when unset.
func (fc *FileConfig) ParseStartVersion() (int, error) {
	v := fc.Protocol.StartVersion
	if v == 0 {
		return 4, nil
	}
	if v < 2 || v > 4 {
		return 0, fmt.Errorf("config: protocol.start_version %d out of range [2,4]", v)
	}
	return v, nil
}

// ResolveSecret reads the shared-secret auth mode's secret from the
// environment variable the file names, refusing to accept one inline
// (spec §4.9 providers should not bake credentials into a checked-in
// file).
func (fc *FileConfig) ResolveSecret() (string, error) {
	if fc.Auth.SecretEnvVar == "" {
		return "", fmt.Errorf("config: auth.secret_env_var not set for mode %q", fc.Auth.Mode)
	}
	v := os.Getenv(fc.Auth.SecretEnvVar)
	if v == "" {
		return "", fmt.Errorf("config: environment variable %s is empty", fc.Auth.SecretEnvVar)
	}
	return v, nil
}
