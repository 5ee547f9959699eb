// Package config loads CLI configuration: a .starkverify.yaml
// discovered by walking up from the working directory, overlaid with
// STARKVERIFY_* environment variables. Command flags override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is discovered by walking up from the working
// directory, so project-local settings win over home-directory ones.
const ConfigFileName = ".starkverify.yaml"

const envPrefix = "STARKVERIFY"

// Networks the service runs on and their API endpoints.
var networkEndpoints = map[string]string{
	"mainnet": "https://api.voyager.online/beta",
	"sepolia": "https://sepolia-api.voyager.online/beta",
	"dev":     "https://dev-api.voyager.online/beta",
}

// Contract is one batch entry from the config file.
type Contract struct {
	ClassHash    string `yaml:"class-hash"`
	ContractName string `yaml:"contract-name"`
	Package      string `yaml:"package,omitempty"`
}

// Config is the merged CLI configuration.
type Config struct {
	Network        string        `yaml:"network"`
	URL            string        `yaml:"url,omitempty"`
	License        string        `yaml:"license,omitempty"`
	Watch          bool          `yaml:"watch"`
	TestFiles      bool          `yaml:"test-files"`
	LockFile       bool          `yaml:"lock-file"`
	Verbose        bool          `yaml:"verbose"`
	Format         string        `yaml:"format"`
	FailFast       bool          `yaml:"fail-fast"`
	BatchDelay     time.Duration `yaml:"batch-delay"`
	DefaultPackage string        `yaml:"default-package,omitempty"`
	Excludes       []string      `yaml:"excludes,omitempty"`

	// Contracts switches verify into batch mode when non-empty.
	Contracts []Contract `yaml:"contracts,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Network:    "sepolia",
		Format:     "text",
		BatchDelay: time.Second,
	}
}

// Load builds the effective configuration for a working directory:
// defaults, then the nearest config file walking upward, then
// environment variables. A .env file in the working directory is
// loaded first so both sources see it.
func Load(dir string) (*Config, error) {
	cfg := Default()

	// Best-effort; a missing .env is the normal case.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	path, found, err := findConfigFile(dir)
	if err != nil {
		return nil, err
	}
	if found {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// findConfigFile walks up from dir to the filesystem root looking for
// the config file.
func findConfigFile(dir string) (string, bool, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}

	for {
		candidate := filepath.Join(current, ConfigFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false, nil
		}
		current = parent
	}
}

// applyEnv overlays STARKVERIFY_* variables onto the config.
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if s := v.GetString("network"); s != "" {
		cfg.Network = s
	}
	if s := v.GetString("url"); s != "" {
		cfg.URL = s
	}
	if s := v.GetString("license"); s != "" {
		cfg.License = s
	}
	if s := v.GetString("format"); s != "" {
		cfg.Format = s
	}
	if s := v.GetString("default_package"); s != "" {
		cfg.DefaultPackage = s
	}
	if s := v.GetString("batch_delay"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.BatchDelay = d
		}
	}
	for key, target := range map[string]*bool{
		"watch":      &cfg.Watch,
		"test_files": &cfg.TestFiles,
		"lock_file":  &cfg.LockFile,
		"verbose":    &cfg.Verbose,
		"fail_fast":  &cfg.FailFast,
	} {
		if s := v.GetString(key); s != "" {
			if b, err := strconv.ParseBool(s); err == nil {
				*target = b
			}
		}
	}
}

// ResolveAPIURL resolves the service endpoint before any network
// call. An explicit URL wins; otherwise the named network must be
// known. There is no placeholder default.
func (c *Config) ResolveAPIURL() (string, error) {
	if u := strings.TrimSpace(c.URL); u != "" {
		return u, nil
	}

	network := strings.ToLower(strings.TrimSpace(c.Network))
	if network == "" {
		return "", fmt.Errorf("no API endpoint configured: set --network or --url")
	}
	endpoint, ok := networkEndpoints[network]
	if !ok {
		known := make([]string, 0, len(networkEndpoints))
		for name := range networkEndpoints {
			known = append(known, name)
		}
		sort.Strings(known)
		return "", fmt.Errorf("unknown network %q (known networks: %s)", c.Network, strings.Join(known, ", "))
	}
	return endpoint, nil
}
