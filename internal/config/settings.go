package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"asnwall/internal/cidr"
	"asnwall/internal/merge"
	"asnwall/internal/support"
)

type Config struct {
	ASNList     string `json:"asn_list"`
	OutputDir   string `json:"output_dir"`
	LogLevel    string `json:"log_level"`
	BareAddress string `json:"bare_address"`
	Index       string `json:"index"`
	Concurrency uint32 `json:"concurrency"`
	WritePerASN bool   `json:"write_per_asn"`

	FetchTimeout Timer `json:"fetch_timeout"`

	UFW UFWConfig `json:"ufw"`

	Sources struct {
		BGPView struct {
			Enabled bool   `json:"enabled"`
			BaseURL string `json:"base_url"`
			Mode    string `json:"mode"`
		} `json:"bgpview"`

		Table struct {
			Enabled      bool   `json:"enabled"`
			Path         string `json:"path"`
			PrefixColumn int    `json:"prefix_column"`
			ASNColumn    int    `json:"asn_column"`
		} `json:"table"`

		Snapshot struct {
			Enabled  bool   `json:"enabled"`
			Location string `json:"location"`
		} `json:"snapshot"`

		GeoLite struct {
			Enabled bool   `json:"enabled"`
			Path    string `json:"path"`
		} `json:"geolite"`
	} `json:"sources"`

	Cache struct {
		Enabled  bool   `json:"enabled"`
		RedisURL string `json:"redis_url"`
		TTL      Timer  `json:"ttl"`
	} `json:"cache"`

	Audit struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path"`
	} `json:"audit"`

	GeoLite struct {
		LicenseKey  string `json:"license_key"`
		DownloadURL string `json:"download_url"`
	} `json:"geolite"`
}

type UFWConfig struct {
	Proto string   `json:"proto"`
	Ports []uint16 `json:"ports"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const DefaultSettingsPath = "data/settings.json"

//go:embed default_settings.json
var defaultConfig []byte

// Override adjusts a loaded configuration before it is validated.
type Override func(*Config)

// Default returns the embedded default configuration.
func Default() (Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse embedded defaults: %w", err)
	}
	return cfg, nil
}

// ReadSettings loads path (creating it from the embedded defaults when it
// does not exist), applies environment overrides and then overrides, and
// validates the result.
func ReadSettings(path string, overrides ...Override) (Config, error) {
	if path == "" {
		path = DefaultSettingsPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}

		log.Warn("Settings file not found, creating with default configuration", "path", path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return Config{}, fmt.Errorf("config: create settings dir: %w", err)
		}
		if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
			return Config{}, fmt.Errorf("config: write default settings: %w", err)
		}
		data = defaultConfig
	}

	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	for _, override := range overrides {
		override(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	log.Debug("Settings file loaded successfully", "path", path)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.ASNList = support.GetEnv("ASNWALL_ASN_LIST", cfg.ASNList)
	cfg.OutputDir = support.GetEnv("ASNWALL_OUTPUT_DIR", cfg.OutputDir)
	cfg.LogLevel = support.GetEnv("ASNWALL_LOG_LEVEL", cfg.LogLevel)
	if url := support.GetEnv("REDIS_URL", ""); url != "" {
		cfg.Cache.RedisURL = url
	}
	cfg.GeoLite.LicenseKey = support.GetEnv("MAXMIND_LICENSE_KEY", cfg.GeoLite.LicenseKey)
}

// Validate rejects unknown enum spellings and unusable values.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ASNList) == "" {
		errs = append(errs, errors.New("config: asn_list is empty"))
	}
	if _, err := cidr.ParseBarePolicy(c.BareAddress); err != nil {
		errs = append(errs, err)
	}
	if _, err := merge.ParseIndexKind(c.Index); err != nil {
		errs = append(errs, err)
	}
	if _, err := log.ParseLevel(c.LogLevelOrDefault()); err != nil {
		errs = append(errs, fmt.Errorf("config: log_level: %w", err))
	}
	if len(c.UFW.Ports) == 0 {
		errs = append(errs, errors.New("config: ufw.ports is empty"))
	}
	for _, p := range c.UFW.Ports {
		if p == 0 {
			errs = append(errs, errors.New("config: ufw.ports contains 0"))
			break
		}
	}
	switch strings.ToLower(c.Sources.BGPView.Mode) {
	case "", "parent", "exact":
	default:
		errs = append(errs, fmt.Errorf("config: sources.bgpview.mode %q is not parent or exact", c.Sources.BGPView.Mode))
	}
	if c.Sources.Table.Enabled && c.Sources.Table.Path == "" {
		errs = append(errs, errors.New("config: sources.table.path is empty"))
	}
	if c.Sources.Table.PrefixColumn < 0 || c.Sources.Table.ASNColumn < 0 {
		errs = append(errs, errors.New("config: sources.table columns must not be negative"))
	}
	if c.Sources.Snapshot.Enabled && c.Sources.Snapshot.Location == "" {
		errs = append(errs, errors.New("config: sources.snapshot.location is empty"))
	}
	if c.Sources.GeoLite.Enabled && c.Sources.GeoLite.Path == "" {
		errs = append(errs, errors.New("config: sources.geolite.path is empty"))
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, errors.New("config: audit.path is empty"))
	}
	if !c.anySourceEnabled() {
		errs = append(errs, errors.New("config: no prefix source is enabled"))
	}

	return errors.Join(errs...)
}

func (c Config) anySourceEnabled() bool {
	s := c.Sources
	return s.BGPView.Enabled || s.Table.Enabled || s.Snapshot.Enabled || s.GeoLite.Enabled
}

func (c Config) LogLevelOrDefault() string {
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

func (c Config) BarePolicy() cidr.BareAddressPolicy {
	p, _ := cidr.ParseBarePolicy(c.BareAddress)
	return p
}

func (c Config) IndexKind() merge.IndexKind {
	k, _ := merge.ParseIndexKind(c.Index)
	return k
}
