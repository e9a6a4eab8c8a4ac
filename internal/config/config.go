// Package config loads and defaults-applies the hierarchical configuration
// tree the rest of the program runs from. Configuration is loaded once, at
// process start, into a typed struct tree — never consulted as a bag of
// strings at first use.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable that overrides the default
// configuration file location.
const EnvPath = "APP_CONFIG_PATH"

// ConfigError is returned for any problem encountered while loading or
// validating configuration. It is always fatal at load time; nothing
// downstream is expected to run against a config that failed to load.
type ConfigError struct {
	Path   string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s: field %s: %s", e.Path, e.Field, e.Reason)
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
}

// Retry is the ACK retry policy under comm.retry.
type Retry struct {
	Enabled      *bool `yaml:"enabled"`
	AckTimeoutMs int   `yaml:"ack_timeout_ms"`
	MaxAttempts  int   `yaml:"max_attempts"`
	BackoffMs    int   `yaml:"backoff_ms"`
}

// Comm holds the session/protocol-timing configuration.
type Comm struct {
	EnableHeartbeat          *bool  `yaml:"enable_heartbeat"`
	HeartbeatIntervalSeconds int    `yaml:"heartbeat_interval_seconds"`
	OfflineFailureThreshold  int    `yaml:"offline_failure_threshold"`
	DuplicateAckMode         string `yaml:"duplicate_ack_mode"`
	BytesPerFrame            int    `yaml:"bytes_per_frame"`
	AckTimeoutMs             int    `yaml:"ack_timeout_ms"`
	CmdTimeoutMs             int    `yaml:"cmd_timeout_ms"`
	InterFrameGapMs          int    `yaml:"inter_frame_gap_ms"`
	Retry                    Retry  `yaml:"retry"`
}

// Dispatcher holds dispatcher-level overrides.
type Dispatcher struct {
	ColorOrder []string `yaml:"color_order"`
}

// Grouping holds pipeline directory and pairing configuration.
type Grouping struct {
	WatchDir     string   `yaml:"watch_dir"`
	WorkDir      string   `yaml:"work_dir"`
	DoneDir      string   `yaml:"done_dir"`
	ErrorDir     string   `yaml:"error_dir"`
	ColorOrder   []string `yaml:"color_order"`
	NameTagRegex string   `yaml:"name_tag_regex"`
}

// AtomicPairSuffixes names the staging suffixes ingress reserves.
type AtomicPairSuffixes struct {
	PartSuffix string `yaml:"part_suffix"`
	LockSuffix string `yaml:"lock_suffix"`
}

// Ingress holds file-readiness and staging configuration.
type Ingress struct {
	ReadyQuietMs       int                `yaml:"ready_quiet_ms"`
	AtomicPairEnabled  *bool              `yaml:"atomic_pair_enabled"`
	AllowedExtensions  []string           `yaml:"allowed_extensions"`
	AtomicPairSuffixes AtomicPairSuffixes `yaml:"atomic_pair_suffixes"`
}

// Parsing holds the job-row regex and filtering configuration.
type Parsing struct {
	RowPattern         string   `yaml:"row_pattern"`
	AltRowPattern      string   `yaml:"alt_row_pattern"`
	HeaderKeywords     []string `yaml:"header_keywords"`
	AllowedCodePrefix  []string `yaml:"allowed_code_prefix"`
	DeduplicateIndices bool     `yaml:"deduplicate_indices"`
}

// SPGroup is one partition of the SP-id address space.
type SPGroup struct {
	ID         int `yaml:"id"`
	StartSP    int `yaml:"start_sp"`
	EndSP      int `yaml:"end_sp"`
	ColsPerRow int `yaml:"cols_per_row"`
}

// SPMapping holds the LED geometry configuration.
type SPMapping struct {
	BlockSize        int       `yaml:"block_size"`
	LedsPerSlot      int       `yaml:"leds_per_slot"`
	StartCorner      string    `yaml:"start_corner"`
	RowDirectionEven string    `yaml:"row_direction_even"`
	RowDirectionOdd  string    `yaml:"row_direction_odd"`
	Groups           []SPGroup `yaml:"groups"`
}

// Display holds the blink-attribute configuration.
type Display struct {
	BlinkEnabled          *bool `yaml:"blink_enabled"`
	BlinkThresholdPercent int   `yaml:"blink_threshold_percent"`
}

// Serial holds transport port configuration.
type Serial struct {
	Ports []string `yaml:"ports"`
	Baud  int      `yaml:"baud"`
}

// HexCapture controls raw TX/RX hex-dump logging.
type HexCapture struct {
	Capture  bool `yaml:"capture"`
	Incoming bool `yaml:"incoming"`
	Outgoing bool `yaml:"outgoing"`
	MaxBytes int  `yaml:"max_bytes"`
}

// Rotate controls size-based log rotation.
type Rotate struct {
	Enabled     *bool `yaml:"enabled"`
	MaxBytes    int   `yaml:"max_bytes"`
	BackupCount int   `yaml:"backup_count"`
}

// Logging holds the ambient logging configuration.
type Logging struct {
	Level              string     `yaml:"level"`
	File               string     `yaml:"file"`
	Format             string     `yaml:"format"`
	DeviceInfoFile     string     `yaml:"device_info_file"`
	DeviceInfoFormat   string     `yaml:"device_info_format"`
	Rotate             Rotate     `yaml:"rotate"`
	Hex                HexCapture `yaml:"hex"`
}

// Printing holds the label-printer stub configuration.
type Printing struct {
	Enabled         bool   `yaml:"enabled"`
	Columns         int    `yaml:"columns"`
	ColumnSeparator string `yaml:"column_separator"`
}

// Config is the full, defaults-applied configuration tree.
type Config struct {
	Comm       Comm       `yaml:"comm"`
	Dispatcher Dispatcher `yaml:"dispatcher"`
	Grouping   Grouping   `yaml:"grouping"`
	Ingress    Ingress    `yaml:"ingress"`
	Parsing    Parsing    `yaml:"parsing"`
	SPMapping  SPMapping  `yaml:"sp_mapping"`
	Display    Display    `yaml:"display"`
	Serial     Serial     `yaml:"serial"`
	Logging    Logging    `yaml:"logging"`
	Printing   Printing   `yaml:"printing"`
}

// Load reads the YAML configuration file at path (or, if path is empty, at
// the location named by APP_CONFIG_PATH, falling back to defaultPath),
// applies defaults, and validates required invariants.
func Load(path, defaultPath string) (*Config, error) {
	resolved := path
	if resolved == "" {
		if env := os.Getenv(EnvPath); env != "" {
			resolved = env
		} else {
			resolved = defaultPath
		}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, &ConfigError{Path: resolved, Reason: err.Error()}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Path: resolved, Reason: fmt.Sprintf("parse: %v", err)}
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	for _, g := range cfg.SPMapping.Groups {
		if g.StartSP > g.EndSP {
			return &ConfigError{Field: "sp_mapping.groups", Reason: fmt.Sprintf("group %d: start_sp > end_sp", g.ID)}
		}
		if g.ColsPerRow < 1 {
			return &ConfigError{Field: "sp_mapping.groups", Reason: fmt.Sprintf("group %d: cols_per_row < 1", g.ID)}
		}
	}
	if cfg.SPMapping.BlockSize <= 0 {
		return &ConfigError{Field: "sp_mapping.block_size", Reason: "must be positive"}
	}
	return nil
}
