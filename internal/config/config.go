// Package config loads proxy configuration from an optional YAML file,
// environment variables, and CLI flags, in that precedence order (each
// later source overrides the former, so an explicit flag always wins).
// Load parses the file and fills in defaults; Validate then rejects
// missing required fields.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete set of settings needed to run the proxy.
type Config struct {
	PrinterIP   string `yaml:"printer_ip"`
	AccessCode  string `yaml:"access_code"`
	BindAddress string `yaml:"bind_address"`

	// CameraType overrides detect.Probe's result ("chamber" or "rtsp").
	// Empty means auto-detect.
	CameraType string `yaml:"camera_type"`

	// EnableFTP controls whether the FTP passthrough runs alongside
	// whichever camera proxy was selected.
	EnableFTP bool `yaml:"enable_ftp"`

	FTP FTPConfig `yaml:"ftp"`

	RTSP RTSPConfig `yaml:"rtsp"`

	Backoff BackoffConfig `yaml:"backoff"`

	Logging LoggingConfig `yaml:"logging"`

	// StrictChamberMagic enables rejecting Chamber frames whose reserved
	// magic bytes do not match the expected constant, instead of merely
	// logging the mismatch.
	StrictChamberMagic bool `yaml:"strict_chamber_magic"`
}

// FTPConfig configures the FTP/FTPS passthrough.
type FTPConfig struct {
	// MaxBytesPerSec caps the aggregate data-channel transfer rate shared
	// across every connection, in both directions. 0 means unlimited.
	MaxBytesPerSec int64 `yaml:"max_bytes_per_sec"`
}

// RTSPConfig configures the external media-transport subprocess.
type RTSPConfig struct {
	TransportBinary string `yaml:"transport_binary"`
	WorkDir         string `yaml:"work_dir"`
}

// BackoffConfig tunes the reconnect/restart backoff shared by the Chamber
// upstream session and the RTSP transport supervisor.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// LoggingConfig configures internal/logging.NewLogger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads an optional YAML file at path (skipped entirely if path is
// empty) and fills in defaults for unset fields; it does not validate. An
// empty path is valid: Load then starts from zero values before
// applyDefaults fills them in.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills in zero-value fields with documented defaults.
func (c *Config) applyDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = "0.0.0.0"
	}
	if c.RTSP.TransportBinary == "" {
		c.RTSP.TransportBinary = "mediamtx"
	}
	if c.RTSP.WorkDir == "" {
		c.RTSP.WorkDir = os.TempDir()
	}
	if c.Backoff.Initial <= 0 {
		c.Backoff.Initial = time.Second
	}
	if c.Backoff.Max <= 0 {
		c.Backoff.Max = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate rejects a configuration missing the fields required to start
// any proxy at all.
func (c *Config) Validate() error {
	if c.PrinterIP == "" {
		return fmt.Errorf("printer_ip is required")
	}
	if c.AccessCode == "" {
		return fmt.Errorf("access_code is required")
	}
	return nil
}

// Flags describes the CLI surface: --printer-ip, --access-code, --bind,
// --camera-type, --verbose, plus --config for the optional YAML file.
type Flags struct {
	ConfigPath string
	PrinterIP  string
	AccessCode string
	Bind       string
	CameraType string
	Verbose    bool
}

// ParseFlags parses args (typically os.Args[1:]) into Flags.
func ParseFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("pandaproxy", flag.ContinueOnError)

	var f Flags
	fs.StringVar(&f.ConfigPath, "config", "", "path to an optional YAML config file")
	fs.StringVar(&f.PrinterIP, "printer-ip", "", "IP address of the printer")
	fs.StringVar(&f.AccessCode, "access-code", "", "printer access code")
	fs.StringVar(&f.Bind, "bind", "", "address to bind the proxy servers to")
	fs.StringVar(&f.CameraType, "camera-type", "", `override camera-type detection ("chamber" or "rtsp")`)
	fs.BoolVar(&f.Verbose, "verbose", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// ApplyFlagsAndEnv layers environment variables (PRINTER_IP, ACCESS_CODE,
// BIND_ADDRESS) and then CLI flags over cfg. Environment variables only
// supply a value when the corresponding flag was left unset, mirroring
// the original CLI's envvar-annotated options, where the env var is a
// fallback default rather than an override. Call after Load and before
// Validate.
func (c *Config) ApplyFlagsAndEnv(f Flags) {
	if f.PrinterIP == "" {
		if v := os.Getenv("PRINTER_IP"); v != "" {
			f.PrinterIP = v
		}
	}
	if f.AccessCode == "" {
		if v := os.Getenv("ACCESS_CODE"); v != "" {
			f.AccessCode = v
		}
	}
	if f.Bind == "" {
		if v := os.Getenv("BIND_ADDRESS"); v != "" {
			f.Bind = v
		}
	}

	if f.PrinterIP != "" {
		c.PrinterIP = f.PrinterIP
	}
	if f.AccessCode != "" {
		c.AccessCode = f.AccessCode
	}
	if f.Bind != "" {
		c.BindAddress = f.Bind
	}
	if f.CameraType != "" {
		c.CameraType = f.CameraType
	}
	if f.Verbose {
		c.Logging.Level = "debug"
	}
}
