package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddress != "0.0.0.0" {
		t.Fatalf("expected default bind address, got %q", cfg.BindAddress)
	}
	if cfg.RTSP.TransportBinary != "mediamtx" {
		t.Fatalf("expected default transport binary, got %q", cfg.RTSP.TransportBinary)
	}
	if cfg.Backoff.Initial != time.Second {
		t.Fatalf("expected 1s initial backoff, got %v", cfg.Backoff.Initial)
	}
	if cfg.Backoff.Max != 30*time.Second {
		t.Fatalf("expected 30s max backoff, got %v", cfg.Backoff.Max)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected default logging config: %+v", cfg.Logging)
	}
}

func TestLoadReadsYAMLFileAndKeepsOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pandaproxy.yml")
	contents := `
printer_ip: 10.0.0.5
access_code: abc123
bind_address: 192.168.1.1
rtsp:
  transport_binary: /usr/local/bin/mediamtx
backoff:
  initial: 2s
  max: 45s
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PrinterIP != "10.0.0.5" || cfg.AccessCode != "abc123" {
		t.Fatalf("unexpected parsed config: %+v", cfg)
	}
	if cfg.BindAddress != "192.168.1.1" {
		t.Fatalf("file-provided bind address should not be overwritten by default: %q", cfg.BindAddress)
	}
	if cfg.RTSP.TransportBinary != "/usr/local/bin/mediamtx" {
		t.Fatalf("file-provided transport binary should not be overwritten: %q", cfg.RTSP.TransportBinary)
	}
	if cfg.Backoff.Initial != 2*time.Second || cfg.Backoff.Max != 45*time.Second {
		t.Fatalf("unexpected backoff config: %+v", cfg.Backoff)
	}
	// WorkDir wasn't set in the file, so it still gets a default.
	if cfg.RTSP.WorkDir == "" {
		t.Fatalf("expected default work dir to be applied")
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(path, []byte("printer_ip: [unterminated"), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error for malformed YAML")
	}
}

func TestValidateRequiresPrinterIPAndAccessCode(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error with no printer IP or access code")
	}

	cfg.PrinterIP = "10.0.0.5"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error with no access code")
	}

	cfg.AccessCode = "abc123"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected a fully populated config to validate, got %v", err)
	}
}

func TestApplyFlagsAndEnvPrecedence(t *testing.T) {
	t.Setenv("PRINTER_IP", "10.9.9.9")
	t.Setenv("ACCESS_CODE", "")
	t.Setenv("BIND_ADDRESS", "10.9.9.9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	f := Flags{
		PrinterIP:  "10.1.1.1",
		AccessCode: "flagcode",
		Bind:       "127.0.0.1",
		Verbose:    true,
	}
	cfg.ApplyFlagsAndEnv(f)

	if cfg.PrinterIP != "10.1.1.1" {
		t.Fatalf("expected an explicit flag to win over the env var, got %q", cfg.PrinterIP)
	}
	if cfg.AccessCode != "flagcode" {
		t.Fatalf("expected flag value when env var unset, got %q", cfg.AccessCode)
	}
	if cfg.BindAddress != "127.0.0.1" {
		t.Fatalf("expected an explicit flag to win over the env var, got %q", cfg.BindAddress)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected verbose flag to enable debug logging, got %q", cfg.Logging.Level)
	}
}

func TestApplyFlagsAndEnvFallsBackToEnvWhenFlagUnset(t *testing.T) {
	t.Setenv("PRINTER_IP", "10.9.9.9")
	t.Setenv("ACCESS_CODE", "envcode")
	t.Setenv("BIND_ADDRESS", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.ApplyFlagsAndEnv(Flags{})

	if cfg.PrinterIP != "10.9.9.9" {
		t.Fatalf("expected env var to supply printer IP when no flag set, got %q", cfg.PrinterIP)
	}
	if cfg.AccessCode != "envcode" {
		t.Fatalf("expected env var to supply access code when no flag set, got %q", cfg.AccessCode)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	f, err := ParseFlags([]string{"--printer-ip", "10.0.0.9", "--access-code", "secret"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if f.PrinterIP != "10.0.0.9" || f.AccessCode != "secret" {
		t.Fatalf("unexpected flags: %+v", f)
	}
	if f.Verbose {
		t.Fatalf("expected verbose to default false")
	}
}
