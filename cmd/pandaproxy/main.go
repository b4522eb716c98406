// Command pandaproxy fans out a BambuLab-style printer's camera stream
// and FTP control/data channels to multiple local clients. It detects
// (or accepts an override for) the printer's camera transport, then
// starts the matching proxy plus FTP passthrough under one supervisor.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/karaktaka/pandaproxy/internal/chamber"
	"github.com/karaktaka/pandaproxy/internal/chamberproto"
	"github.com/karaktaka/pandaproxy/internal/config"
	"github.com/karaktaka/pandaproxy/internal/detect"
	"github.com/karaktaka/pandaproxy/internal/diag"
	"github.com/karaktaka/pandaproxy/internal/ftp"
	"github.com/karaktaka/pandaproxy/internal/logging"
	"github.com/karaktaka/pandaproxy/internal/observability"
	"github.com/karaktaka/pandaproxy/internal/rtsp"
	"github.com/karaktaka/pandaproxy/internal/supervisor"
)

// detectTimeout bounds how long camera-type auto-detection waits for
// either candidate port to answer before giving up.
const detectTimeout = 5 * time.Second

// crashRingCapacity is how many recent log lines diag.Handler keeps
// buffered for WriteCrashDump if the process exits abnormally.
const crashRingCapacity = 500

func main() {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyFlagsAndEnv(flags)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	chamberproto.StrictMagic = cfg.StrictChamberMagic

	baseLogger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, "")
	defer logCloser.Close()

	ring := diag.NewRing(crashRingCapacity)
	logger := slog.New(diag.NewHandler(baseLogger.Handler(), ring))

	ctx := context.Background()

	components, statsSource, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to assemble proxy components", "error", err)
		dumpAndExit(ring)
	}

	var reporter *observability.StatsReporter
	if statsSource != nil {
		reporter = observability.NewStatsReporter(logger, statsSource)
		reporter.Start()
		defer reporter.Stop()
	}

	sup := supervisor.New(logger, components...)
	if err := sup.Run(ctx); err != nil {
		logger.Error("supervisor exited with error", "error", err)
		dumpAndExit(ring)
	}
}

// buildComponents resolves the camera type (explicit override or
// detect.Probe) and constructs the supervisor.Component list: exactly one
// camera proxy (Chamber or RTSP), plus FTP when enabled. It also returns
// the observability.Source for the stats reporter, which only the
// Chamber proxy currently implements.
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]supervisor.Component, observability.Source, error) {
	cameraType, err := resolveCameraType(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving camera type: %w", err)
	}

	var components []supervisor.Component
	var statsSource observability.Source

	switch cameraType {
	case detect.CameraChamber:
		cc := newChamberComponent(cfg, logger)
		components = append(components, cc)
		statsSource = cc
	case detect.CameraRTSP:
		rc, err := newRTSPComponent(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		components = append(components, rc)
	default:
		return nil, nil, fmt.Errorf("unsupported camera type %q", cameraType)
	}

	if cfg.EnableFTP {
		components = append(components, ftp.New(logger, cfg.PrinterIP, cfg.BindAddress, cfg.FTP.MaxBytesPerSec))
	}

	return components, statsSource, nil
}

func resolveCameraType(ctx context.Context, cfg *config.Config, logger *slog.Logger) (detect.CameraType, error) {
	if cfg.CameraType != "" {
		logger.Info("camera type set by configuration", "camera_type", cfg.CameraType)
		return detect.CameraType(cfg.CameraType), nil
	}

	kind, err := detect.Probe(ctx, cfg.PrinterIP, detectTimeout)
	if err != nil {
		return "", err
	}
	logger.Info("camera type detected", "camera_type", kind)
	return kind, nil
}

func dumpAndExit(ring *diag.Ring) {
	if _, err := diag.WriteCrashDump(os.TempDir(), ring, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "also failed to write crash dump: %v\n", err)
	}
	os.Exit(1)
}

// chamberComponent adapts chamber.Proxy's wider Start signature (it needs
// the printer IP, access code, and bind address, none of which the
// supervisor.Component interface carries) to the supervisor's contract by
// closing over the values resolved from configuration.
type chamberComponent struct {
	proxy       *chamber.Proxy
	printerIP   string
	accessCode  string
	bindAddress string
}

func newChamberComponent(cfg *config.Config, logger *slog.Logger) *chamberComponent {
	return &chamberComponent{
		proxy:       chamber.New(logger, chamber.Backoff{Initial: cfg.Backoff.Initial, Max: cfg.Backoff.Max}),
		printerIP:   cfg.PrinterIP,
		accessCode:  cfg.AccessCode,
		bindAddress: cfg.BindAddress,
	}
}

func (c *chamberComponent) Name() string { return c.proxy.Name() }

func (c *chamberComponent) Start(ctx context.Context) error {
	return c.proxy.Start(ctx, c.printerIP, c.accessCode, c.bindAddress)
}

func (c *chamberComponent) Stop() { c.proxy.Stop() }

// SubscriberCount satisfies observability.Source, forwarding to the
// wrapped proxy.
func (c *chamberComponent) SubscriberCount() int { return c.proxy.SubscriberCount() }

// newRTSPComponent resolves the transport binary on PATH (mirroring the
// original CLI's shutil.which dependency check) and renders its config
// file before constructing the proxy.
func newRTSPComponent(cfg *config.Config, logger *slog.Logger) (*rtsp.Proxy, error) {
	binaryPath, err := exec.LookPath(cfg.RTSP.TransportBinary)
	if err != nil {
		return nil, fmt.Errorf("rtsp transport binary %q not found in PATH: %w", cfg.RTSP.TransportBinary, err)
	}

	configPath, err := rtsp.RenderConfig(cfg.RTSP.WorkDir, cfg.BindAddress, cfg.PrinterIP, cfg.AccessCode)
	if err != nil {
		return nil, fmt.Errorf("rendering rtsp transport config: %w", err)
	}

	transport := rtsp.Transport{BinaryPath: binaryPath, ConfigPath: configPath}
	backoff := rtsp.Backoff{Initial: cfg.Backoff.Initial, Max: cfg.Backoff.Max}
	return rtsp.New(logger, transport, backoff), nil
}
