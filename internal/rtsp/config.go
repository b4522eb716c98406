package rtsp

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// mediamtxPath is a single source-to-path mapping in a mediamtx-style
// config: the transport pulls from Source and republishes every client
// connecting to the proxy's local RTSP port under this path.
type mediamtxPath struct {
	Source                     string `yaml:"source"`
	SourceOnDemand             bool   `yaml:"sourceOnDemand"`
	SourceFingerprint          string `yaml:"sourceFingerprint,omitempty"`
	RTSPTransport              string `yaml:"rtspTransport,omitempty"`
	SourceInsecureSkipVerify   bool   `yaml:"sourceInsecureSkipVerify,omitempty"`
}

type mediamtxConfig struct {
	RTSPAddress string                  `yaml:"rtspAddress"`
	Protocols   []string                `yaml:"protocols"`
	Paths       map[string]mediamtxPath `yaml:"paths"`
}

// RenderConfig builds a mediamtx-compatible YAML config pulling from the
// printer's RTSP source and republishing on bindAddress:322, and writes it
// to a file under dir. It returns the path written.
func RenderConfig(dir, bindAddress, printerIP, accessCode string) (string, error) {
	sourceURL := fmt.Sprintf("rtsp://bblp:%s@%s:%d/stream", accessCode, printerIP, Port)

	cfg := mediamtxConfig{
		RTSPAddress: fmt.Sprintf("%s:%d", bindAddress, Port),
		Protocols:   []string{"tcp"},
		Paths: map[string]mediamtxPath{
			"stream": {
				Source:                   sourceURL,
				SourceOnDemand:           false,
				RTSPTransport:            "tcp",
				SourceInsecureSkipVerify: true,
			},
		},
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling rtsp transport config: %w", err)
	}

	path := filepath.Join(dir, "mediamtx.yml")
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return "", fmt.Errorf("writing rtsp transport config: %w", err)
	}
	return path, nil
}
