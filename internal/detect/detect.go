// Package detect probes a printer's camera transport: Chamber Image
// (port 6000) or RTSP (port 322). It is a thin external collaborator, not
// a protocol implementation — it dials both candidate ports and reports
// which one accepted, preferring Chamber when both do. Grounded in original_source/cli.py's
// detect_camera_type, which the original CLI calls before choosing which
// proxy to start.
package detect

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

// CameraType identifies which upstream protocol a printer exposes.
type CameraType string

const (
	CameraChamber CameraType = "chamber"
	CameraRTSP    CameraType = "rtsp"
)

// ErrUndetected is returned when neither candidate port accepted a
// connection within timeout.
var ErrUndetected = errors.New("detect: camera type could not be determined")

// chamberPort and rtspPort mirror the well-known ports owned by the
// chamber and rtsp packages; duplicated here as constants to avoid a
// dependency from detect onto those packages for a single integer each.
const (
	chamberPort = 6000
	rtspPort    = 322
)

// Probe dials printerIP on both the Chamber and RTSP ports concurrently,
// waits for both attempts to finish, and returns the type whose port
// accepted. If both accept, Chamber wins
// (A1/P1 printers only expose 6000; X1/H2/P2 printers only expose 322, so
// a genuine race between the two is not expected in practice).
func Probe(ctx context.Context, printerIP string, timeout time.Duration) (CameraType, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		kind CameraType
		ok   bool
	}
	results := make(chan result, 2)

	probeOne := func(kind CameraType, port int) {
		dialer := &net.Dialer{}
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(printerIP, strconv.Itoa(port)))
		if err != nil {
			results <- result{kind: kind, ok: false}
			return
		}
		conn.Close()
		results <- result{kind: kind, ok: true}
	}

	go probeOne(CameraChamber, chamberPort)
	go probeOne(CameraRTSP, rtspPort)

	var chamberOK, rtspOK bool
	for i := 0; i < 2; i++ {
		r := <-results
		switch r.kind {
		case CameraChamber:
			chamberOK = r.ok
		case CameraRTSP:
			rtspOK = r.ok
		}
	}

	switch {
	case chamberOK:
		return CameraChamber, nil
	case rtspOK:
		return CameraRTSP, nil
	default:
		return "", ErrUndetected
	}
}
