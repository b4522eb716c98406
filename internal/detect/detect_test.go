package detect

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestProbeDetectsChamber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.4:6000")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer ln.Close()
	go acceptAndClose(ln)

	kind, err := Probe(context.Background(), "127.0.0.4", time.Second)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if kind != CameraChamber {
		t.Fatalf("got %s, want chamber", kind)
	}
}

func TestProbeDetectsRTSP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.5:322")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer ln.Close()
	go acceptAndClose(ln)

	kind, err := Probe(context.Background(), "127.0.0.5", time.Second)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if kind != CameraRTSP {
		t.Fatalf("got %s, want rtsp", kind)
	}
}

func TestProbeUndetected(t *testing.T) {
	_, err := Probe(context.Background(), "127.0.0.6", 200*time.Millisecond)
	if !errors.Is(err, ErrUndetected) {
		t.Fatalf("expected ErrUndetected, got %v", err)
	}
}

func acceptAndClose(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}
}
