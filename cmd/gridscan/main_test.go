package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Capture.Selector != "5000" || cfg.Server.Port != "8080" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestParseFlags_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridscan.yaml")
	yaml := "server:\n  port: \"9000\"\ncapture:\n  selector: \"3000\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GRIDSCAN_SELECTOR", "10000")

	cfg, err := parseFlags([]string{"-config", path, "-still", "shelf.png", "-debug"})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9000" {
		t.Errorf("port = %q, want file value 9000", cfg.Server.Port)
	}
	if cfg.Capture.Selector != "10000" {
		t.Errorf("selector = %q, want env value 10000", cfg.Capture.Selector)
	}
	if cfg.Camera.Source != "still" || cfg.Camera.Path != "shelf.png" {
		t.Errorf("camera = %+v", cfg.Camera)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q", cfg.Log.Level)
	}

	cfg, err = parseFlags([]string{"-config", path, "-selector", "manual"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Capture.Selector != "manual" {
		t.Errorf("selector = %q, want flag value manual", cfg.Capture.Selector)
	}
}

func TestParseFlags_BadFlag(t *testing.T) {
	if _, err := parseFlags([]string{"-nope"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}
