package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"beamctl/pkg/types"
)

func TestCreateDefaultConfigThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beamctl.yaml")

	cm := NewManager(path)
	if err := cm.CreateDefaultConfig(); err != nil {
		t.Fatalf("CreateDefaultConfig: %v", err)
	}

	loaded := NewManager(path)
	if err := loaded.LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	got := loaded.GetConfig()
	want := types.DefaultSystemConfig()
	if got.Loop.FrequencyHz != want.Loop.FrequencyHz {
		t.Fatalf("expected frequency %v, got %v", want.Loop.FrequencyHz, got.Loop.FrequencyHz)
	}
	if got.CommandEndpoint != want.CommandEndpoint {
		t.Fatalf("expected command endpoint %v, got %v", want.CommandEndpoint, got.CommandEndpoint)
	}
}

func TestLoadConfigRejectsBadIntegratorLimits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beamctl.yaml")

	data := []byte("pid:\n  integrator_min: 5\n  integrator_max: -5\ncommand_endpoint: \"127.0.0.1:5555\"\ntelemetry_endpoint: \"127.0.0.1:5556\"\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cm := NewManager(path)
	if err := cm.LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for integrator_min >= integrator_max")
	}
}

func TestLoadConfigFillsDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beamctl.yaml")

	data := []byte("command_endpoint: \"127.0.0.1:5555\"\ntelemetry_endpoint: \"127.0.0.1:5556\"\nmagnet:\n  saturation_a: 2.0\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cm := NewManager(path)
	if err := cm.LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	got := cm.GetConfig()
	if got.Bpm.ChamberRadiusMm != 10.0 {
		t.Fatalf("expected default chamber radius 10.0, got %v", got.Bpm.ChamberRadiusMm)
	}
	if len(got.Mps.Blms) != 3 {
		t.Fatalf("expected default three BLMs, got %v", got.Mps.Blms)
	}
}

func TestSetConfigNotifiesWatchers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beamctl.yaml")

	cm := NewManager(path)
	if err := cm.CreateDefaultConfig(); err != nil {
		t.Fatalf("CreateDefaultConfig: %v", err)
	}

	notified := make(chan types.SystemConfig, 1)
	cm.WatchChanges(func(c types.SystemConfig) { notified <- c })

	cfg := cm.GetConfig()
	cfg.Pid.Kp = 1.23
	if err := cm.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}

	select {
	case c := <-notified:
		if c.Pid.Kp != 1.23 {
			t.Fatalf("expected watcher to see updated kp, got %v", c.Pid.Kp)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected watcher notification")
	}
}
