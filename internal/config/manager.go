// Package config provides YAML-based configuration management for the
// controller, with polling-based hot-reload: a background goroutine
// watches the config file's mtime and reloads + notifies watchers whenever
// it changes, without requiring a service restart.
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"beamctl/internal/logging"
	"beamctl/pkg/types"
)

type Manager struct {
	config       types.SystemConfig
	configPath   string
	configLock   sync.RWMutex
	watchers     []func(types.SystemConfig)
	watchersLock sync.RWMutex
	lastModified time.Time
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	watching     bool
	logger       *logging.Logger
}

func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
		watchers:   make([]func(types.SystemConfig), 0),
		logger:     logging.GetLogger("config_manager"),
	}
}

func (cm *Manager) LoadConfig(path string) error {
	if path != "" {
		cm.configPath = path
	}

	cm.configLock.Lock()
	defer cm.configLock.Unlock()

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	config := types.DefaultSystemConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cm.validateConfig(&config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	cm.config = config
	cm.lastModified = time.Now()

	cm.logger.Info("configuration loaded", "config_path", cm.configPath)
	return nil
}

func (cm *Manager) Reload() error {
	return cm.LoadConfig(cm.configPath)
}

func (cm *Manager) GetConfig() types.SystemConfig {
	cm.configLock.RLock()
	defer cm.configLock.RUnlock()
	return cm.config
}

func (cm *Manager) SetConfig(config types.SystemConfig) error {
	cm.configLock.Lock()
	defer cm.configLock.Unlock()

	if err := cm.validateConfig(&config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	cm.config = config
	cm.lastModified = time.Now()

	cm.notifyWatchers(config)
	cm.logger.Info("configuration updated and saved", "config_path", cm.configPath)
	return nil
}

// WatchChanges registers a callback fired (in its own goroutine) every time
// the config is reloaded, either via SetConfig or the file watcher.
func (cm *Manager) WatchChanges(callback func(types.SystemConfig)) error {
	cm.watchersLock.Lock()
	defer cm.watchersLock.Unlock()

	cm.watchers = append(cm.watchers, callback)
	return nil
}

func (cm *Manager) StartWatching(ctx context.Context) error {
	if cm.watching {
		return fmt.Errorf("config watcher is already running")
	}

	cm.ctx, cm.cancel = context.WithCancel(ctx)
	cm.watching = true

	cm.wg.Add(1)
	go cm.watchFile()

	cm.logger.Info("started watching config file", "config_path", cm.configPath)
	return nil
}

func (cm *Manager) StopWatching() error {
	if !cm.watching {
		return fmt.Errorf("config watcher is not running")
	}

	cm.cancel()
	cm.wg.Wait()
	cm.watching = false

	cm.logger.Info("stopped watching config file")
	return nil
}

func (cm *Manager) watchFile() {
	defer cm.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cm.ctx.Done():
			return
		case <-ticker.C:
			cm.checkFileChanges()
		}
	}
}

func (cm *Manager) checkFileChanges() {
	info, err := os.Stat(cm.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			cm.logger.Error("error checking config file", "error", err)
		}
		return
	}

	if info.ModTime().After(cm.lastModified) {
		cm.logger.Info("config file modified, reloading")
		if err := cm.Reload(); err != nil {
			cm.logger.Error("failed to reload config", "error", err)
		} else {
			cm.notifyWatchers(cm.GetConfig())
		}
	}
}

func (cm *Manager) notifyWatchers(config types.SystemConfig) {
	cm.watchersLock.RLock()
	watchers := make([]func(types.SystemConfig), len(cm.watchers))
	copy(watchers, cm.watchers)
	cm.watchersLock.RUnlock()

	for _, watcher := range watchers {
		go watcher(config)
	}
}

func (cm *Manager) validateConfig(config *types.SystemConfig) error {
	config.Loop.FrequencyHz = types.ClampFrequency(config.Loop.FrequencyHz)

	if config.Pid.IntegratorMin >= config.Pid.IntegratorMax {
		return fmt.Errorf("pid integrator_min must be less than integrator_max")
	}

	if config.Limits.MagnetMin >= config.Limits.MagnetMax {
		return fmt.Errorf("limits magnet_min must be less than magnet_max")
	}

	if config.Bpm.ChamberRadiusMm <= 0 {
		config.Bpm.ChamberRadiusMm = 10.0
	}

	if config.Bic.SaturationCps <= 0 {
		config.Bic.SaturationCps = 5e6
	}

	if config.Magnet.SaturationA <= 0 {
		return fmt.Errorf("magnet saturation_a must be positive")
	}

	if len(config.Mps.Blms) == 0 {
		config.Mps.Blms = []string{"upstream", "target", "downstream"}
	}

	if config.CommandEndpoint == "" {
		return fmt.Errorf("command_endpoint must be configured")
	}
	if config.TelemetryEndpoint == "" {
		return fmt.Errorf("telemetry_endpoint must be configured")
	}

	return nil
}

func (cm *Manager) CreateDefaultConfig() error {
	return cm.SetConfig(types.DefaultSystemConfig())
}

func (cm *Manager) GetConfigPath() string { return cm.configPath }

func (cm *Manager) ExportConfig(path string) error {
	cm.configLock.RLock()
	defer cm.configLock.RUnlock()

	data, err := yaml.Marshal(cm.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}

	cm.logger.Info("configuration exported", "path", path)
	return nil
}

func (cm *Manager) ImportConfig(path string) error {
	if err := cm.LoadConfig(path); err != nil {
		return fmt.Errorf("failed to import config: %w", err)
	}

	if err := cm.SetConfig(cm.GetConfig()); err != nil {
		return fmt.Errorf("failed to save imported config: %w", err)
	}

	cm.logger.Info("configuration imported", "path", path)
	return nil
}
