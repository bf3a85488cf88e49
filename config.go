package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Window size constants
const (
	defaultWidth  = 1200
	defaultHeight = 900
	minWidth      = 400
	minHeight     = 300
)

// Sort method constants
const (
	SortNatural = 0 // Natural sort order (e.g., page1, page2, page10)
	SortSimple  = 1 // Simple string sort (lexicographical)
)

// validateKeybindings validates the keybindings configuration
func validateKeybindings(keybindings map[string][]string) error {
	keyToAction := make(map[string]string)
	validKeys := getValidKeyNames()

	for action, keys := range keybindings {
		for _, keyStr := range keys {
			if err := validateKeyString(keyStr, validKeys); err != nil {
				return fmt.Errorf("invalid key '%s' for action '%s': %w", keyStr, action, err)
			}

			if existingAction, exists := keyToAction[keyStr]; exists {
				return fmt.Errorf("key conflict: '%s' is bound to both '%s' and '%s'", keyStr, existingAction, action)
			}
			keyToAction[keyStr] = action
		}
	}

	return nil
}

// validateKeyString validates a single key string format
func validateKeyString(keyStr string, validKeys map[string]bool) error {
	parts := strings.Split(keyStr, "+")

	// Last part should be the actual key
	keyName := parts[len(parts)-1]
	if keyName == "" {
		return errors.New("empty key string")
	}
	if !validKeys[keyName] {
		return fmt.Errorf("unknown key: %s", keyName)
	}

	for _, modifier := range parts[:len(parts)-1] {
		switch strings.ToLower(modifier) {
		case "shift", "ctrl", "alt":
		default:
			return fmt.Errorf("unknown modifier: %s", modifier)
		}
	}

	return nil
}

// getValidKeyNames returns a set of valid key names
func getValidKeyNames() map[string]bool {
	valid := make(map[string]bool)
	for name := range getKeyMapping() {
		valid[name] = true
	}
	return valid
}

// ConfigLoadResult contains the result of loading configuration
type ConfigLoadResult struct {
	Config   Config
	HasError bool
	Warnings []string
	Status   string // "OK", "Default", "Warning", "Error"
}

type Config struct {
	WindowWidth             int                 `json:"window_width" mapstructure:"window_width"`
	WindowHeight            int                 `json:"window_height" mapstructure:"window_height"`
	PageViewMode            string              `json:"page_view_mode" mapstructure:"page_view_mode"`
	HasCover                bool                `json:"has_cover" mapstructure:"has_cover"`
	RightToLeft             bool                `json:"right_to_left" mapstructure:"right_to_left"`
	ContinuousScroll        bool                `json:"continuous_scroll" mapstructure:"continuous_scroll"`
	AutoDetectBreakpoints   bool                `json:"auto_detect_breakpoints" mapstructure:"auto_detect_breakpoints"`
	SortMethod              int                 `json:"sort_method" mapstructure:"sort_method"`
	MaxCachedPages          int                 `json:"max_cached_pages" mapstructure:"max_cached_pages"`
	PreloadBuffer           int                 `json:"preload_buffer" mapstructure:"preload_buffer"`
	CacheBehind             int                 `json:"cache_behind" mapstructure:"cache_behind"`
	CacheAhead              int                 `json:"cache_ahead" mapstructure:"cache_ahead"`
	DecodeWorkers           int                 `json:"decode_workers" mapstructure:"decode_workers"`
	FileCacheSize           int                 `json:"file_cache_size" mapstructure:"file_cache_size"`
	PanStep                 float64             `json:"pan_step" mapstructure:"pan_step"`
	SnapDecayFactor         float64             `json:"snap_decay_factor" mapstructure:"snap_decay_factor"`
	SnapTransitionThreshold float64             `json:"snap_transition_threshold" mapstructure:"snap_transition_threshold"`
	SnapDurationMs          int                 `json:"snap_duration_ms" mapstructure:"snap_duration_ms"`
	FontSize                float64             `json:"font_size" mapstructure:"font_size"`
	LogLevel                string              `json:"log_level" mapstructure:"log_level"`
	Mouse                   MouseSettings       `json:"mouse" mapstructure:"mouse"`
	Keybindings             map[string][]string `json:"keybindings" mapstructure:"keybindings"`
}

func defaultConfig() Config {
	return Config{
		WindowWidth:             defaultWidth,
		WindowHeight:            defaultHeight,
		PageViewMode:            string(ViewModeAuto),
		HasCover:                false,
		RightToLeft:             true, // manga reads right to left
		ContinuousScroll:        false,
		AutoDetectBreakpoints:   true,
		SortMethod:              SortNatural,
		MaxCachedPages:          10,
		PreloadBuffer:           2,
		CacheBehind:             2,
		CacheAhead:              3,
		DecodeWorkers:           2,
		FileCacheSize:           16,
		PanStep:                 100,
		SnapDecayFactor:         0.95,
		SnapTransitionThreshold: 0.3,
		SnapDurationMs:          250,
		FontSize:                20,
		LogLevel:                "info",
		Mouse:                   GetDefaultMouseSettings(),
		Keybindings:             GetDefaultKeybindings(),
	}
}

// SnapConfig returns the momentum settings as used by calculateSnapTarget.
func (c Config) SnapConfig() SnapConfig {
	return SnapConfig{DecayFactor: c.SnapDecayFactor, TransitionThreshold: c.SnapTransitionThreshold}
}

// CanvasCacheOptions returns the canvas cache bounds.
func (c Config) CanvasCacheOptions() CanvasCacheOptions {
	return CanvasCacheOptions{MaxCachedPages: c.MaxCachedPages, PreloadBuffer: c.PreloadBuffer}
}

func getConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "mv.json"
	}
	return filepath.Join(homeDir, ".mv.json")
}

func newConfigViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	defaults := defaultConfig()
	v.SetDefault("window_width", defaults.WindowWidth)
	v.SetDefault("window_height", defaults.WindowHeight)
	v.SetDefault("page_view_mode", defaults.PageViewMode)
	v.SetDefault("has_cover", defaults.HasCover)
	v.SetDefault("right_to_left", defaults.RightToLeft)
	v.SetDefault("continuous_scroll", defaults.ContinuousScroll)
	v.SetDefault("auto_detect_breakpoints", defaults.AutoDetectBreakpoints)
	v.SetDefault("sort_method", defaults.SortMethod)
	v.SetDefault("max_cached_pages", defaults.MaxCachedPages)
	v.SetDefault("preload_buffer", defaults.PreloadBuffer)
	v.SetDefault("cache_behind", defaults.CacheBehind)
	v.SetDefault("cache_ahead", defaults.CacheAhead)
	v.SetDefault("decode_workers", defaults.DecodeWorkers)
	v.SetDefault("file_cache_size", defaults.FileCacheSize)
	v.SetDefault("pan_step", defaults.PanStep)
	v.SetDefault("snap_decay_factor", defaults.SnapDecayFactor)
	v.SetDefault("snap_transition_threshold", defaults.SnapTransitionThreshold)
	v.SetDefault("snap_duration_ms", defaults.SnapDurationMs)
	v.SetDefault("font_size", defaults.FontSize)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("mouse.wheel_sensitivity", defaults.Mouse.WheelSensitivity)
	v.SetDefault("mouse.wheel_inverted", defaults.Mouse.WheelInverted)
	v.SetDefault("mouse.drag_threshold", defaults.Mouse.DragThreshold)
	v.SetDefault("mouse.enable_drag_pan", defaults.Mouse.EnableDragPan)

	// Environment variables with MV_ prefix, e.g. MV_PAGE_VIEW_MODE=dual
	v.SetEnvPrefix("MV")
	v.AutomaticEnv()
	return v
}

func loadConfigFromPath(configPath string) ConfigLoadResult {
	result := ConfigLoadResult{
		Config:   defaultConfig(),
		Warnings: []string{},
		Status:   "OK",
	}

	v := newConfigViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			// Invalid config file - warn and use defaults
			logger.Warn().Err(err).Str("path", configPath).Msg("invalid config file, using defaults")
			result.HasError = true
			result.Status = "Error"
			result.Warnings = append(result.Warnings, fmt.Sprintf("Invalid config file: %v", err))
			return result
		}
		// Config file not found is not an error - use defaults
		result.Status = "Default"
	}

	config := defaultConfig()
	config.Keybindings = nil
	if err := v.Unmarshal(&config); err != nil {
		logger.Warn().Err(err).Str("path", configPath).Msg("cannot decode config, using defaults")
		result.HasError = true
		result.Status = "Error"
		result.Warnings = append(result.Warnings, fmt.Sprintf("Invalid config values: %v", err))
		return result
	}

	result.Warnings = append(result.Warnings, validateConfig(&config)...)
	if len(result.Warnings) > 0 && result.Status == "OK" {
		result.Status = "Warning"
	}
	result.Config = config
	return result
}

// validateConfig clamps out-of-range values back to defaults and returns a
// warning for each problem that needs the user's attention.
func validateConfig(config *Config) []string {
	var warnings []string
	defaults := defaultConfig()

	if config.WindowWidth < minWidth {
		config.WindowWidth = defaultWidth
	}
	if config.WindowHeight < minHeight {
		config.WindowHeight = defaultHeight
	}

	if _, err := parseViewMode(config.PageViewMode); err != nil {
		warnings = append(warnings, err.Error())
		config.PageViewMode = defaults.PageViewMode
	}

	if config.SortMethod < SortNatural || config.SortMethod > SortSimple {
		config.SortMethod = SortNatural
	}

	// Canvas cache needs room for at least one dual spread
	if config.MaxCachedPages < 2 {
		config.MaxCachedPages = defaults.MaxCachedPages
	} else if config.MaxCachedPages > 64 {
		config.MaxCachedPages = 64
	}
	if config.PreloadBuffer < 0 {
		config.PreloadBuffer = defaults.PreloadBuffer
	} else if config.PreloadBuffer > 8 {
		config.PreloadBuffer = 8
	}

	if config.CacheBehind < 0 || config.CacheBehind > 16 {
		config.CacheBehind = defaults.CacheBehind
	}
	if config.CacheAhead < 1 || config.CacheAhead > 16 {
		config.CacheAhead = defaults.CacheAhead
	}
	if config.DecodeWorkers < 1 {
		config.DecodeWorkers = defaults.DecodeWorkers
	} else if config.DecodeWorkers > 8 {
		config.DecodeWorkers = 8
	}
	if config.FileCacheSize < 1 || config.FileCacheSize > 256 {
		config.FileCacheSize = defaults.FileCacheSize
	}

	if config.PanStep <= 0 {
		config.PanStep = defaults.PanStep
	}
	if config.SnapDecayFactor < 0 || config.SnapDecayFactor >= 1 {
		config.SnapDecayFactor = defaults.SnapDecayFactor
	}
	if config.SnapTransitionThreshold <= 0 || config.SnapTransitionThreshold > 1 {
		config.SnapTransitionThreshold = defaults.SnapTransitionThreshold
	}
	if config.SnapDurationMs < 0 || config.SnapDurationMs > 2000 {
		config.SnapDurationMs = defaults.SnapDurationMs
	}

	if config.Mouse.WheelSensitivity <= 0 {
		config.Mouse.WheelSensitivity = defaults.Mouse.WheelSensitivity
	}
	if config.Mouse.DragThreshold < 0 {
		config.Mouse.DragThreshold = defaults.Mouse.DragThreshold
	}

	// Minimum 12px for readability
	if config.FontSize < 12 {
		config.FontSize = defaults.FontSize
	}

	if _, err := zerolog.ParseLevel(config.LogLevel); err != nil {
		warnings = append(warnings, fmt.Sprintf("unknown log level %q", config.LogLevel))
		config.LogLevel = defaults.LogLevel
	}

	// Fill in missing keybindings with defaults
	if config.Keybindings == nil {
		config.Keybindings = GetDefaultKeybindings()
	} else {
		for action, keys := range GetDefaultKeybindings() {
			if _, exists := config.Keybindings[action]; !exists {
				config.Keybindings[action] = keys
			}
		}
		if err := validateKeybindings(config.Keybindings); err != nil {
			logger.Warn().Err(err).Msg("invalid keybindings, using defaults")
			config.Keybindings = GetDefaultKeybindings()
			warnings = append(warnings, fmt.Sprintf("Keybinding errors: %v", err))
		}
	}

	return warnings
}

func saveConfigToPath(config Config, configPath string) {
	// Don't save if size is too small
	if config.WindowWidth < minWidth || config.WindowHeight < minHeight {
		logger.Warn().Msgf("not saving config with invalid window size: %dx%d",
			config.WindowWidth, config.WindowHeight)
		return
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal config")
		return
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		logger.Error().Err(err).Str("path", configPath).Msg("failed to save config")
	}
}

// ConfigManager holds the active configuration and reloads it when the
// file changes on disk.
type ConfigManager struct {
	mu        sync.RWMutex
	path      string
	result    ConfigLoadResult
	callbacks []func(Config)
	watcher   *viper.Viper
}

// NewConfigManager loads the configuration at path.
func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{
		path:   path,
		result: loadConfigFromPath(path),
	}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.result.Config
}

func (m *ConfigManager) Result() ConfigLoadResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.result
}

// OnChange registers a callback run after every successful reload.
func (m *ConfigManager) OnChange(fn func(Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Watch starts watching the config file. A missing file is not watched.
func (m *ConfigManager) Watch() {
	if _, err := os.Stat(m.path); err != nil {
		debugLog("config %s not watched: %v", m.path, err)
		return
	}
	m.watcher = newConfigViper(m.path)
	if err := m.watcher.ReadInConfig(); err != nil {
		logger.Warn().Err(err).Str("path", m.path).Msg("config not watched")
		return
	}
	m.watcher.OnConfigChange(m.handleChange)
	m.watcher.WatchConfig()
}

func (m *ConfigManager) handleChange(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	result := loadConfigFromPath(m.path)
	if result.HasError {
		logger.Warn().Strs("warnings", result.Warnings).Msg("config reload rejected")
		return
	}

	m.mu.Lock()
	m.result = result
	callbacks := append([]func(Config){}, m.callbacks...)
	m.mu.Unlock()

	logger.Info().Str("path", m.path).Msg("config reloaded")
	for _, fn := range callbacks {
		fn(result.Config)
	}
}
