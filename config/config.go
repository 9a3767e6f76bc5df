package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds runtime configuration for the moderation pipeline and the UI.
// Fields are loaded from a JSON file and may be overridden through GUARD_* environment variables.
type Config struct {
	Debug    bool   `json:"debug" mapstructure:"debug"`
	LogLevel string `json:"log_level" mapstructure:"log_level"`

	// Stream timing
	CaptureIntervalMs int `json:"capture_interval_ms" mapstructure:"capture_interval_ms"`
	AudioQuietMs      int `json:"audio_quiet_ms" mapstructure:"audio_quiet_ms"`
	AudioMaxBytes     int `json:"audio_max_bytes" mapstructure:"audio_max_bytes"`
	ErrorCooldownMs   int `json:"error_cooldown_ms" mapstructure:"error_cooldown_ms"`
	MaskHoldMs        int `json:"mask_hold_ms" mapstructure:"mask_hold_ms"`

	// Decision thresholds
	GateOn            float64 `json:"gate_on" mapstructure:"gate_on"`
	GateOff           float64 `json:"gate_off" mapstructure:"gate_off"`
	ScoreFloor        float64 `json:"score_floor" mapstructure:"score_floor"`
	KeywordConfidence float64 `json:"keyword_confidence" mapstructure:"keyword_confidence"`

	// Persistence
	RulesPath    string `json:"rules_path" mapstructure:"rules_path"`
	EventLogPath string `json:"event_log_path" mapstructure:"event_log_path"`

	// Recognition backends
	OCRBackend    string `json:"ocr_backend" mapstructure:"ocr_backend"`
	TesseractPath string `json:"tesseract_path" mapstructure:"tesseract_path"`
	OCRLanguages  string `json:"ocr_languages" mapstructure:"ocr_languages"`
	SpeechBackend string `json:"speech_backend" mapstructure:"speech_backend"`
	SpeechCommand string `json:"speech_command" mapstructure:"speech_command"`
	AudioCommand  string `json:"audio_command" mapstructure:"audio_command"`

	// Model verdict backend: rules, onnx or gemini
	ModelBackend  string `json:"model_backend" mapstructure:"model_backend"`
	ONNXModelPath string `json:"onnx_model_path" mapstructure:"onnx_model_path"`
	GeminiAPIKey  string `json:"gemini_api_key" mapstructure:"gemini_api_key"`
	GeminiModel   string `json:"gemini_model" mapstructure:"gemini_model"`

	// Remote moderation transport
	ModerationURL      string  `json:"moderation_url" mapstructure:"moderation_url"`
	ModerationRate     float64 `json:"moderation_rate" mapstructure:"moderation_rate"`
	ReconnectInitialMs int     `json:"reconnect_initial_ms" mapstructure:"reconnect_initial_ms"`
	ReconnectMaxMs     int     `json:"reconnect_max_ms" mapstructure:"reconnect_max_ms"`
	VerdictCacheSize   int     `json:"verdict_cache_size" mapstructure:"verdict_cache_size"`
	VerdictCacheTTLMs  int     `json:"verdict_cache_ttl_ms" mapstructure:"verdict_cache_ttl_ms"`
	RedisURL           string  `json:"redis_url" mapstructure:"redis_url"`

	// Local server
	ListenAddr string `json:"listen_addr" mapstructure:"listen_addr"`
	MDNS       bool   `json:"mdns" mapstructure:"mdns"`

	// Mitigation
	MaskMode  string `json:"mask_mode" mapstructure:"mask_mode"`
	MaskStyle string `json:"mask_style" mapstructure:"mask_style"`
	AlertTone bool   `json:"alert_tone" mapstructure:"alert_tone"`

	// Selection rectangle persistence (ROI)
	SelectionX int `json:"selection_x" mapstructure:"selection_x"`
	SelectionY int `json:"selection_y" mapstructure:"selection_y"`
	SelectionW int `json:"selection_w" mapstructure:"selection_w"`
	SelectionH int `json:"selection_h" mapstructure:"selection_h"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:              false,
		LogLevel:           "info",
		CaptureIntervalMs:  1000,
		AudioQuietMs:       2500,
		AudioMaxBytes:      10 * 1024 * 1024,
		ErrorCooldownMs:    2000,
		MaskHoldMs:         5000,
		GateOn:             0.7,
		GateOff:            0.4,
		ScoreFloor:         0.5,
		KeywordConfidence:  0.9,
		RulesPath:          "rules.json",
		EventLogPath:       "events.jsonl",
		OCRBackend:         "stub",
		TesseractPath:      "tesseract",
		OCRLanguages:       "kor+eng",
		SpeechBackend:      "stub",
		ModelBackend:       "rules",
		GeminiModel:        "gemini-1.5-flash",
		ModerationRate:     5,
		ReconnectInitialMs: 1000,
		ReconnectMaxMs:     5000,
		VerdictCacheSize:   256,
		VerdictCacheTTLMs:  60000,
		ListenAddr:         "127.0.0.1:7878",
		MaskMode:           "roi",
		MaskStyle:          "opaque",
		AlertTone:          true,
	}
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	d := DefaultConfig()
	if c.CaptureIntervalMs <= 0 {
		c.CaptureIntervalMs = d.CaptureIntervalMs
	}
	if c.AudioQuietMs <= 0 {
		c.AudioQuietMs = d.AudioQuietMs
	}
	if c.AudioMaxBytes <= 0 {
		c.AudioMaxBytes = d.AudioMaxBytes
	}
	if c.ErrorCooldownMs <= 0 {
		c.ErrorCooldownMs = d.ErrorCooldownMs
	}
	if c.MaskHoldMs < 0 {
		c.MaskHoldMs = d.MaskHoldMs
	}
	if c.GateOn <= 0 || c.GateOn > 1 {
		c.GateOn = d.GateOn
	}
	// OFF must stay strictly below ON or the latch degenerates into a single threshold.
	if c.GateOff < 0 || c.GateOff >= c.GateOn {
		c.GateOff = d.GateOff
		if c.GateOff >= c.GateOn {
			c.GateOff = c.GateOn / 2
		}
	}
	if c.ScoreFloor < 0 || c.ScoreFloor > 1 {
		c.ScoreFloor = d.ScoreFloor
	}
	if c.KeywordConfidence <= 0 || c.KeywordConfidence > 1 {
		c.KeywordConfidence = d.KeywordConfidence
	}
	if strings.TrimSpace(c.RulesPath) == "" {
		c.RulesPath = d.RulesPath
	}
	if strings.TrimSpace(c.EventLogPath) == "" {
		c.EventLogPath = d.EventLogPath
	}
	switch c.OCRBackend {
	case "stub", "tesseract", "gemini":
	default:
		c.OCRBackend = d.OCRBackend
	}
	switch c.SpeechBackend {
	case "stub", "command":
	default:
		c.SpeechBackend = d.SpeechBackend
	}
	switch c.ModelBackend {
	case "rules", "onnx", "gemini":
	default:
		c.ModelBackend = d.ModelBackend
	}
	if c.ModerationRate <= 0 {
		c.ModerationRate = d.ModerationRate
	}
	if c.ReconnectInitialMs <= 0 {
		c.ReconnectInitialMs = d.ReconnectInitialMs
	}
	if c.ReconnectMaxMs < c.ReconnectInitialMs {
		c.ReconnectMaxMs = c.ReconnectInitialMs
	}
	if c.VerdictCacheSize <= 0 {
		c.VerdictCacheSize = d.VerdictCacheSize
	}
	if c.VerdictCacheTTLMs <= 0 {
		c.VerdictCacheTTLMs = d.VerdictCacheTTLMs
	}
	if c.MaskMode != "roi" && c.MaskMode != "lines" {
		c.MaskMode = d.MaskMode
	}
	if c.MaskStyle != "opaque" && c.MaskStyle != "mosaic" {
		c.MaskStyle = d.MaskStyle
	}
	if c.SelectionW < 0 || c.SelectionH < 0 {
		c.SelectionW, c.SelectionH = 0, 0
	}
	return nil
}

func (c *Config) CaptureInterval() time.Duration {
	return time.Duration(c.CaptureIntervalMs) * time.Millisecond
}

func (c *Config) AudioQuiet() time.Duration {
	return time.Duration(c.AudioQuietMs) * time.Millisecond
}

func (c *Config) ErrorCooldown() time.Duration {
	return time.Duration(c.ErrorCooldownMs) * time.Millisecond
}

func (c *Config) MaskHold() time.Duration {
	return time.Duration(c.MaskHoldMs) * time.Millisecond
}

func (c *Config) ReconnectInitial() time.Duration {
	return time.Duration(c.ReconnectInitialMs) * time.Millisecond
}

func (c *Config) ReconnectMax() time.Duration {
	return time.Duration(c.ReconnectMaxMs) * time.Millisecond
}

func (c *Config) VerdictCacheTTL() time.Duration {
	return time.Duration(c.VerdictCacheTTLMs) * time.Millisecond
}

// Load reads configuration from the given JSON file path. If the file does not
// exist it returns DefaultConfig(). On decode error it returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			_ = cfg.Validate()
			return cfg, nil
		}
		return cfg, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return DefaultConfig(), err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Watch re-reads the file on every change and hands the validated result to fn.
// Decode failures are passed through with a nil config so callers can log them.
func Watch(path string, fn func(*Config, error)) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		fn(nil, err)
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := DefaultConfig()
		if err := v.Unmarshal(cfg); err != nil {
			fn(nil, err)
			return
		}
		_ = cfg.Validate()
		fn(cfg, nil)
	})
	v.WatchConfig()
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("GUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper already knows about.
	for k, val := range defaultKeys() {
		v.SetDefault(k, val)
	}
	return v
}

func defaultKeys() map[string]any {
	raw, _ := json.Marshal(DefaultConfig())
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return out
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
