// Package config handles aide configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/aide/config.yaml, /etc/aide/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "aide", "config.yaml"))
	}

	paths = append(paths, "/etc/aide/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all aide configuration.
type Config struct {
	Listen     ListenConfig    `yaml:"listen"`
	Groq       GroqConfig      `yaml:"groq"`
	Voice      VoiceConfig     `yaml:"voice"`
	Email      EmailConfig     `yaml:"email"`
	MQTT       MQTTConfig      `yaml:"mqtt"`
	Browser    BrowserConfig   `yaml:"browser"`
	Workspace  WorkspaceConfig `yaml:"workspace"`
	RunCommand RunCmdConfig    `yaml:"run_command"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	DataDir    string          `yaml:"data_dir"`
	LogLevel   string          `yaml:"log_level"`
	LogFormat  string          `yaml:"log_format"` // text (default) or json
	CORS       CORSConfig      `yaml:"cors"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// GroqConfig defines the hosted LLM API settings.
type GroqConfig struct {
	APIKey string `yaml:"api_key"`
	// Model is the chat completion model (default: llama-3.3-70b-versatile).
	Model string `yaml:"model"`
	// WhisperModel is used for audio transcription (default: whisper-large-v3).
	WhisperModel string `yaml:"whisper_model"`
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string `yaml:"base_url"`
}

// VoiceConfig defines text-to-speech settings. Transcription uses the
// Groq whisper endpoint; synthesis shells out to a local engine.
type VoiceConfig struct {
	Enabled bool `yaml:"enabled"`
	// Engine is the TTS command (default: espeak-ng on linux, say on darwin).
	Engine string `yaml:"engine"`
	// Rate is words per minute for engines that accept it (default 175).
	Rate int `yaml:"rate"`
}

// EmailConfig groups outbound SMTP and inbound IMAP account settings.
type EmailConfig struct {
	SMTP SMTPConfig `yaml:"smtp"`
	IMAP IMAPConfig `yaml:"imap"`
}

// SMTPConfig defines the outbound mail account.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"` // 465 = implicit TLS, 587 = STARTTLS
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"` // "Name <addr@host>" or bare address
}

// IMAPConfig defines the inbound mail account.
type IMAPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
}

// MQTTConfig defines the optional reminder notification broker.
type MQTTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Broker     string `yaml:"broker"`      // mqtt://host:1883 or mqtts://host:8883
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	DeviceName string `yaml:"device_name"` // topic segment (default: aide)
}

// BrowserConfig defines Chrome DevTools settings for dynamic scraping.
type BrowserConfig struct {
	// ControlURL is an existing DevTools websocket URL. When empty a
	// headless browser is launched on demand.
	ControlURL string `yaml:"control_url"`
	Headless   bool   `yaml:"headless"`
}

// WorkspaceConfig defines the assistant's root for file operations.
type WorkspaceConfig struct {
	// Path is the root directory for file actions. All file action
	// paths resolve relative to it. If empty, the user home is used.
	Path string `yaml:"path"`
	// Downloads is the directory targeted by clean_downloads
	// (default: <home>/Downloads).
	Downloads string `yaml:"downloads"`
}

// RunCmdConfig defines guarded shell execution for the run_command action.
type RunCmdConfig struct {
	// Enabled allows shell command execution. Disabled by default.
	Enabled bool `yaml:"enabled"`
	// WorkingDir sets the default working directory for commands.
	WorkingDir string `yaml:"working_dir"`
	// DeniedPatterns are substrings that block a command (e.g. "rm -rf /").
	DeniedPatterns []string `yaml:"denied_patterns"`
	// DefaultTimeoutSec is the per-command timeout in seconds (default 30).
	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
}

// SchedulerConfig defines the reminder polling loop.
type SchedulerConfig struct {
	// PollIntervalSec is how often due reminders are checked (default 60).
	PollIntervalSec int `yaml:"poll_interval_sec"`
}

// CORSConfig defines cross-origin settings for the browser UI.
type CORSConfig struct {
	// AllowedOrigins defaults to ["*"] for local single-user use.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration usable without a config file
// (the Groq API key may also come from the GROQ_API_KEY environment
// variable).
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Groq: GroqConfig{
			APIKey:       os.Getenv("GROQ_API_KEY"),
			Model:        "llama-3.3-70b-versatile",
			WhisperModel: "whisper-large-v3",
		},
		Voice: VoiceConfig{
			Enabled: true,
			Rate:    175,
		},
		MQTT: MQTTConfig{
			DeviceName: "aide",
		},
		RunCommand: RunCmdConfig{
			DefaultTimeoutSec: 30,
		},
		Scheduler: SchedulerConfig{
			PollIntervalSec: 60,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}
