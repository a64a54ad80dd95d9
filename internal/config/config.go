package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/ankiforge/internal/apperr"
	"github.com/TobiSchelling/ankiforge/internal/model"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	LLM        LLM        `yaml:"llm"`
	Anki       Anki       `yaml:"anki"`
	Generation Generation `yaml:"generation"`
	Web        Web        `yaml:"web"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type LLM struct {
	Provider         string  `yaml:"provider"`
	Model            string  `yaml:"model"`
	BaseURL          string  `yaml:"base_url"`
	APIKeyEnv        string  `yaml:"api_key_env"`
	Temperature      float64 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
	MaxRetries       int     `yaml:"max_retries"`
	BaseDelaySeconds float64 `yaml:"base_delay_seconds"`
	RPMLimit         int     `yaml:"rpm_limit"`
}

type Anki struct {
	URL            string `yaml:"url"`
	KeyEnv         string `yaml:"key_env"`
	UpdateMode     string `yaml:"update_mode"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Generation struct {
	TargetTotal    int                   `yaml:"target_total"`
	StrategyMix    []model.StrategyRatio `yaml:"strategy_mix"`
	Deck           string                `yaml:"deck"`
	Tags           []string              `yaml:"tags"`
	AutoSplit      bool                  `yaml:"auto_split"`
	SplitThreshold int                   `yaml:"split_threshold"`
	Workers        int                   `yaml:"workers"`
	MaxWorkers     int                   `yaml:"max_workers"`
	Adaptive       bool                  `yaml:"adaptive"`
}

type Web struct {
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	MaxPerFeed     int  `yaml:"max_per_feed"`
	DaysBack       int  `yaml:"days_back"`
	FullContent    bool `yaml:"full_content"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

var providers = map[string]bool{
	"openai":            true,
	"openai_compatible": true,
	"deepseek":          true,
	"anthropic":         true,
	"ollama":            true,
}

var updateModes = map[string]bool{
	"create_only":      true,
	"update_only":      true,
	"create_or_update": true,
}

// ConfigDir returns the XDG config directory for ankiforge.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "ankiforge")
}

// DataDir returns the XDG data directory for ankiforge.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "ankiforge")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/ankiforge/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'ankiforge init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg, err := parse(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		LLM: LLM{
			Provider:         "openai",
			Model:            "gpt-4o-mini",
			APIKeyEnv:        "OPENAI_API_KEY",
			Temperature:      0.3,
			TimeoutSeconds:   60,
			MaxRetries:       3,
			BaseDelaySeconds: 1,
		},
		Anki: Anki{
			URL:            "http://127.0.0.1:8765",
			KeyEnv:         "ANKICONNECT_KEY",
			UpdateMode:     "create_only",
			TimeoutSeconds: 30,
		},
		Generation: Generation{
			TargetTotal:    20,
			Deck:           "Default",
			Tags:           []string{"ankismart"},
			AutoSplit:      true,
			SplitThreshold: 70000,
			MaxWorkers:     8,
			Adaptive:       true,
		},
		Web: Web{
			TimeoutSeconds: 15,
			MaxPerFeed:     20,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate reports the first invalid setting as an E_CONFIG_INVALID error.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperr.New(apperr.ConfigInvalid, "", format, args...)
	}

	if !providers[strings.ToLower(c.LLM.Provider)] {
		return invalid("unknown llm.provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return invalid("llm.model is required")
	}
	if c.LLM.MaxTokens < 0 || c.LLM.TimeoutSeconds < 0 || c.LLM.RPMLimit < 0 || c.LLM.BaseDelaySeconds < 0 {
		return invalid("llm numeric settings must not be negative")
	}
	if c.LLM.MaxRetries < 1 {
		return invalid("llm.max_retries must be at least 1, got %d", c.LLM.MaxRetries)
	}
	if !updateModes[c.Anki.UpdateMode] {
		return invalid("unknown anki.update_mode %q", c.Anki.UpdateMode)
	}
	if c.Generation.TargetTotal < 0 {
		return invalid("generation.target_total must not be negative")
	}
	if c.Generation.Workers < 0 || c.Generation.MaxWorkers < 0 {
		return invalid("generation worker counts must not be negative")
	}
	if c.Generation.AutoSplit && c.Generation.SplitThreshold <= 0 {
		return invalid("generation.split_threshold must be positive when auto_split is on")
	}
	if c.Web.TimeoutSeconds < 0 || c.Web.MaxPerFeed < 0 || c.Web.DaysBack < 0 {
		return invalid("web numeric settings must not be negative")
	}
	for _, item := range c.Generation.StrategyMix {
		if item.Ratio < 0 {
			return invalid("strategy %q has negative ratio", item.Strategy)
		}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// APIKey reads the provider key from the configured environment variable.
func (l LLM) APIKey() string {
	if l.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}

func (l LLM) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

func (l LLM) BaseDelay() time.Duration {
	return time.Duration(l.BaseDelaySeconds * float64(time.Second))
}

// Key reads the AnkiConnect key, if any.
func (a Anki) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

func (w Web) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

func (a Anki) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
