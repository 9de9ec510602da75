package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigFileName = "unsubkit.yaml"

// BrowserConfig selects and tunes the automation backend.
type BrowserConfig struct {
	// Backend is "playwright" or "chromedp".
	Backend  string `yaml:"backend"`
	Headless bool   `yaml:"headless"`
}

// EngineConfig carries the timing knobs of the step-execution engine.
// Zero values are replaced with defaults at load time.
type EngineConfig struct {
	MaxSteps          int           `yaml:"max_steps"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `yaml:"action_timeout"`
	ConsentBudget     time.Duration `yaml:"consent_budget"`
	ChallengeGrace    time.Duration `yaml:"challenge_grace"`
	ChallengeInterval time.Duration `yaml:"challenge_interval"`
}

// OracleConfig configures the decision-oracle client.
type OracleConfig struct {
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	PlanRetries int    `yaml:"plan_retries"`
}

type Config struct {
	Addr    string        `yaml:"addr"`
	Browser BrowserConfig `yaml:"browser"`
	Engine  EngineConfig  `yaml:"engine"`
	Oracle  OracleConfig  `yaml:"oracle"`
}

// NewDefaultConfig creates a configuration with production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Addr: ":8080",
		Browser: BrowserConfig{
			Backend:  "playwright",
			Headless: true,
		},
		Engine: EngineConfig{
			MaxSteps:          8,
			NavigationTimeout: 30 * time.Second,
			ActionTimeout:     10 * time.Second,
			ConsentBudget:     12 * time.Second,
			ChallengeGrace:    45 * time.Second,
			ChallengeInterval: 4 * time.Second,
		},
		Oracle: OracleConfig{
			Model:       "gpt-4o-mini",
			PlanRetries: 3,
		},
	}
}

// Load reads the YAML file at path (optional) on top of defaults,
// then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Oracle.APIKey = v
	}
	if v := os.Getenv("UNSUBKIT_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("UNSUBKIT_BROWSER_BACKEND"); v != "" {
		c.Browser.Backend = v
	}
	if v := os.Getenv("UNSUBKIT_HEADLESS"); v != "" {
		c.Browser.Headless = v != "false" && v != "0"
	}
	if v := os.Getenv("UNSUBKIT_ORACLE_MODEL"); v != "" {
		c.Oracle.Model = v
	}
}

func (c *Config) applyDefaults() {
	def := NewDefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.Browser.Backend == "" {
		c.Browser.Backend = def.Browser.Backend
	}
	if c.Engine.MaxSteps <= 0 {
		c.Engine.MaxSteps = def.Engine.MaxSteps
	}
	if c.Engine.NavigationTimeout <= 0 {
		c.Engine.NavigationTimeout = def.Engine.NavigationTimeout
	}
	if c.Engine.ActionTimeout <= 0 {
		c.Engine.ActionTimeout = def.Engine.ActionTimeout
	}
	if c.Engine.ConsentBudget <= 0 {
		c.Engine.ConsentBudget = def.Engine.ConsentBudget
	}
	if c.Engine.ChallengeGrace <= 0 {
		c.Engine.ChallengeGrace = def.Engine.ChallengeGrace
	}
	if c.Engine.ChallengeInterval <= 0 {
		c.Engine.ChallengeInterval = def.Engine.ChallengeInterval
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = def.Oracle.Model
	}
	if c.Oracle.PlanRetries <= 0 {
		c.Oracle.PlanRetries = def.Oracle.PlanRetries
	}
}
