package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type LLM struct {
	UseExternalAPI bool   `yaml:"UseExternalAPI"` // true: OpenAI-compatible API, false: local Ollama
	Endpoint       string `yaml:"Endpoint"`       // base URL of the inference endpoint
	APIKey         string `yaml:"APIKey"`         // only used by the external API backend
	Model          string `yaml:"Model"`          // e.g. llama3.1, gpt-4o
	ChunkSize      int    `yaml:"ChunkSize"`      // max characters per transcript chunk
	ChunkThreshold int    `yaml:"ChunkThreshold"` // transcripts longer than this go through the chunked path
	ContextSize    int    `yaml:"ContextSize"`    // context window size requested per generation
	MaxRetries     int    `yaml:"MaxRetries"`     // retries for network/timeout failures per model call
	TimeoutSeconds int    `yaml:"TimeoutSeconds"` // per-call deadline
}

type Store struct {
	DataDir       string `yaml:"DataDir"`       // meeting library root, default "data"
	RetentionDays int    `yaml:"RetentionDays"` // chunk artifacts older than this are pruned, 0 = keep forever
	CleanupCron   string `yaml:"CleanupCron"`   // cron expression for the retention sweep
}

type Watcher struct {
	Enable   bool   `yaml:"Enable"`
	InboxDir string `yaml:"InboxDir"` // directory watched for dropped transcript files
}

type Config struct {
	Sock5Proxy Sock5Proxy `yaml:"Sock5Proxy"`
	LLM        LLM        `yaml:"LLM"`
	Store      Store      `yaml:"Store"`
	Watcher    Watcher    `yaml:"Watcher"`
}

func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return nil, err
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.LLM.ChunkSize == 0 {
		c.LLM.ChunkSize = 10_000
	}
	if c.LLM.ChunkThreshold == 0 {
		c.LLM.ChunkThreshold = 10_000
	}
	if c.LLM.ContextSize == 0 {
		c.LLM.ContextSize = 8096
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 120
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "data"
	}
	if c.Store.CleanupCron == "" {
		c.Store.CleanupCron = "0 3 * * *"
	}
	if c.Watcher.InboxDir == "" {
		c.Watcher.InboxDir = "inbox"
	}
}

// Validate checks the configuration before anything consumes it.
func (c *Config) Validate() error {
	if c.LLM.Endpoint == "" {
		return fmt.Errorf("LLM.Endpoint must not be empty")
	}
	if !strings.HasPrefix(c.LLM.Endpoint, "http://") && !strings.HasPrefix(c.LLM.Endpoint, "https://") {
		return fmt.Errorf("LLM.Endpoint must be an HTTP or HTTPS URL")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM.Model must not be empty")
	}
	if c.LLM.UseExternalAPI && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM.APIKey must not be empty when UseExternalAPI is enabled")
	}
	if c.LLM.ChunkSize <= 0 {
		return fmt.Errorf("LLM.ChunkSize must be greater than 0")
	}
	if c.LLM.ChunkSize > 50_000 {
		return fmt.Errorf("LLM.ChunkSize too large (max 50000 characters)")
	}
	if c.LLM.ChunkThreshold <= 0 {
		return fmt.Errorf("LLM.ChunkThreshold must be greater than 0")
	}
	if c.LLM.ContextSize <= 0 {
		return fmt.Errorf("LLM.ContextSize must be greater than 0")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("LLM.MaxRetries must be >= 0")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("LLM.TimeoutSeconds must be greater than 0")
	}
	if c.LLM.TimeoutSeconds > 3600 {
		return fmt.Errorf("LLM.TimeoutSeconds too large (max 3600 seconds)")
	}
	if c.Store.RetentionDays < 0 {
		return fmt.Errorf("Store.RetentionDays must be >= 0")
	}
	return nil
}
