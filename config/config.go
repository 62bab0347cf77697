package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the static configuration for docchat. Operator-tunable
// values (sampling parameters, system instruction, chunking) live in the
// settings store instead and are re-read per request.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Model     ModelConfig     `yaml:"model"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IngestConfig holds document ingestion configuration.
type IngestConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// EmbeddingConfig holds embedding model configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "ollama", "openai", "local"
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// ModelConfig holds generation model configuration.
type ModelConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Name        string        `yaml:"name"`
	MaxTokens   int           `yaml:"max_tokens"`
	StopTokens  []string      `yaml:"stop_tokens"`
	LoadTimeout time.Duration `yaml:"load_timeout"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK            int `yaml:"top_k"`
	MaxContextChars int `yaml:"max_context_chars"`
}

// CacheConfig holds result cache configuration.
type CacheConfig struct {
	ResponseTTL  time.Duration `yaml:"response_ttl"`
	SearchTTL    time.Duration `yaml:"search_ttl"`
	MaxEntries   int           `yaml:"max_entries"`
	EmbeddingMax int           `yaml:"embedding_max"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Ingest: IngestConfig{
			Includes: []string{"**/*.pdf"},
			Excludes: []string{"**/.*/**"},
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BaseURL:   "http://localhost:11434/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 768,
			BatchSize: 32,
		},
		Model: ModelConfig{
			BaseURL:     "http://localhost:11434/v1",
			Name:        "mistral:7b-instruct",
			MaxTokens:   1500,
			StopTokens:  []string{"</s>", "[/INST]", "User:", "Query:"},
			LoadTimeout: 30 * time.Second,
		},
		Retrieve: RetrieveConfig{
			TopK:            5,
			MaxContextChars: 3000,
		},
		Cache: CacheConfig{
			ResponseTTL:  time.Hour,
			SearchTTL:    30 * time.Minute,
			MaxEntries:   1000,
			EmbeddingMax: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir looks for docchat.yaml in the given directory.
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "docchat.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	return DefaultConfig(), nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the vector index database.
func (c *Config) IndexDBPath() string {
	return filepath.Join(c.DataDir, "index.db")
}

// HistoryDBPath returns the path to the history/settings database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// ImageDir returns the directory extracted images are written to.
func (c *Config) ImageDir() string {
	return filepath.Join(c.DataDir, "images")
}

// EnsureDataDir creates the data layout if missing.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ImageDir(), 0755)
}
