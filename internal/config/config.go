package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
// QueryPrefix and PassagePrefix distinguish live queries from stored passages.
type EmbedderConfig struct {
	Type          string                `yaml:"type"`
	QueryPrefix   string                `yaml:"query_prefix"`
	PassagePrefix string                `yaml:"passage_prefix"`
	OpenAI        *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// KnowledgeConfig points at the raw knowledge sources and the ingestion outputs.
type KnowledgeConfig struct {
	FAQsPath           string `yaml:"faqs_path"`
	ProductsPath       string `yaml:"products_path"`
	PoliciesPath       string `yaml:"policies_path"`
	ChunksPath         string `yaml:"chunks_path"`
	EmbeddedChunksPath string `yaml:"embedded_chunks_path"`
}

// RetrievalConfig controls how many chunks ground each answer.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// CompletionConfig configures the hosted chat-completion endpoint.
type CompletionConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSecs    int     `yaml:"timeout_secs"`
	MaxAttempts    int     `yaml:"max_attempts"`
	RetryDelaySecs int     `yaml:"retry_delay_secs"`
}

// AssistantConfig personalises the system instruction.
type AssistantConfig struct {
	Brand       string `yaml:"brand"`
	Description string `yaml:"description"`
}

// EscalationConfig configures where unanswered questions are appended.
type EscalationConfig struct {
	LogPath string `yaml:"log_path"`
}

// SessionConfig selects where per-conversation dialogue state lives.
type SessionConfig struct {
	Store      string `yaml:"store"`
	TTLMinutes int    `yaml:"ttl_minutes"`
	RedisURL   string `yaml:"redis_url"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port        string `yaml:"port"`
	CorsOrigins string `yaml:"cors_origins"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	FilePath    string `yaml:"file_path"`
	Environment string `yaml:"environment"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Completion  CompletionConfig  `yaml:"completion"`
	Assistant   AssistantConfig   `yaml:"assistant"`
	Escalation  EscalationConfig  `yaml:"escalation"`
	Session     SessionConfig     `yaml:"session"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// IsProduction reports whether logs should be emitted in production form.
func (c *AppConfig) IsProduction() bool { return c.Log.Environment == "production" }

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/supportbot/config.yaml.
// If neither exists, it writes defaults to ~/.config/supportbot/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "supportbot", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		VectorStore: VectorStoreConfig{Type: "memory"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.QueryPrefix == "" {
		cfg.Embedder.QueryPrefix = "query: "
	}
	if cfg.Embedder.PassagePrefix == "" {
		cfg.Embedder.PassagePrefix = "passage: "
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "support_chunks"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}

	k := &cfg.Knowledge
	if k.FAQsPath == "" {
		k.FAQsPath = "assets/faqs.json"
	}
	if k.ProductsPath == "" {
		k.ProductsPath = "assets/products.json"
	}
	if k.PoliciesPath == "" {
		k.PoliciesPath = "assets/policies.json"
	}
	if k.ChunksPath == "" {
		k.ChunksPath = "assets/chunks.json"
	}
	if k.EmbeddedChunksPath == "" {
		k.EmbeddedChunksPath = "assets/embedded_chunks.json"
	}

	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 3
	}

	c := &cfg.Completion
	if c.BaseURL == "" {
		c.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	if c.Model == "" {
		c.Model = "mistralai/mistral-7b-instruct"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.4
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelaySecs == 0 {
		c.RetryDelaySecs = 5
	}

	if cfg.Assistant.Brand == "" {
		cfg.Assistant.Brand = "Quantum Arc"
	}
	if cfg.Assistant.Description == "" {
		cfg.Assistant.Description = "a premium tech retailer specializing in smartphones, laptops, desktops, and accessories"
	}

	if cfg.Escalation.LogPath == "" {
		cfg.Escalation.LogPath = "assets/unanswered_queries.jsonl"
	}

	if cfg.Session.Store == "" {
		cfg.Session.Store = "memory"
	}
	if cfg.Session.TTLMinutes == 0 {
		cfg.Session.TTLMinutes = 60
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = "3000"
	}
	if cfg.Server.CorsOrigins == "" {
		cfg.Server.CorsOrigins = "*"
	}

	if cfg.Log.FilePath == "" {
		cfg.Log.FilePath = "logs/supportbot.log"
	}
	if cfg.Log.Environment == "" {
		cfg.Log.Environment = "development"
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("SUPPORTBOT_COMPLETION_MODEL"); v != "" {
		cfg.Completion.Model = v
	}
	if v := os.Getenv("SUPPORTBOT_COMPLETION_BASE_URL"); v != "" {
		cfg.Completion.BaseURL = v
	}
	if v := os.Getenv("SUPPORTBOT_SERVER_PORT"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = v
		}
	}
}
