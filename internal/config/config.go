package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	LLM      LLMConfig      `yaml:"llm" envPrefix:"LLM_"`
	EmbedLLM LLMConfig      `yaml:"embed_llm" envPrefix:"EMBED_LLM_"`
	VectorDB VectorDBConfig `yaml:"vectordb" envPrefix:"VECTORDB_"`
	RAG      RAGConfig      `yaml:"rag" envPrefix:"RAG_"`
	Search   SearchConfig   `yaml:"search" envPrefix:"SEARCH_"`
	Persona  PersonaConfig  `yaml:"persona" envPrefix:"PERSONA_"`
	Timeouts TimeoutConfig  `yaml:"timeouts" envPrefix:"TIMEOUT_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxUploadSize   int64         `yaml:"max_upload_size" env:"MAX_UPLOAD_SIZE"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// LLMConfig is shared by the chat model and the embedding model.
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"PROVIDER"`
	BaseURL     string  `yaml:"base_url" env:"BASE_URL"`
	Key         string  `yaml:"key" env:"KEY"`
	Model       string  `yaml:"model" env:"MODEL"`
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS"`
}

type VectorDBConfig struct {
	Provider      string `yaml:"provider" env:"PROVIDER"`
	Collection    string `yaml:"collection" env:"COLLECTION"`
	Dimension     int    `yaml:"dimension" env:"DIMENSION"`
	Path          string `yaml:"path" env:"PATH"`
	InMemory      bool   `yaml:"in_memory" env:"IN_MEMORY"`
	Compress      bool   `yaml:"compress" env:"COMPRESS"`
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
	DSN           string `yaml:"dsn" env:"DSN"`
	Password      string `yaml:"password" env:"PASSWORD"`
	Driver        string `yaml:"driver" env:"DRIVER"`
	Debug         bool   `yaml:"debug" env:"DEBUG"`
}

type RAGConfig struct {
	TopK             int     `yaml:"top_k" env:"TOP_K"`
	ScoreThreshold   float32 `yaml:"score_threshold" env:"SCORE_THRESHOLD"`
	MaxHistoryLength int     `yaml:"max_history_length" env:"MAX_HISTORY_LENGTH"`
	ChunkSize        int     `yaml:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap     int     `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
}

type SearchConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	Primary       string `yaml:"primary" env:"PRIMARY"`
	MaxResults    int    `yaml:"max_results" env:"MAX_RESULTS"`
	SerperKey     string `yaml:"serper_key" env:"SERPER_KEY"`
	SerperURL     string `yaml:"serper_url" env:"SERPER_URL"`
	BingKey       string `yaml:"bing_key" env:"BING_KEY"`
	BingURL       string `yaml:"bing_url" env:"BING_URL"`
	DuckDuckGoURL string `yaml:"duckduckgo_url" env:"DUCKDUCKGO_URL"`
}

type PersonaConfig struct {
	Enabled  bool `yaml:"enabled" env:"ENABLED"`
	ChildMax int  `yaml:"child_age_max" env:"CHILD_AGE_MAX"`
	TeenMax  int  `yaml:"teen_age_max" env:"TEEN_AGE_MAX"`
}

// TimeoutConfig bounds each outbound call made while answering a query.
type TimeoutConfig struct {
	Classify time.Duration `yaml:"classify" env:"CLASSIFY"`
	Retrieve time.Duration `yaml:"retrieve" env:"RETRIEVE"`
	Search   time.Duration `yaml:"search" env:"SEARCH"`
	Generate time.Duration `yaml:"generate" env:"GENERATE"`
	Ingest   time.Duration `yaml:"ingest" env:"INGEST"`
}

type LogConfig struct {
	Level   string `yaml:"level" env:"LEVEL"`
	Console bool   `yaml:"console" env:"CONSOLE"`
}

const (
	defaultAddr            = ":8000"
	defaultCollection      = "moodle_knowledge"
	defaultDimension       = 1536
	defaultDBPath          = "./chromemdb"
	defaultTopK            = 5
	defaultTemperature     = 0.7
	defaultScoreThreshold  = 0.7
	defaultMaxHistory      = 10
	defaultChunkSize       = 1000
	defaultChunkOverlap    = 200
	defaultChildAgeMax     = 12
	defaultTeenAgeMax      = 17
	defaultMaxResults      = 5
	defaultMaxUploadSize   = 32 << 20
	defaultSerperURL       = "https://google.serper.dev/search"
	defaultBingURL         = "https://api.bing.microsoft.com/v7.0/search"
	defaultDuckDuckGoURL   = "https://api.duckduckgo.com/"
	defaultCallTimeout     = 30 * time.Second
	defaultGenerateTimeout = 120 * time.Second
)

// LoadConfig reads the YAML file, then lets a .env file and the process
// environment override individual values. A missing YAML file is not an
// error as long as the environment carries what is needed.
//
// Settings where zero is a meaningful choice are seeded before decoding, so an
// explicit 0 in the file or the environment survives applyDefaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Config{
		LLM: LLMConfig{Temperature: defaultTemperature},
		RAG: RAGConfig{
			ScoreThreshold:   defaultScoreThreshold,
			MaxHistoryLength: defaultMaxHistory,
			ChunkOverlap:     defaultChunkOverlap,
		},
		Search:  SearchConfig{Enabled: true},
		Persona: PersonaConfig{Enabled: true},
		Log:     LogConfig{Console: true},
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("path", path).Msg("Config file not found, using defaults and environment")
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 180 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 170 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.MaxUploadSize == 0 {
		c.Server.MaxUploadSize = defaultMaxUploadSize
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = "openai"
	}
	if c.EmbedLLM.Model == "" && c.EmbedLLM.Provider == "openai" {
		c.EmbedLLM.Model = "text-embedding-3-small"
	}

	if c.VectorDB.Provider == "" {
		c.VectorDB.Provider = "chromem"
	}
	if c.VectorDB.Collection == "" {
		c.VectorDB.Collection = defaultCollection
	}
	if c.VectorDB.Dimension == 0 {
		c.VectorDB.Dimension = defaultDimension
	}
	if c.VectorDB.Path == "" {
		c.VectorDB.Path = defaultDBPath
	}
	if c.VectorDB.Driver == "" {
		c.VectorDB.Driver = "pgdriver"
	}

	if c.RAG.TopK == 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = defaultChunkSize
	}

	if c.Search.Primary == "" {
		c.Search.Primary = "serper"
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = defaultMaxResults
	}
	if c.Search.SerperURL == "" {
		c.Search.SerperURL = defaultSerperURL
	}
	if c.Search.BingURL == "" {
		c.Search.BingURL = defaultBingURL
	}
	if c.Search.DuckDuckGoURL == "" {
		c.Search.DuckDuckGoURL = defaultDuckDuckGoURL
	}

	if c.Persona.ChildMax == 0 {
		c.Persona.ChildMax = defaultChildAgeMax
	}
	if c.Persona.TeenMax == 0 {
		c.Persona.TeenMax = defaultTeenAgeMax
	}

	if c.Timeouts.Classify == 0 {
		c.Timeouts.Classify = defaultCallTimeout
	}
	if c.Timeouts.Retrieve == 0 {
		c.Timeouts.Retrieve = defaultCallTimeout
	}
	if c.Timeouts.Search == 0 {
		c.Timeouts.Search = defaultCallTimeout
	}
	if c.Timeouts.Generate == 0 {
		c.Timeouts.Generate = defaultGenerateTimeout
	}
	if c.Timeouts.Ingest == 0 {
		c.Timeouts.Ingest = 5 * time.Minute
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports every impossible setting at once.
func (c *Config) Validate() error {
	var problems []string

	switch c.LLM.Provider {
	case "openai", "ollama", "anthropic":
	default:
		problems = append(problems, fmt.Sprintf("llm.provider must be openai, ollama or anthropic, got %q", c.LLM.Provider))
	}
	switch c.EmbedLLM.Provider {
	case "openai", "ollama":
	default:
		problems = append(problems, fmt.Sprintf("embed_llm.provider must be openai or ollama, got %q", c.EmbedLLM.Provider))
	}
	switch c.VectorDB.Provider {
	case "chromem":
	case "pgvector":
		if c.VectorDB.DSN == "" {
			problems = append(problems, "vectordb.dsn is required for the pgvector provider")
		}
		if c.VectorDB.Driver != "pgdriver" && c.VectorDB.Driver != "pq" {
			problems = append(problems, fmt.Sprintf("vectordb.driver must be pgdriver or pq, got %q", c.VectorDB.Driver))
		}
	default:
		problems = append(problems, fmt.Sprintf("vectordb.provider must be chromem or pgvector, got %q", c.VectorDB.Provider))
	}
	if c.VectorDB.Dimension < 1 {
		problems = append(problems, fmt.Sprintf("vectordb.dimension must be positive, got %d", c.VectorDB.Dimension))
	}
	if c.RAG.TopK < 1 {
		problems = append(problems, fmt.Sprintf("rag.top_k must be positive, got %d", c.RAG.TopK))
	}
	if c.RAG.ScoreThreshold < -1 || c.RAG.ScoreThreshold > 1 {
		problems = append(problems, fmt.Sprintf("rag.score_threshold must be within [-1,1], got %v", c.RAG.ScoreThreshold))
	}
	if c.RAG.MaxHistoryLength < 0 {
		problems = append(problems, fmt.Sprintf("rag.max_history_length must not be negative, got %d", c.RAG.MaxHistoryLength))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		problems = append(problems, fmt.Sprintf("rag.chunk_overlap (%d) must be smaller than rag.chunk_size (%d)", c.RAG.ChunkOverlap, c.RAG.ChunkSize))
	}
	if c.Persona.ChildMax > c.Persona.TeenMax {
		problems = append(problems, fmt.Sprintf("persona.child_age_max (%d) must not exceed persona.teen_age_max (%d)", c.Persona.ChildMax, c.Persona.TeenMax))
	}
	switch c.Search.Primary {
	case "serper", "bing", "duckduckgo":
	default:
		problems = append(problems, fmt.Sprintf("search.primary must be serper, bing or duckduckgo, got %q", c.Search.Primary))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
