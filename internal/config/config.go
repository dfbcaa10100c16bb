package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	API      API      `mapstructure:"api"`
	Scrape   Scrape   `mapstructure:"scrape"`
	LLM      LLM      `mapstructure:"llm"`
}

// Server holds HTTP server configuration
type Server struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORS         CORS          `mapstructure:"cors"`
}

// CORS holds CORS middleware configuration
type CORS struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Database holds the sqlite store configuration
type Database struct {
	DataDir string `mapstructure:"data_dir"`
}

// API holds the article API location as seen by the enhancement job
type API struct {
	BaseURL string `mapstructure:"base_url"`
}

// Scrape holds source-site scraping configuration
type Scrape struct {
	BaseURL       string        `mapstructure:"base_url"`
	MaxReferences int           `mapstructure:"max_references"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// LLM holds text-generation backend configuration
type LLM struct {
	Backend  string `mapstructure:"backend"` // openai, ollama or gemini
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
}

// Load reads configuration from an optional yaml file, a local .env file and
// the environment. An empty cfgFile searches for .repub.yaml in the current
// and home directories. Environment variables win over file values.
func Load(cfgFile string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigType("yaml")
		v.SetConfigName(".repub")
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; everything has defaults or env values.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = inferBackend(cfg.LLM.Endpoint)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.cors.enabled", true)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})

	v.SetDefault("database.data_dir", "data")

	v.SetDefault("api.base_url", "http://localhost:8000/api")

	v.SetDefault("scrape.base_url", "https://beyondchats.com/blogs/")
	v.SetDefault("scrape.max_references", 2)
	v.SetDefault("scrape.timeout", 30*time.Second)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	v.SetDefault("llm.backend", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("REPUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy env surface shared with the node-era deployment.
	_ = v.BindEnv("api.base_url", "REPUB_API_URL")
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = v.BindEnv("llm.endpoint", "LLM_API_URL")
	_ = v.BindEnv("llm.model", "LLM_MODEL")
	_ = v.BindEnv("llm.backend", "LLM_BACKEND")
}

// inferBackend keeps old .env files working when llm.backend is unset.
// Configuration should name the backend explicitly.
func inferBackend(endpoint string) string {
	switch {
	case strings.Contains(endpoint, "generativelanguage.googleapis.com"), strings.Contains(endpoint, "gemini"):
		return "gemini"
	case strings.Contains(endpoint, "localhost:11434"), strings.Contains(endpoint, "ollama"):
		return "ollama"
	default:
		return "openai"
	}
}
