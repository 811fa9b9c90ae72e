package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LLMProvider holds connection details for one OpenAI-compatible LLM
// endpoint. In config.yaml the APIKey field names the environment
// variable holding the real key; LoadConfig swaps the value in.
type LLMProvider struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Database struct {
		DSN string `mapstructure:"dsn"` // "memory" or a SQLite file path
	} `mapstructure:"database"`
	Forum struct {
		BaseURL string `mapstructure:"base_url"` // public URL root for permalinks
	} `mapstructure:"forum"`
	AIAPI struct {
		BaseURL        string `mapstructure:"base_url"`
		APIKey         string `mapstructure:"api_key"` // env var name, swapped at load
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"ai_api"`
	Scheduler struct {
		PollIntervalSeconds   int `mapstructure:"poll_interval_seconds"`
		ReconcileIntervalSecs int `mapstructure:"reconcile_interval_seconds"`
	} `mapstructure:"scheduler"`
	Chat struct {
		MaxConversationsPerUser int    `mapstructure:"max_conversations_per_user"`
		SystemPrompt            string `mapstructure:"system_prompt"`
		Model                   string `mapstructure:"model"`
	} `mapstructure:"chat"`
	Auth struct {
		NonceSecret string `mapstructure:"nonce_secret"` // env var name, swapped at load
		AdminToken  string `mapstructure:"admin_token"`  // env var name, swapped at load
	} `mapstructure:"auth"`
	LLMProviders map[string]LLMProvider `mapstructure:"llm_providers"` // provider key -> endpoint
	LLMModels    map[string]string      `mapstructure:"llm_models"`    // model name -> provider key
}

// AppConfig is the global configuration instance.
var AppConfig Config

// LoadConfig loads configuration from config.yaml and environment
// variables. API keys and secrets are always read from the environment;
// the YAML only names the variable to read.
func LoadConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../config") // for running from test directories

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("database.dsn", "memory")
	viper.SetDefault("ai_api.timeout_seconds", 60)
	viper.SetDefault("scheduler.poll_interval_seconds", 60)
	viper.SetDefault("scheduler.reconcile_interval_seconds", 3600)
	viper.SetDefault("chat.max_conversations_per_user", 10)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("WARN: [Config] Configuration file (config.yaml) not found. Using environment variables and defaults.")
		} else {
			log.Fatalf("FATAL: [Config] Error reading configuration file: %v", err)
		}
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("FATAL: [Config] Failed to unmarshal configuration into AppConfig struct: %v", err)
	}

	// Environment variable overrides for plain settings.
	if port := os.Getenv("SERVER_PORT"); port != "" {
		AppConfig.Server.Port = port
		log.Printf("INFO: [Config] Server port overridden by environment variable SERVER_PORT: %s", port)
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		AppConfig.Database.DSN = dsn
	}
	if base := os.Getenv("AI_API_BASE_URL"); base != "" {
		AppConfig.AIAPI.BaseURL = base
	}

	// Secrets: the config field names the env var carrying the value.
	AppConfig.AIAPI.APIKey = resolveSecret("AI API key", AppConfig.AIAPI.APIKey, "AI_API_KEY")
	AppConfig.Auth.NonceSecret = resolveSecret("nonce secret", AppConfig.Auth.NonceSecret, "NONCE_SECRET")
	AppConfig.Auth.AdminToken = resolveSecret("admin token", AppConfig.Auth.AdminToken, "ADMIN_TOKEN")

	for providerKey, providerConfig := range AppConfig.LLMProviders {
		envVarName := providerConfig.APIKey
		if envValue := os.Getenv(envVarName); envValue != "" {
			updated := providerConfig
			updated.APIKey = envValue
			AppConfig.LLMProviders[providerKey] = updated
			log.Printf("INFO: [Config] Loaded API key for LLM provider '%s' from environment variable '%s'.", providerKey, envVarName)
		} else if envVarName != "" && strings.HasSuffix(envVarName, "_KEY") {
			log.Printf("WARN: [Config] API key for LLM provider '%s' (env var '%s') is not set.", providerKey, envVarName)
		}
	}

	log.Println("INFO: [Config] Configuration loading complete.")
}

// resolveSecret follows the "field names the env var" convention: if the
// configured value looks like an env var name and that variable is set,
// the variable's value wins; a well-known default variable is tried next.
func resolveSecret(what, configured, defaultEnv string) string {
	if configured != "" {
		if v := os.Getenv(configured); v != "" {
			log.Printf("INFO: [Config] Loaded %s from environment variable '%s'.", what, configured)
			return v
		}
	}
	if v := os.Getenv(defaultEnv); v != "" {
		log.Printf("INFO: [Config] Loaded %s from environment variable '%s'.", what, defaultEnv)
		return v
	}
	if configured == "" {
		log.Printf("WARN: [Config] %s is not configured.", what)
	}
	return configured
}
