package config

import (
	"os"

	"github.com/joho/godotenv"
)

type StorageBackend string

const (
	StorageMongo  StorageBackend = "mongo"
	StorageMemory StorageBackend = "memory"
	StorageNone   StorageBackend = "none"
)

type Config struct {
	Port string

	// Inference server
	OllamaURL    string
	DefaultModel string
	UseMockLLM   bool // true = canned replies, no server needed

	// Persistence
	StorageBackend StorageBackend
	MongoURI       string
	MongoDatabase  string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

// Load reads all env vars and builds the config. A .env file in the working
// directory is honored when present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("LLMCHAT_PORT", "8080"),

		OllamaURL:    getEnv("OLLAMA_URL", "http://localhost:11434"),
		DefaultModel: getEnv("LLMCHAT_DEFAULT_MODEL", "llama3.2:1b"),
		UseMockLLM:   getBoolEnv("LLMCHAT_USE_MOCK_LLM", false),

		MongoURI:      getEnv("MONGODB_URI", ""),
		MongoDatabase: getEnv("LLMCHAT_MONGO_DB", "llm_chat_app"),
	}

	// Backend selection: explicit env wins, otherwise mongo when a URI is
	// present and none when it is not. Persistence is a feature, not a
	// requirement.
	switch getEnv("LLMCHAT_STORAGE_BACKEND", "") {
	case "mongo":
		cfg.StorageBackend = StorageMongo
	case "memory":
		cfg.StorageBackend = StorageMemory
	case "none":
		cfg.StorageBackend = StorageNone
	default:
		if cfg.MongoURI != "" {
			cfg.StorageBackend = StorageMongo
		} else {
			cfg.StorageBackend = StorageNone
		}
	}

	if cfg.StorageBackend == StorageMongo && cfg.MongoURI == "" {
		// Cannot reach a store without a URI; degrade instead of failing.
		cfg.StorageBackend = StorageNone
	}

	return cfg
}
