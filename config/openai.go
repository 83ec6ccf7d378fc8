package config

import (
	"sync"
	"time"
)

var (
	openAIOnce   sync.Once
	openAIConfig *OpenAIConfig
)

type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxRetries  int
	Timeout     time.Duration
}

func GetOpenAIConfig() *OpenAIConfig {
	openAIOnce.Do(func() {
		loadEnv()
		openAIConfig = loadOpenAIConfig()
	})
	return openAIConfig
}

func loadOpenAIConfig() *OpenAIConfig {
	return &OpenAIConfig{
		APIKey:      envString("OPENAI_API_KEY", ""),
		Model:       envString("OPENAI_MODEL", "gpt-4o"),
		BaseURL:     envString("OPENAI_BASE_URL", ""),
		Temperature: 0.7,
		MaxRetries:  envInt("OPENAI_MAX_RETRIES", 3),
		Timeout:     envDuration("OPENAI_TIMEOUT", 2*time.Minute),
	}
}
