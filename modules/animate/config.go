package animate

import (
	"log"
	"os"
)

type Config struct {
	VideoAPIKey      string
	VideoAPIEndpoint string
}

func LoadConfig() *Config {
	apiKey := os.Getenv("VIDEO_API_KEY")
	if apiKey == "" {
		log.Println("Warning: VIDEO_API_KEY not set")
	}

	endpoint := os.Getenv("VIDEO_API_ENDPOINT")
	if endpoint == "" {
		endpoint = "https://api.veo3.ai/v1/generate" // Default endpoint
	}

	return &Config{
		VideoAPIKey:      apiKey,
		VideoAPIEndpoint: endpoint,
	}
}
