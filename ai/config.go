package ai

import (
	"errors"

	"github.com/nestmate/nestmate/internal/profile"
)

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

// NewEmbeddingConfig builds the embedding configuration from the runtime profile.
func NewEmbeddingConfig(p *profile.Profile) (*EmbeddingConfig, error) {
	if p.EmbeddingAPIKey == "" {
		return nil, errors.New("embedding api key is not configured")
	}
	return &EmbeddingConfig{
		Provider:   p.EmbeddingProvider,
		Model:      p.EmbeddingModel,
		APIKey:     p.EmbeddingAPIKey,
		BaseURL:    p.EmbeddingBaseURL,
		Dimensions: p.EmbeddingDimensions,
	}, nil
}
