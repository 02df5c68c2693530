package persona

import (
	"fmt"

	"github.com/Harshitk-cp/refinery/internal/domain"
)

// Provider constants
const (
	ProviderCatalog = "catalog"
	ProviderOpenAI  = "openai"
	ProviderMock    = "mock"
)

// NewSource creates a persona source based on the provider name.
// Returns an error if the provider is unknown or the API key is empty for a
// hosted provider.
func NewSource(provider, apiKey string) (domain.PersonaSource, error) {
	switch provider {
	case "", ProviderCatalog:
		return NewCatalog(), nil

	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI persona provider")
		}
		return NewOpenAISource(apiKey), nil

	case ProviderMock:
		return NewMockSource(), nil

	default:
		return nil, fmt.Errorf("unknown persona provider: %s (valid options: catalog, openai, mock)", provider)
	}
}
