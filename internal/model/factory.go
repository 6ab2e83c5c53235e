package model

import (
	"errors"
	"fmt"
	"strings"
)

// NewClient selects a model backend. "auto" prefers OpenAI when an API key is
// present and falls back to the deterministic mock otherwise.
func NewClient(mode string, cfg OpenAIConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenAIClient(cfg), nil
		}
		return NewMockClient(cfg.EmbeddingDim), nil
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("OPENAI_API_KEY is required for openai mode")
		}
		return NewOpenAIClient(cfg), nil
	case "mock":
		return NewMockClient(cfg.EmbeddingDim), nil
	default:
		return nil, fmt.Errorf("unsupported model mode %q", mode)
	}
}
