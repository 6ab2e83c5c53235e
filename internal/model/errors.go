package model

import (
	"errors"
	"strings"

	"github.com/openai/openai-go"
)

// IsRateLimited classifies quota and rate-limit failures from the model
// provider. The knowledge retriever degrades to a zero vector on these
// instead of failing the whole turn.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 429, 503:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota")
}
