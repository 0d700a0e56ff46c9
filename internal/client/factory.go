package client

import (
	"fmt"

	"github.com/docpipe/api/internal/config"
	"github.com/docpipe/api/internal/llm"
	"github.com/docpipe/api/internal/model"
)

// NewGeneratorFactory builds provider clients on demand from the process
// configuration. A stage may override the model name; credentials and base
// URLs always come from config.
func NewGeneratorFactory(openai, gemini config.ProviderConfig) llm.GeneratorFactory {
	return func(family model.Provider, modelName string) (llm.Generator, error) {
		switch family {
		case model.ProviderOpenAI:
			pc := openai
			if modelName != "" {
				pc.Model = modelName
			}
			return NewOpenAIClient(&pc), nil
		case model.ProviderGemini:
			pc := gemini
			if modelName != "" {
				pc.Model = modelName
			}
			return NewGeminiClient(&pc), nil
		default:
			return nil, fmt.Errorf("unknown provider family %q", family)
		}
	}
}
