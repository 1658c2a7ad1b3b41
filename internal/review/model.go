package review

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/compcluster/internal/config"
)

// systemPrompt frames every review request. It matches the analyst
// persona the scoring scale was calibrated against.
const systemPrompt = `You are an experienced business analyst and market researcher specializing in competitive analysis and market segmentation.`

// Model wraps a langchaingo chat model for cluster review prompts.
type Model struct {
	llm       llms.Model
	modelName string
}

// Compile-time check that Model implements Generator.
var _ Generator = (*Model)(nil)

// NewModel creates the review chat model for the configured provider.
func NewModel(cfg config.Pipeline) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case "ollama", "":
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported review provider: %s", cfg.Provider)
	}

	return &Model{llm: model, modelName: cfg.LLMModel}, nil
}

// Generate answers one review prompt under the analyst persona.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return response.Choices[0].Content, nil
}

// Model returns the chat model identifier.
func (m *Model) Model() string { return m.modelName }
