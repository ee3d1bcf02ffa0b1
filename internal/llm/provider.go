// Package llm sends review chunks to a language model and turns its JSON
// answer into validated issues.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/sentinelreview/sentinel/pkg/models"
)

// Provider is the single capability the orchestrator needs from a model
// backend.
type Provider interface {
	Analyze(ctx context.Context, chunk *models.Chunk, ragContext, prTitle, prBody string) (*Result, error)
	Name() string
}

// Result is one chunk's worth of model output.
type Result struct {
	Issues     []models.Issue
	Model      string
	TokensUsed int
}

// Options selects and tunes the backend.
type Options struct {
	Provider          string // openai, anthropic, local
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	RequestsPerSecond float64
}

type langchainProvider struct {
	model     llms.Model
	provider  string
	modelName string
	maxTokens int
	limiter   *rate.Limiter
}

// New builds a provider from options. The rate limiter paces every call,
// shared across chunks of a job and across concurrent jobs.
func New(opts Options) (Provider, error) {
	model, modelName, err := buildModel(opts)
	if err != nil {
		return nil, err
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &langchainProvider{
		model:     model,
		provider:  opts.Provider,
		modelName: modelName,
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

func buildModel(opts Options) (llms.Model, string, error) {
	switch opts.Provider {
	case "openai", "":
		modelName := opts.Model
		if modelName == "" {
			modelName = "gpt-4o-mini"
		}
		o := []openai.Option{
			openai.WithToken(opts.APIKey),
			openai.WithModel(modelName),
		}
		if opts.BaseURL != "" {
			o = append(o, openai.WithBaseURL(opts.BaseURL))
			if strings.Contains(opts.BaseURL, "openai.azure.com") {
				o = append(o, openai.WithAPIType(openai.APITypeAzure))
			}
		}
		m, err := openai.New(o...)
		return m, modelName, err

	case "anthropic":
		modelName := opts.Model
		if modelName == "" {
			modelName = "claude-sonnet-4-20250514"
		}
		o := []anthropic.Option{
			anthropic.WithToken(opts.APIKey),
			anthropic.WithModel(modelName),
		}
		if opts.BaseURL != "" {
			o = append(o, anthropic.WithBaseURL(opts.BaseURL))
		}
		m, err := anthropic.New(o...)
		return m, modelName, err

	case "local":
		modelName := opts.Model
		if modelName == "" {
			modelName = "llama3"
		}
		o := []ollama.Option{ollama.WithModel(modelName)}
		if opts.BaseURL != "" {
			o = append(o, ollama.WithServerURL(opts.BaseURL))
		}
		m, err := ollama.New(o...)
		return m, modelName, err

	default:
		return nil, "", fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}

func (p *langchainProvider) Name() string {
	if p.provider == "" {
		return "llm"
	}
	return "llm-" + p.provider
}

func (p *langchainProvider) Analyze(ctx context.Context, chunk *models.Chunk, ragContext, prTitle, prBody string) (*Result, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	userPrompt := BuildUserPrompt(chunk, ragContext, prTitle, prBody)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	resp, err := p.model.GenerateContent(ctx, messages,
		llms.WithMaxTokens(p.maxTokens),
		llms.WithTemperature(0.1),
	)
	if err != nil {
		return nil, fmt.Errorf("llm call for chunk %d: %w", chunk.Index, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices for chunk %d", chunk.Index)
	}

	choice := resp.Choices[0]
	issues := ParseResponse(choice.Content, chunk, p.Name())

	log.Debug().
		Int("chunk", chunk.Index).
		Int("issues", len(issues)).
		Str("model", p.modelName).
		Msg("llm chunk analyzed")

	return &Result{
		Issues:     issues,
		Model:      p.modelName,
		TokensUsed: tokensUsed(choice.GenerationInfo),
	}, nil
}

func tokensUsed(info map[string]any) int {
	for _, key := range []string{"TotalTokens", "total_tokens"} {
		if v, ok := info[key]; ok {
			switch n := v.(type) {
			case int:
				return n
			case float64:
				return int(n)
			}
		}
	}
	return 0
}
