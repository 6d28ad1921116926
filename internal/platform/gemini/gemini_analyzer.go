// Package gemini implements the analysis.Analyzer interface backed by the
// Google Gemini API. It adapts provider responses and refusals to the
// sentinel errors the pipeline understands.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/vaultrelay/relay-api/internal/analysis"
	"github.com/vaultrelay/relay-api/internal/config"
)

// GeminiAnalyzer processes decrypted payloads through the Gemini API.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
	prompt string
	logger *slog.Logger
}

// Ensure GeminiAnalyzer implements the analysis.Analyzer interface
var _ analysis.Analyzer = (*GeminiAnalyzer)(nil)

// ClientOption overrides client construction, used by tests to point the
// analyzer at a stub server.
type ClientOption func(*genai.ClientConfig)

// WithHTTPOptions overrides the API endpoint settings.
func WithHTTPOptions(opts genai.HTTPOptions) ClientOption {
	return func(cc *genai.ClientConfig) {
		cc.HTTPOptions = opts
	}
}

// NewGeminiAnalyzer creates an analyzer from the analysis configuration
// section. It validates the configuration and establishes the API client;
// no network call is made until Analyze.
func NewGeminiAnalyzer(ctx context.Context, cfg config.AnalysisConfig, log *slog.Logger, opts ...ClientOption) (*GeminiAnalyzer, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: missing API key", analysis.ErrInvalidConfig)
	}
	if cfg.GeminiModel == "" {
		return nil, fmt.Errorf("%w: missing model name", analysis.ErrInvalidConfig)
	}
	if log == nil {
		return nil, fmt.Errorf("%w: nil logger", analysis.ErrInvalidConfig)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(clientConfig)
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: creating Gemini client: %v", analysis.ErrInvalidConfig, err)
	}

	return &GeminiAnalyzer{
		client: client,
		model:  cfg.GeminiModel,
		prompt: cfg.PromptTemplate,
		logger: log.With("component", "gemini_analyzer"),
	}, nil
}

// Analyze sends the plaintext to the Gemini API and returns the model reply.
// Provider refusals surface as permanent sentinel errors; transport trouble
// as ErrTransientFailure.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, plaintext string) (string, error) {
	prompt := buildPrompt(g.prompt, plaintext)

	g.logger.DebugContext(ctx, "calling Gemini API",
		"model", g.model,
		"prompt_chars", len(prompt))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", analysis.ErrTransientFailure, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates returned", analysis.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason safety", analysis.ErrContentBlocked)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty reply", analysis.ErrInvalidResponse)
	}

	g.logger.DebugContext(ctx, "Gemini API call succeeded",
		"model", g.model,
		"reply_chars", len(text))
	return text, nil
}

// buildPrompt prefixes the payload with the configured instruction template,
// if any.
func buildPrompt(template, plaintext string) string {
	if template == "" {
		return plaintext
	}
	return template + "\n\n" + plaintext
}
