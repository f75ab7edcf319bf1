package prompt

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"aiclock/core"
	"aiclock/logging"
)

const enhanceSystemPrompt = "You write prompts for a Stable Diffusion model that paints the " +
	"background of an analog clock. Rewrite the user's prompt into one vivid, concrete scene " +
	"description of at most 60 words. Keep the time and clockwork theme. Reply with the prompt only, " +
	"no quotes, no preamble."

// maxPromptBytes keeps enhanced prompts inside what the diffusion runtime
// accepts.
const maxPromptBytes = 1000

// EnhancedSource rewrites classic prompts with an OpenAI-compatible chat
// model (OpenAI, LM Studio, Ollama).
type EnhancedSource struct {
	client *openai.Client
	base   *ClassicSource
	cfg    core.LLMConfig
	logger *logging.Logger
}

// NewEnhancedSource creates an enhancer for cfg. base supplies the prompt
// that gets rewritten and the fallback when FallbackOnError is set.
func NewEnhancedSource(cfg core.LLMConfig, base *ClassicSource, logger *logging.Logger) (*EnhancedSource, error) {
	if cfg.BaseURL == "" && cfg.APIKey == "" {
		return nil, ErrEnhancerUnavailable
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("prompt: LLM model is required")
	}
	if base == nil {
		base = NewClassicSource(nil)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout()}

	return &EnhancedSource{
		client: openai.NewClientWithConfig(clientConfig),
		base:   base,
		cfg:    cfg,
		logger: logger.Named("prompt"),
	}, nil
}

// Generate returns the rewritten prompt and how long the LLM took. On LLM
// failure the classic prompt is returned with a zero duration if
// FallbackOnError is set, otherwise the error.
func (s *EnhancedSource) Generate(ctx context.Context) (string, time.Duration, error) {
	seed := s.base.Prompt()

	if s.cfg.Timeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout())
		defer cancel()
	}

	start := time.Now()
	enhanced, err := s.enhance(ctx, seed)
	elapsed := time.Since(start)
	if err != nil {
		if s.cfg.FallbackOnError {
			s.logger.Warn("prompt enhancement failed, using classic prompt",
				zap.Error(err), zap.Duration("elapsed", elapsed))
			return seed, 0, nil
		}
		return "", elapsed, err
	}

	s.logger.Debug("prompt enhanced",
		zap.String("model", s.cfg.Model),
		zap.Duration("elapsed", elapsed),
		zap.String("prompt", logging.PromptPreview(enhanced)),
	)
	return enhanced, elapsed, nil
}

func (s *EnhancedSource) enhance(ctx context.Context, seed string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: enhanceSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: seed},
		},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: float32(s.cfg.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("prompt: enhance: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := cleanCompletion(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// cleanCompletion strips the wrapping quotes and labels chat models like to
// add and clips the result to maxPromptBytes on a word boundary.
func cleanCompletion(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimPrefix(s, "Prompt:")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSpace(s)
	if len(s) <= maxPromptBytes {
		return s
	}
	cut := strings.LastIndexByte(s[:maxPromptBytes], ' ')
	if cut <= 0 {
		cut = maxPromptBytes
	}
	return strings.TrimSpace(s[:cut])
}
