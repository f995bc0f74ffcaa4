package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/safetycheck/safetycheck/internal/models"
	"github.com/safetycheck/safetycheck/internal/retry"
)

// Analyzer assesses a canonical post for scam/misinformation risk.
type Analyzer interface {
	Analyze(ctx context.Context, post *models.CanonicalPost) (*models.SafetyAnalysisResult, error)

	// Invocations reports how many reasoning-API calls were issued.
	Invocations() int64
}

// chatClient is the slice of the OpenAI client the service needs; tests
// substitute a scripted implementation.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds reasoning-API parameters.
type Config struct {
	APIKey            string
	Model             string
	Temperature       float32
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             retry.Policy
}

// DefaultConfig returns sensible defaults for safety analysis.
func DefaultConfig() Config {
	return Config{
		Model:             openai.GPT4oMini,
		Temperature:       0.2, // low temperature for consistent scoring
		MaxTokens:         1500,
		Timeout:           60 * time.Second,
		RequestsPerSecond: 2,
		Retry:             retry.DefaultPolicy(),
	}
}

// ConfigFromEnv builds config from environment variables over the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.APIKey = os.Getenv("OPENAI_API_KEY")

	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.Model = model
	}
	if tempStr := os.Getenv("OPENAI_TEMPERATURE"); tempStr != "" {
		if temp, err := strconv.ParseFloat(tempStr, 32); err == nil {
			cfg.Temperature = float32(temp)
		}
	}
	if v := os.Getenv("ANALYSIS_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Timeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("ANALYSIS_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retry.MaxAttempts = n
		}
	}

	return cfg
}

// Service drives the external reasoning API with retry, backoff, an outbound
// courtesy limiter, and a schema-valid fallback on exhaustion.
type Service struct {
	client      chatClient
	config      Config
	prompts     *PromptTemplates
	limiter     *rate.Limiter
	logger      *slog.Logger
	invocations atomic.Int64
}

// NewService creates the OpenAI-backed analyzer.
func NewService(cfg Config, logger *slog.Logger) *Service {
	return newService(openai.NewClient(cfg.APIKey), cfg, logger)
}

func newService(client chatClient, cfg Config, logger *slog.Logger) *Service {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}

	return &Service{
		client:  client,
		config:  cfg,
		prompts: NewPromptTemplates(),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

// Analyze builds the prompt, calls the API with bounded retries, and parses
// the result. After exhausted retries or a malformed response it returns the
// neutral fallback result; the error return is reserved for context
// cancellation.
func (s *Service) Analyze(ctx context.Context, post *models.CanonicalPost) (*models.SafetyAnalysisResult, error) {
	prompt := s.prompts.BuildAnalysisPrompt(post)

	var result *models.SafetyAnalysisResult

	err := retry.Do(ctx, s.config.Retry, func() error {
		raw, err := s.invoke(ctx, prompt)
		if err != nil {
			return err
		}

		parsed, err := ParseAnalysisResponse(raw, s.config.Model)
		if err != nil {
			// Schema-violating output is permanent for this attempt chain
			return err
		}

		result = parsed
		return nil
	})

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("analysis cancelled: %w", ctx.Err())
		}

		s.logger.Warn("analysis unavailable, returning fallback result",
			"post_id", post.PostID,
			"error", err)
		return FallbackResult(s.config.Model), nil
	}

	result.AnalysisTimestamp = time.Now().UTC()
	return result, nil
}

// invoke performs one reasoning-API call, classifying failures as transient
// or permanent for the retry loop.
func (s *Service) invoke(ctx context.Context, prompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	apiCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	s.invocations.Add(1)
	start := time.Now()

	resp, err := s.client.CreateChatCompletion(apiCtx, openai.ChatCompletionRequest{
		Model:               s.config.Model,
		Temperature:         s.config.Temperature,
		MaxCompletionTokens: s.config.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.prompts.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})

	s.logger.Debug("reasoning api call",
		"duration_ms", time.Since(start).Milliseconds(),
		"success", err == nil)

	if err != nil {
		if isTransientAPIError(err) {
			return "", retry.Transient(&models.TransientAPIError{Err: err})
		}
		return "", fmt.Errorf("reasoning api call failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", retry.Transient(&models.TransientAPIError{Err: errors.New("empty completion")})
	}

	return resp.Choices[0].Message.Content, nil
}

// isTransientAPIError reports whether a failure is worth another attempt:
// rate limiting, server-side errors, and timeouts qualify.
func isTransientAPIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "Too Many Requests") ||
		strings.Contains(msg, "Rate limit") ||
		strings.Contains(msg, "timeout")
}

// Invocations reports the number of API calls issued so far.
func (s *Service) Invocations() int64 {
	return s.invocations.Load()
}

// FallbackResult is the neutral, schema-valid result returned when the
// reasoning API is unusable. Downstream consumers never special-case it.
func FallbackResult(modelVersion string) *models.SafetyAnalysisResult {
	return &models.SafetyAnalysisResult{
		RiskScore: 0.5,
		RiskLevel: models.RiskModerate,
		Summary:   "Automated analysis was unavailable for this post. The neutral score does not reflect an actual assessment.",
		KeySignals: []string{
			"automated analysis unavailable",
			"manual review recommended",
		},
		FactChecks:        []models.FactCheck{},
		AnalysisTimestamp: time.Now().UTC(),
		ModelVersion:      modelVersion + "-fallback",
	}
}
