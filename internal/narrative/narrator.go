// Package narrative produces an expert written interpretation of an
// analysis using a chat-completion model.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lox/afolu/internal/httputil"
	"github.com/lox/afolu/internal/metrics"
	"github.com/lox/afolu/internal/models"
)

const (
	DefaultModel = "gpt-4o-mini"
	maxTokens    = 2000
)

var ErrMissingCredentials = errors.New("LLM API key not configured")

type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for OpenAI-compatible gateways
}

type Narrator struct {
	client openai.Client
	model  string
}

// New returns ErrMissingCredentials when no API key is configured.
func New(cfg Config, opts ...option.RequestOption) (*Narrator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingCredentials
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httputil.NewClientWithTimeout(httputil.LLMTimeout)),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return &Narrator{
		client: openai.NewClient(clientOpts...),
		model:  model,
	}, nil
}

func (n *Narrator) Model() string { return n.model }

// Narrate returns a markdown interpretation of the analysis.
func (n *Narrator) Narrate(ctx context.Context, a *models.Analysis) (string, error) {
	log.Printf("narrative: requesting analysis %s from %s", a.ID, n.model)

	resp, err := n.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(n.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(a)),
		},
		MaxCompletionTokens: openai.Int(maxTokens),
	})
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues(n.model, "error").Inc()
		return "", fmt.Errorf("chat completion: %w", err)
	}
	metrics.LLMTokensTotal.WithLabelValues(n.model).Add(float64(resp.Usage.TotalTokens))

	if len(resp.Choices) == 0 {
		metrics.LLMCallsTotal.WithLabelValues(n.model, "empty").Inc()
		return "", errors.New("no choices returned")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		metrics.LLMCallsTotal.WithLabelValues(n.model, "empty").Inc()
		return "", errors.New("empty narrative returned")
	}

	metrics.LLMCallsTotal.WithLabelValues(n.model, "ok").Inc()
	log.Printf("narrative: %s complete (%d tokens)", a.ID, resp.Usage.TotalTokens)
	return text, nil
}
