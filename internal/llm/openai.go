// Package llm wraps the chat-completions API for single-function calling.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared/constant"
	"github.com/sirupsen/logrus"

	"search-agent/internal/apperrors"
	"search-agent/internal/models"
)

// FunctionSpec declares the one function the model is forced to call.
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Completion is either a function-call directive or plain text.
type Completion struct {
	Directive *models.FunctionCallDirective
	Text      string
}

type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type OpenAIClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *logrus.Logger
}

func NewOpenAIClient(opts Options, logger *logrus.Logger) (*OpenAIClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, apperrors.New(apperrors.KindCredential, "llm.new", "language model API key is missing")
	}

	requestOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		// the shared transport already retries
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		requestOpts = append(requestOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &OpenAIClient{
		client:  openai.NewClient(requestOpts...),
		model:   opts.Model,
		timeout: opts.Timeout,
		logger:  logger,
	}, nil
}

// CallFunction sends prompt as a single user message and forces the model to select fn.
func (c *OpenAIClient) CallFunction(ctx context.Context, prompt string, fn FunctionSpec) (*Completion, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	function := openai.FunctionDefinitionParam{
		Name:       fn.Name,
		Parameters: fn.Parameters,
	}
	if fn.Description != "" {
		function.Description = openai.String(fn.Description)
	}

	req := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Tools: []openai.ChatCompletionToolUnionParam{{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: function,
				Type:     constant.ValueOf[constant.Function](),
			},
		}},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: fn.Name},
			},
		},
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return nil, classify(err)
	}

	c.logger.WithFields(logrus.Fields{
		"model":       c.model,
		"duration_ms": time.Since(start).Milliseconds(),
		"tokens":      resp.Usage.TotalTokens,
	}).Info("Chat completion finished")

	if len(resp.Choices) == 0 {
		return nil, apperrors.New(apperrors.KindMalformedResponse, "llm.call", "completion has no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		return &Completion{Text: msg.Content}, nil
	}

	call := msg.ToolCalls[0]
	return &Completion{
		Directive: &models.FunctionCallDirective{
			Name:      strings.TrimSpace(call.Function.Name),
			Arguments: call.Function.Arguments,
		},
		Text: msg.Content,
	}, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return apperrors.Wrapf(apperrors.KindCredential, "llm.call", err, "language model rejected the API key (%d)", apiErr.StatusCode)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return apperrors.Wrapf(apperrors.KindQuota, "llm.call", err, "language model rate limit or quota exceeded")
		default:
			return apperrors.Wrapf(apperrors.KindNetwork, "llm.call", err, "language model request failed (%d)", apiErr.StatusCode)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrapf(apperrors.KindNetwork, "llm.call", err, "language model request timed out")
	}
	return apperrors.Wrap(apperrors.KindNetwork, "llm.call", fmt.Errorf("language model unreachable: %w", err))
}
