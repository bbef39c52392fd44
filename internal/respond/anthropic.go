package respond

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/xwatch/internal/store"
	"github.com/ibeckermayer/xwatch/internal/types"
)

const (
	providerAnthropic = "anthropic"
	maxReplyChars     = 280
	defaultTimeout    = 60 * time.Second
)

// ExchangeRecorder keeps prompt/response pairs for debugging
type ExchangeRecorder interface {
	SaveExchange(ctx context.Context, ex store.LLMExchange) error
}

// AnthropicOptions configures AnthropicPolicy
type AnthropicOptions struct {
	APIKey    string
	Model     string
	MaxTokens int
	Persona   string
	BaseURL   string        // empty uses the SDK default
	Timeout   time.Duration // per request, zero means one minute
}

// AnthropicPolicy generates replies with Anthropic's Messages API
type AnthropicPolicy struct {
	client   *anthropic.Client
	opts     AnthropicOptions
	recorder ExchangeRecorder
	log      zerolog.Logger
}

// NewAnthropicPolicy creates a policy. recorder may be nil.
func NewAnthropicPolicy(opts AnthropicOptions, recorder ExchangeRecorder, log zerolog.Logger) *AnthropicPolicy {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	client := anthropic.NewClient(reqOpts...)
	return &AnthropicPolicy{
		client:   &client,
		opts:     opts,
		recorder: recorder,
		log:      log.With().Str("component", "respond").Logger(),
	}
}

// Generate asks the model for a reply to item
func (p *AnthropicPolicy) Generate(ctx context.Context, item types.CollectedItem) (string, error) {
	prompt := BuildPrompt(item, p.opts.Persona, maxReplyChars)

	reqCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	message, err := p.client.Messages.New(reqCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.opts.Model),
		MaxTokens: int64(p.opts.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})

	var responseText string
	if err == nil {
		for _, block := range message.Content {
			if block.Type == "text" {
				responseText = strings.TrimSpace(block.Text)
				break
			}
		}
	}

	p.record(ctx, item.ID, prompt, responseText, err)

	if err != nil {
		return "", &types.PolicyError{ItemID: item.ID, Reason: "request failed", Err: err}
	}
	if IsDecline(responseText) {
		return "", &types.PolicyError{ItemID: item.ID, Reason: "placeholder response"}
	}
	if n := len([]rune(responseText)); n > maxReplyChars {
		return "", &types.PolicyError{ItemID: item.ID, Reason: "reply too long", Err: errors.New("over character limit")}
	}
	return responseText, nil
}

func (p *AnthropicPolicy) record(ctx context.Context, itemID, prompt, response string, callErr error) {
	if p.recorder == nil {
		return
	}
	ex := store.LLMExchange{
		Timestamp: time.Now(),
		ItemID:    itemID,
		Provider:  providerAnthropic,
		Model:     p.opts.Model,
		Prompt:    prompt,
		Response:  response,
	}
	if callErr != nil {
		ex.Error = callErr.Error()
	}
	if err := p.recorder.SaveExchange(ctx, ex); err != nil {
		p.log.Warn().Err(err).Msg("failed to record llm exchange")
	}
}
