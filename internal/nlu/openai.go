package nlu

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	logx "remindbot/pkg/logx"
)

type openAIParser struct {
	client *openai.Client
	model  string
	log    logx.Logger
}

func newOpenAI(cfg Config, log logx.Logger) *openAIParser {
	oc := openai.DefaultConfig(cfg.APIKey)
	if u := strings.TrimSpace(cfg.BaseURL); u != "" {
		oc.BaseURL = u
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	return &openAIParser{
		client: openai.NewClientWithConfig(oc),
		model:  model,
		log:    log.With(logx.String("provider", "openai")),
	}
}

func (p *openAIParser) ParseIntent(ctx context.Context, raw string) (Result, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: raw},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Result{}, parseErr("openai", "", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, parseErr("openai", "", errors.New("no choices in response"))
	}

	out := resp.Choices[0].Message.Content
	p.log.Debug("model response", logx.String("model", p.model), logx.String("raw", out))
	res, err := Decode(out)
	if err != nil {
		return Result{}, parseErr("openai", out, err)
	}
	return res, nil
}
