package nlu

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	logx "remindbot/pkg/logx"
)

const defaultGeminiModel = "gemini-2.0-flash"

type geminiParser struct {
	client *genai.Client
	model  string
	log    logx.Logger
}

func newGemini(ctx context.Context, cfg Config, log logx.Logger) (*geminiParser, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if u := strings.TrimSpace(cfg.BaseURL); u != "" {
		cc.HTTPOptions.BaseURL = u
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	return &geminiParser{
		client: client,
		model:  model,
		log:    log.With(logx.String("provider", "gemini")),
	}, nil
}

func (p *geminiParser) ParseIntent(ctx context.Context, raw string) (Result, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(raw), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		return Result{}, parseErr("gemini", "", err)
	}

	out := resp.Text()
	p.log.Debug("model response", logx.String("model", p.model), logx.String("raw", out))
	res, err := Decode(out)
	if err != nil {
		return Result{}, parseErr("gemini", out, err)
	}
	return res, nil
}
