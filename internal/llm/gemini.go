package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const providerGemini = "gemini"

type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	// BaseURL overrides the Gemini API endpoint; empty uses the SDK default.
	BaseURL string
}

type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: strings.TrimSpace(cfg.BaseURL)},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model, temperature: float32(cfg.Temperature)}, nil
}

func (g *Gemini) Complete(ctx context.Context, req Request) (Response, error) {
	generateCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if strings.TrimSpace(req.System) != "" {
		generateCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		generateCfg.ResponseMIMEType = "application/json"
		if req.Schema != nil {
			generateCfg.ResponseJsonSchema = req.Schema
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), generateCfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && transientStatus(apiErr.Code) {
			return Response{}, &TransientError{Err: fmt.Errorf("generate content: %w", err)}
		}
		return Response{}, classifyTransport(ctx, fmt.Errorf("generate content: %w", err))
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return Response{}, fmt.Errorf("empty response from model")
	}
	return Response{Text: text, Provider: providerGemini, Model: g.model}, nil
}
