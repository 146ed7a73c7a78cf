package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const providerOllama = "ollama"

type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Ollama runs completions against a local Ollama server through eino's chat model.
type Ollama struct {
	chat        model.BaseChatModel
	model       string
	temperature float32
}

func NewOllama(ctx context.Context, cfg OllamaConfig) (*Ollama, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		return nil, fmt.Errorf("model is required")
	}
	chat, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		Model:   modelName,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create ollama chat model: %w", err)
	}
	return &Ollama{chat: chat, model: modelName, temperature: float32(cfg.Temperature)}, nil
}

func (o *Ollama) Complete(ctx context.Context, req Request) (Response, error) {
	messages := make([]*schema.Message, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, schema.SystemMessage(req.System))
	}
	messages = append(messages, schema.UserMessage(req.Prompt))

	msg, err := o.chat.Generate(ctx, messages, model.WithTemperature(o.temperature))
	if err != nil {
		return Response{}, classifyTransport(ctx, fmt.Errorf("ollama generate: %w", err))
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return Response{}, fmt.Errorf("empty response from model")
	}
	return Response{Text: msg.Content, Provider: providerOllama, Model: o.model}, nil
}
