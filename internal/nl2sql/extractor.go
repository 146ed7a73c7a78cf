package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/finqa/finqa/internal/llm"
)

// Extractor selects the categories and merchants a question refers to.
type Extractor struct {
	model llm.LanguageModel
}

func NewExtractor(model llm.LanguageModel) *Extractor {
	return &Extractor{model: model}
}

// Extract asks the model for a filter and restricts it to the known values. The result is
// always a subset of knownCategories and knownMerchants.
func (e *Extractor) Extract(ctx context.Context, question string, knownCategories, knownMerchants []string) (Filter, error) {
	prompt, err := renderFilterPrompt(question, knownCategories, knownMerchants)
	if err != nil {
		return Filter{}, err
	}
	resp, err := e.model.Complete(ctx, llm.Request{
		Task:   llm.TaskExtractFilter,
		System: filterSystemPrompt,
		Prompt: prompt,
		JSON:   true,
		Schema: filterSchema,
	})
	if err != nil {
		return Filter{}, fmt.Errorf("extract filter: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return Filter{}, &ExtractionParseError{Raw: resp.Text, Reason: "empty output"}
	}
	parsed, err := ParseFilter(resp.Text)
	if err != nil {
		return Filter{}, err
	}
	return parsed.Restrict(knownCategories, knownMerchants), nil
}

var filterSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"category": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "List of related categories found in the query.",
		},
		"merchant": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "List of merchants found in the query.",
		},
	},
	"required": []string{"category", "merchant"},
}
