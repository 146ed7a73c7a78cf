package nl2sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finqa/finqa/internal/llm"
)

// Generator turns a question and its filter into one validated DuckDB statement over df.
type Generator struct {
	model llm.LanguageModel
}

func NewGenerator(model llm.LanguageModel) *Generator {
	return &Generator{model: model}
}

// Generate asks the model for SQL and validates it. asOf anchors every date in the prompt;
// the statement must use literal bounds derived from it. Validation failures are
// *MalformedSQLError carrying the statement.
func (g *Generator) Generate(ctx context.Context, question string, filter Filter, asOf time.Time) (string, error) {
	prompt, err := renderSQLPrompt(question, filter, asOf)
	if err != nil {
		return "", err
	}
	resp, err := g.model.Complete(ctx, llm.Request{
		Task:   llm.TaskGenerateSQL,
		System: sqlSystemPrompt,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}
	sql := stripMarkdownSQL(resp.Text)
	if err := ValidateSQL(sql); err != nil {
		return "", err
	}
	return sql, nil
}

// stripMarkdownSQL returns the first fenced block when the output has one, otherwise the
// trimmed output.
func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	start := strings.Index(trimmed, "```")
	if start == -1 {
		return trimmed
	}
	body := trimmed[start+3:]
	if newline := strings.Index(body, "\n"); newline != -1 {
		if tag := strings.TrimSpace(body[:newline]); tag == "" || !strings.ContainsAny(tag, " ;") {
			body = body[newline+1:]
		}
	}
	if end := strings.Index(body, "```"); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
