package nl2sql

import (
	"context"
	"errors"
	"strings"

	"github.com/finqa/finqa/internal/llm"
	"github.com/finqa/finqa/internal/query"
)

const noInformation = "No relevant information found."

const filterStatementPrefix = "Filtered by category:"

// Synthesizer composes the user-facing answer from a query result.
type Synthesizer struct {
	model llm.LanguageModel
	// TableRows bounds how many result rows are shown to the model.
	TableRows int
}

func NewSynthesizer(model llm.LanguageModel, tableRows int) *Synthesizer {
	return &Synthesizer{model: model, TableRows: tableRows}
}

// Synthesize answers question from result. An empty result is answered without a model
// call. Every answer ends with filter.Statement(). Model failures are *SynthesisError.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, filter Filter, result query.Result) (string, error) {
	if result.IsEmpty() {
		return NoInformationAnswer(filter), nil
	}
	prompt, err := renderAnswerPrompt(question, filter, result.Format(s.TableRows))
	if err != nil {
		return "", &SynthesisError{Err: err}
	}
	resp, err := s.model.Complete(ctx, llm.Request{
		Task:   llm.TaskSynthesizeReply,
		System: answerSystemPrompt,
		Prompt: prompt,
	})
	if err != nil {
		return "", &SynthesisError{Err: err}
	}
	body := stripFilterStatement(resp.Text)
	if body == "" {
		return "", &SynthesisError{Err: errors.New("model returned an empty answer")}
	}
	return body + "\n\n" + filter.Statement(), nil
}

func NoInformationAnswer(filter Filter) string {
	return noInformation + " " + filter.Statement()
}

// FallbackAnswer renders the raw result when synthesis failed.
func FallbackAnswer(result query.Result, filter Filter, rows int) string {
	if result.IsEmpty() {
		return NoInformationAnswer(filter)
	}
	return "Query results:\n" + result.Format(rows) + "\n\n" + filter.Statement()
}

// stripFilterStatement drops filter lines the model wrote itself, so the canonical
// statement is the only one. A line that starts with the statement is removed wherever it
// sits; a statement trailing the last line is cut from that line.
func stripFilterStatement(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isFilterLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	if n := len(kept); n > 0 {
		last := kept[n-1]
		if idx := strings.LastIndex(last, filterStatementPrefix); idx > 0 {
			cut := idx
			if last[cut-1] == '(' {
				cut--
			}
			kept[n-1] = strings.TrimRight(last[:cut], " \t")
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isFilterLine(line string) bool {
	trimmed := strings.TrimPrefix(strings.TrimSpace(line), "(")
	return strings.HasPrefix(strings.TrimSpace(trimmed), filterStatementPrefix)
}
