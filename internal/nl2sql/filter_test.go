package nl2sql

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/finqa/finqa/internal/llm"
)

var (
	knownCategories = []string{"Groceries", "Loans", "Restaurants", "unknown"}
	knownMerchants  = []string{"Coop", "Migros", "UBS", "unknown"}
)

func TestFilterStatement(t *testing.T) {
	if got := (Filter{}).Statement(); got != "Filtered by category: none and merchant: none" {
		t.Fatalf("Statement() = %q", got)
	}
	filter := Filter{Categories: []string{"Groceries", "Loans"}, Merchants: []string{"Coop"}}
	if got := filter.Statement(); got != "Filtered by category: Groceries, Loans and merchant: Coop" {
		t.Fatalf("Statement() = %q", got)
	}
}

func TestParseFilterAcceptsFencedJSON(t *testing.T) {
	raw := "Here you go:\n```json\n{\"category\": [\"Loans\"], \"merchant\": []}\n```"
	filter, err := ParseFilter(raw)
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if !slices.Equal(filter.Categories, []string{"Loans"}) || len(filter.Merchants) != 0 {
		t.Fatalf("ParseFilter() = %#v", filter)
	}
}

func TestParseFilterCoercesStringAndNull(t *testing.T) {
	filter, err := ParseFilter(`{"category": "Loans", "merchant": null}`)
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if !slices.Equal(filter.Categories, []string{"Loans"}) || filter.Merchants != nil {
		t.Fatalf("ParseFilter() = %#v", filter)
	}
}

func TestParseFilterRejectsInvalidOutput(t *testing.T) {
	for _, raw := range []string{
		"",
		"I could not find anything.",
		`{"category": ["Loans"]}`,
		`{"category": [1, 2], "merchant": []}`,
		`{"category": {"a": 1}, "merchant": []}`,
		`{"category": ["Loans"], "merchant": [}`,
	} {
		_, err := ParseFilter(raw)
		var parseErr *ExtractionParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("ParseFilter(%q) error = %v, want ExtractionParseError", raw, err)
		}
		if parseErr.Raw != raw {
			t.Fatalf("ExtractionParseError.Raw = %q, want %q", parseErr.Raw, raw)
		}
	}
}

func TestRestrictKeepsOnlyKnownValues(t *testing.T) {
	filter := Filter{
		Categories: []string{"Loans", "loans", "Travel", "Loans", "Groceries"},
		Merchants:  []string{"Amazon", "UBS"},
	}.Restrict(knownCategories, knownMerchants)
	if !slices.Equal(filter.Categories, []string{"Groceries", "Loans"}) {
		t.Fatalf("Categories = %#v", filter.Categories)
	}
	if !slices.Equal(filter.Merchants, []string{"UBS"}) {
		t.Fatalf("Merchants = %#v", filter.Merchants)
	}
}

func TestExtractReturnsSubsetOfKnownValues(t *testing.T) {
	model := llm.NewScripted().On(llm.TaskExtractFilter, llm.Reply{
		Text: `{"category": ["Loans", "Mortgage"], "merchant": ["Bank of Nowhere"]}`,
	})
	filter, err := NewExtractor(model).Extract(context.Background(), "How much did I spend on loans?", knownCategories, knownMerchants)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !slices.Equal(filter.Categories, []string{"Loans"}) || len(filter.Merchants) != 0 {
		t.Fatalf("Extract() = %#v", filter)
	}

	requests := model.Requests()
	if len(requests) != 1 {
		t.Fatalf("requests = %d", len(requests))
	}
	req := requests[0]
	if !req.JSON || req.Schema == nil {
		t.Fatalf("request should ask for JSON with a schema: %#v", req)
	}
	for _, want := range []string{`"Loans"`, `"Migros"`, "How much did I spend on loans?", `"category"`} {
		if !strings.Contains(req.Prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, req.Prompt)
		}
	}
}

func TestExtractReportsParseFailure(t *testing.T) {
	model := llm.NewScripted().On(llm.TaskExtractFilter, llm.Reply{Text: "   "})
	_, err := NewExtractor(model).Extract(context.Background(), "q", knownCategories, knownMerchants)
	var parseErr *ExtractionParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Extract() error = %v, want ExtractionParseError", err)
	}
}

func TestExtractWrapsModelError(t *testing.T) {
	boom := errors.New("provider down")
	model := llm.NewScripted().On(llm.TaskExtractFilter, llm.Reply{Err: boom})
	_, err := NewExtractor(model).Extract(context.Background(), "q", knownCategories, knownMerchants)
	if !errors.Is(err, boom) {
		t.Fatalf("Extract() error = %v", err)
	}
}
