package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/llm"
	"github.com/finqa/finqa/internal/query/duckdb"
)

const (
	loansFilter = `{"category": ["Loans"], "merchant": []}`
	loansSQL    = "SELECT SUM(amount) FROM df WHERE client_id = 6 AND category = 'Loans' AND transaction_date > '2023-06-25' AND transaction_date <= '2024-04-25';"
	loansReply  = "Client 6 paid 750.00 in loan installments over the last 10 months."
	question    = "How much did client 6 spend on loans in the last 10 months?"
)

var asOf = time.Date(2024, time.April, 25, 0, 0, 0, 0, time.UTC)

func TestAskAnswersLoansQuestion(t *testing.T) {
	model := scriptedLoans()
	p := newTestPipeline(t, model)

	qc, err := p.Ask(context.Background(), Request{Question: question, AsOf: asOf})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if qc.State != StateDone || qc.Degraded {
		t.Fatalf("State = %s, Degraded = %v", qc.State, qc.Degraded)
	}
	if qc.SQL != loansSQL {
		t.Fatalf("SQL = %q", qc.SQL)
	}
	if len(qc.Filter.Categories) != 1 || qc.Filter.Categories[0] != "Loans" || len(qc.Filter.Merchants) != 0 {
		t.Fatalf("Filter = %#v", qc.Filter)
	}
	value, ok := qc.Result.Scalar()
	if !ok || value != -750.0 {
		t.Fatalf("Result.Scalar() = %v, %v", value, ok)
	}
	if !strings.HasSuffix(qc.Answer, "Filtered by category: Loans and merchant: none") {
		t.Fatalf("Answer = %q", qc.Answer)
	}
	if qc.Attempts != 2 {
		t.Fatalf("Attempts = %d", qc.Attempts)
	}
	if qc.ID == "" || qc.DatasetVersion == "" {
		t.Fatalf("QueryContext missing ids: %#v", qc)
	}

	var sqlPrompt string
	for _, req := range model.Requests() {
		if req.Task == llm.TaskGenerateSQL {
			sqlPrompt = req.Prompt
		}
	}
	if !strings.Contains(sqlPrompt, "Current date: 2024-04-25") {
		t.Fatalf("generation prompt missing as-of date:\n%s", sqlPrompt)
	}
}

func TestAskRetriesMalformedSQLOnce(t *testing.T) {
	model := llm.NewScripted().
		On(llm.TaskExtractFilter, llm.Reply{Text: loansFilter}).
		On(llm.TaskGenerateSQL,
			llm.Reply{Text: "SELECT SUM(amount) FROM df WHERE transaction_date >= CURRENT_DATE - INTERVAL '10 month';"},
			llm.Reply{Text: loansSQL},
		).
		On(llm.TaskSynthesizeReply, llm.Reply{Text: loansReply})

	qc, err := newTestPipeline(t, model).Ask(context.Background(), Request{Question: question, AsOf: asOf})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if got := model.Calls(llm.TaskGenerateSQL); got != 2 {
		t.Fatalf("generate calls = %d, want 2", got)
	}
	if qc.SQL != loansSQL || qc.Attempts != 3 {
		t.Fatalf("SQL = %q, Attempts = %d", qc.SQL, qc.Attempts)
	}
}

func TestAskRetriesInventedDateColumn(t *testing.T) {
	model := llm.NewScripted().
		On(llm.TaskExtractFilter, llm.Reply{Text: loansFilter}).
		On(llm.TaskGenerateSQL,
			llm.Reply{Text: "SELECT SUM(amount) FROM df WHERE client_id = 6 AND category = 'Loans' AND date > '2023-06-25';"},
			llm.Reply{Text: loansSQL},
		).
		On(llm.TaskSynthesizeReply, llm.Reply{Text: loansReply})

	qc, err := newTestPipeline(t, model).Ask(context.Background(), Request{Question: question, AsOf: asOf})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if got := model.Calls(llm.TaskGenerateSQL); got != 2 {
		t.Fatalf("generate calls = %d, want 2", got)
	}
	if qc.SQL != loansSQL || qc.State != StateDone {
		t.Fatalf("SQL = %q, State = %s", qc.SQL, qc.State)
	}
}

func TestAskFailsAfterValidationAttempts(t *testing.T) {
	badSQL := "SELECT SUM(amount) FROM df"
	model := llm.NewScripted().
		On(llm.TaskExtractFilter, llm.Reply{Text: loansFilter}).
		On(llm.TaskGenerateSQL, llm.Reply{Text: badSQL})

	qc, err := newTestPipeline(t, model).Ask(context.Background(), Request{Question: question, AsOf: asOf})
	stageErr := requireStageError(t, err, StateGenerating, CodeMalformedSQL)
	if stageErr.Offending != badSQL {
		t.Fatalf("Offending = %q", stageErr.Offending)
	}
	if got := model.Calls(llm.TaskGenerateSQL); got != 2 {
		t.Fatalf("generate calls = %d, want 2", got)
	}
	if qc.State != StateFailed || qc.SQL != badSQL {
		t.Fatalf("State = %s, SQL = %q", qc.State, qc.SQL)
	}
}

func TestNewCapsValidationAttempts(t *testing.T) {
	model := llm.NewScripted().
		On(llm.TaskExtractFilter, llm.Reply{Text: loansFilter}).
		On(llm.TaskGenerateSQL, llm.Reply{Text: "SELECT SUM(amount) FROM df"})
	p := New(testStore(t), model, duckdb.NewEngine(t.TempDir()), Config{ValidationAttempts: 5, RowLimit: 100}, nil)

	_, err := p.Ask(context.Background(), Request{Question: question, AsOf: asOf})
	requireStageError(t, err, StateGenerating, CodeMalformedSQL)
	if got := model.Calls(llm.TaskGenerateSQL); got != 2 {
		t.Fatalf("generate calls = %d, want 2", got)
	}
}

func TestAskRetriesExtractionParseFailure(t *testing.T) {
	model := llm.NewScripted().On(llm.TaskExtractFilter, llm.Reply{Text: "Loans, I think."})

	_, err := newTestPipeline(t, model).Ask(context.Background(), Request{Question: question, AsOf: asOf})
	stageErr := requireStageError(t, err, StateExtracting, CodeExtractionParse)
	if stageErr.Offending != "Loans, I think." {
		t.Fatalf("Offending = %q", stageErr.Offending)
	}
	if got := model.Calls(llm.TaskExtractFilter); got != 2 {
		t.Fatalf("extract calls = %d, want 2", got)
	}
}

func TestAskDoesNotRetryModelCallFailure(t *testing.T) {
	model := llm.NewScripted().On(llm.TaskExtractFilter, llm.Reply{Err: &llm.CallError{Task: llm.TaskExtractFilter, Attempts: 2, Err: errors.New("503")}})

	_, err := newTestPipeline(t, model).Ask(context.Background(), Request{Question: question, AsOf: asOf})
	requireStageError(t, err, StateExtracting, CodeModelCallFailed)
	if got := model.Calls(llm.TaskExtractFilter); got != 1 {
		t.Fatalf("extract calls = %d, want 1", got)
	}
}

func TestAskDoesNotRetryExecutionError(t *testing.T) {
	failing := "SELECT CAST(category AS INTEGER) FROM df;"
	model := llm.NewScripted().
		On(llm.TaskExtractFilter, llm.Reply{Text: loansFilter}).
		On(llm.TaskGenerateSQL, llm.Reply{Text: failing})

	_, err := newTestPipeline(t, model).Ask(context.Background(), Request{Question: question, AsOf: asOf})
	stageErr := requireStageError(t, err, StateExecuting, CodeQueryExecutionFailed)
	if stageErr.Offending != failing {
		t.Fatalf("Offending = %q", stageErr.Offending)
	}
	if got := model.Calls(llm.TaskGenerateSQL); got != 1 {
		t.Fatalf("generate calls = %d, want 1", got)
	}
	if got := model.Calls(llm.TaskSynthesizeReply); got != 0 {
		t.Fatalf("synthesize calls = %d, want 0", got)
	}
}

func TestAskDegradesWhenSynthesisFails(t *testing.T) {
	model := llm.NewScripted().
		On(llm.TaskExtractFilter, llm.Reply{Text: loansFilter}).
		On(llm.TaskGenerateSQL, llm.Reply{Text: loansSQL}).
		On(llm.TaskSynthesizeReply, llm.Reply{Err: errors.New("quota exceeded")})

	qc, err := newTestPipeline(t, model).Ask(context.Background(), Request{Question: question, AsOf: asOf})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !qc.Degraded || qc.State != StateDone {
		t.Fatalf("Degraded = %v, State = %s", qc.Degraded, qc.State)
	}
	if !strings.Contains(qc.Answer, "-750.00") || !strings.HasSuffix(qc.Answer, "Filtered by category: Loans and merchant: none") {
		t.Fatalf("Answer = %q", qc.Answer)
	}
}

func TestAskEmptyResultSkipsSynthesis(t *testing.T) {
	model := llm.NewScripted().
		On(llm.TaskExtractFilter, llm.Reply{Text: loansFilter}).
		On(llm.TaskGenerateSQL, llm.Reply{Text: "SELECT SUM(amount) FROM df WHERE category = 'Loans' AND client_id = 99;"})

	qc, err := newTestPipeline(t, model).Ask(context.Background(), Request{Question: question, AsOf: asOf})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if qc.Answer != "No relevant information found. Filtered by category: Loans and merchant: none" {
		t.Fatalf("Answer = %q", qc.Answer)
	}
	if got := model.Calls(llm.TaskSynthesizeReply); got != 0 {
		t.Fatalf("synthesize calls = %d, want 0", got)
	}
}

func TestAskIsIdempotentWithDeterministicModel(t *testing.T) {
	p := newTestPipeline(t, scriptedLoans())
	first, err := p.Ask(context.Background(), Request{Question: question, AsOf: asOf})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	second, err := p.Ask(context.Background(), Request{Question: question, AsOf: asOf})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if first.Answer != second.Answer || first.SQL != second.SQL || first.Filter.Statement() != second.Filter.Statement() {
		t.Fatalf("answers differ:\n%#v\n%#v", first, second)
	}
	if first.ID == second.ID {
		t.Fatal("request ids must differ")
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	model := llm.NewScripted()
	_, err := newTestPipeline(t, model).Ask(context.Background(), Request{Question: "   "})
	requireStageError(t, err, StateStart, CodeQuestionRequired)
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(model.Requests()) != 0 {
		t.Fatal("model must not be called")
	}
}

func TestAskRequiresLoadedDataset(t *testing.T) {
	p := New(dataset.NewStore(nil), llm.NewScripted(), duckdb.NewEngine(t.TempDir()), Config{ValidationAttempts: 2}, nil)
	_, err := p.Ask(context.Background(), Request{Question: question})
	requireStageError(t, err, StateStart, CodeDatasetNotLoaded)
}

func TestAskStopsWhenCanceled(t *testing.T) {
	model := scriptedLoans()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	qc, err := newTestPipeline(t, model).Ask(ctx, Request{Question: question, AsOf: asOf})
	requireStageError(t, err, StateExtracting, CodeCanceled)
	if qc.State != StateFailed || len(model.Requests()) != 0 {
		t.Fatalf("State = %s, requests = %d", qc.State, len(model.Requests()))
	}
}

func TestAskDefaultsAsOfToClock(t *testing.T) {
	zurich, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Skipf("time zone data unavailable: %v", err)
	}
	now := time.Date(2024, time.April, 24, 23, 30, 0, 0, time.UTC)
	model := scriptedLoans()
	p := New(testStore(t), model, duckdb.NewEngine(t.TempDir()), Config{
		ValidationAttempts: 2,
		RowLimit:           100,
		FallbackRows:       10,
		Location:           zurich,
		Now:                func() time.Time { return now },
	}, nil)

	qc, err := p.Ask(context.Background(), Request{Question: question})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if got := qc.AsOf.Format("2006-01-02"); got != "2024-04-25" {
		t.Fatalf("AsOf = %s, want the Zurich calendar date", got)
	}
}

func scriptedLoans() *llm.Scripted {
	return llm.NewScripted().
		On(llm.TaskExtractFilter, llm.Reply{Text: loansFilter}).
		On(llm.TaskGenerateSQL, llm.Reply{Text: "```sql\n" + loansSQL + "\n```"}).
		On(llm.TaskSynthesizeReply, llm.Reply{Text: loansReply + "\nFiltered by category: Loans and merchant: none"})
}

func newTestPipeline(t *testing.T, model llm.LanguageModel) *Pipeline {
	t.Helper()
	return New(testStore(t), model, duckdb.NewEngine(t.TempDir()), Config{
		ValidationAttempts: 2,
		RowLimit:           100,
		FallbackRows:       10,
	}, nil)
}

func testStore(t *testing.T) *dataset.Store {
	t.Helper()
	day := func(year int, month time.Month, d int) time.Time {
		return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
	}
	records := []dataset.TransactionRecord{
		{ClientID: 6, BankID: 1, AccountID: 10, TransactionID: 1, TransactionDate: day(2023, time.May, 1), TransactionDescription: "Loan installment", Amount: -1000, Category: "Loans", Merchant: "UBS"},
		{ClientID: 6, BankID: 1, AccountID: 10, TransactionID: 2, TransactionDate: day(2023, time.July, 15), TransactionDescription: "Loan installment", Amount: -250, Category: "Loans", Merchant: "UBS"},
		{ClientID: 6, BankID: 1, AccountID: 10, TransactionID: 3, TransactionDate: day(2024, time.February, 10), TransactionDescription: "Loan installment", Amount: -500, Category: "Loans", Merchant: "UBS"},
		{ClientID: 6, BankID: 1, AccountID: 10, TransactionID: 4, TransactionDate: day(2024, time.March, 1), TransactionDescription: "Weekly shop", Amount: -40, Category: "Groceries", Merchant: "Coop"},
		{ClientID: 1, BankID: 2, AccountID: 20, TransactionID: 5, TransactionDate: day(2024, time.January, 1), TransactionDescription: "Loan installment", Amount: -999, Category: "Loans", Merchant: "unknown"},
	}
	snapshot, err := dataset.New("test", records)
	if err != nil {
		t.Fatalf("dataset.New() error = %v", err)
	}
	return dataset.NewStore(snapshot)
}

func requireStageError(t *testing.T, err error, stage State, code string) *StageError {
	t.Helper()
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Ask() error = %v, want *StageError", err)
	}
	if stageErr.Stage != stage || stageErr.Code != code {
		t.Fatalf("StageError = %s/%s, want %s/%s (%v)", stageErr.Stage, stageErr.Code, stage, code, stageErr.Err)
	}
	return stageErr
}
