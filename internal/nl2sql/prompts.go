package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/finqa/finqa/internal/dataset"
)

const dateLayout = "2006-01-02"

const filterSystemPrompt = "You are a natural language expert with a strong background in SQL for banking transactions. " +
	"You extract the categories and merchants a question refers to, choosing only from the lists you are given."

const filterFormatInstructions = "Reply with a single JSON object and nothing else, in this shape:\n" +
	"{\"category\": [string], \"merchant\": [string]}\n" +
	"- category: list of related categories found in the query.\n" +
	"- merchant: list of merchants found in the query.\n" +
	"Use an empty list when nothing matches."

func renderFilterPrompt(question string, categories, merchants []string) (string, error) {
	categoryJSON, err := json.Marshal(nonNil(categories))
	if err != nil {
		return "", fmt.Errorf("marshal category list: %w", err)
	}
	merchantJSON, err := json.Marshal(nonNil(merchants))
	if err != nil {
		return "", fmt.Errorf("marshal merchant list: %w", err)
	}
	return fmt.Sprintf(
		"Instructions:\n"+
			"1. Review the query below.\n"+
			"2. Choose the items from the category list and the merchant list that the query mentions or clearly refers to.\n"+
			"3. Copy names exactly as they are spelled in the lists. Never invent names.\n"+
			"4. Follow the format instructions.\n\n"+
			"Category list: %s\nMerchant list: %s\n\nQuery:\n%s\n\nFormat instructions:\n%s",
		categoryJSON,
		merchantJSON,
		strings.TrimSpace(question),
		filterFormatInstructions,
	), nil
}

const sqlSystemPrompt = "You convert questions about banking transactions into a single DuckDB SQL query. " +
	"Return only SQL. No explanation."

func renderSQLPrompt(question string, filter Filter, asOf time.Time) (string, error) {
	filterJSON, err := json.Marshal(Filter{Categories: nonNil(filter.Categories), Merchants: nonNil(filter.Merchants)})
	if err != nil {
		return "", fmt.Errorf("marshal filter: %w", err)
	}

	var columns strings.Builder
	for _, column := range dataset.Columns {
		fmt.Fprintf(&columns, "- %s: %s\n", column.Name, column.Description)
	}

	today := asOf.Format(dateLayout)
	from := asOf.AddDate(0, -10, 0).Format(dateLayout)

	return fmt.Sprintf(
		"Rules:\n"+
			"1. Generate a single DuckDB SQL query and end it with a semicolon.\n"+
			"2. Read only from table %s.\n"+
			"3. Apply the filter object in the WHERE clause.\n"+
			"4. Write dates as literal 'YYYY-MM-DD' values computed from the current date. Do not use CURRENT_DATE, NOW() or interval arithmetic.\n\n"+
			"Table name: %s\n\nColumns:\n%s\n"+
			"Filter object: %s\n\nCurrent date: %s\n\n"+
			"Bad example:\nSELECT SUM(amount) FROM df WHERE client_id = 6 AND category = 'Loans' "+
			"AND transaction_date >= DATE_TRUNC('month', CURRENT_TIMESTAMP - INTERVAL '10 month') AND transaction_date <= CURRENT_TIMESTAMP;\n\n"+
			"Good example:\nSELECT SUM(amount) FROM df WHERE client_id = 6 AND category = 'Loans' "+
			"AND transaction_date > '%s' AND transaction_date <= '%s';\n\n"+
			"Query: %s\n\nEnd the DuckDB SQL with a semicolon.",
		dataset.TableName,
		dataset.TableName,
		columns.String(),
		filterJSON,
		today,
		from,
		today,
		strings.TrimSpace(question),
	), nil
}

const answerSystemPrompt = "You answer questions about banking transactions using only the query results you are given."

func renderAnswerPrompt(question string, filter Filter, table string) (string, error) {
	filterJSON, err := json.Marshal(Filter{Categories: nonNil(filter.Categories), Merchants: nonNil(filter.Merchants)})
	if err != nil {
		return "", fmt.Errorf("marshal filter: %w", err)
	}
	return fmt.Sprintf(
		"Synthesize a response to the question from the query results. Rules:\n"+
			"1. Always answer the question. If the results hold nothing relevant, reply \"%s\"\n"+
			"2. Use only the information in the query results.\n"+
			"3. Do not start with phrases like \"based on the information\".\n"+
			"4. State the criteria used to filter the information.\n"+
			"5. End with the line: %s\n\n"+
			"Filter: %s\nQuestion: %s\nQuery results:\n%s",
		noInformation,
		filter.Statement(),
		filterJSON,
		strings.TrimSpace(question),
		table,
	), nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
