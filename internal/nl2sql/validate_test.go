package nl2sql

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSQLAcceptsSchemaQueries(t *testing.T) {
	valid := []string{
		"SELECT SUM(amount) FROM df WHERE client_id = 6 AND category = 'Loans' AND transaction_date > '2023-06-25' AND transaction_date <= '2024-04-25';",
		"select merchant, count(*) as n from df group by merchant order by n desc limit 5;",
		"SELECT SUM(amount) total FROM df t WHERE t.category IN ('Loans', 'Groceries');",
		"SELECT EXTRACT(year FROM transaction_date) AS yr, SUM(amount) FROM df GROUP BY yr;",
		"SELECT strftime(transaction_date, '%Y-%m') AS month_key, AVG(amount) FROM df WHERE transaction_date BETWEEN DATE '2024-01-01' AND DATE '2024-03-31' GROUP BY 1;",
		"WITH monthly (m, total) AS (SELECT date_trunc('month', transaction_date), SUM(amount) FROM df GROUP BY 1) SELECT m, total FROM monthly ORDER BY m;",
		"WITH spend AS (SELECT category, amount FROM df WHERE amount < 0) SELECT category, SUM(amount) FROM spend GROUP BY category;",
		"SELECT COUNT(*) FROM (SELECT DISTINCT merchant FROM df) sub;",
		"SELECT a.category FROM df a JOIN df b ON a.transaction_id = b.transaction_id WHERE a.merchant IS DISTINCT FROM b.merchant;",
		"SELECT \"amount\" FROM df WHERE transaction_description ILIKE '%rent march%' -- trailing note\n;",
		"SELECT amount FROM df WHERE merchant = 'a;b';",
		"SELECT CAST(transaction_date AS DATE), TRY_CAST(amount AS DECIMAL(18, 2)) FROM df;",
		"SELECT transaction_date::date, amount::double FROM df;",
		"SELECT SUM(amount) FROM df WHERE transaction_date > DATE '2024-04-25' - INTERVAL 10 MONTH;",
		"SELECT SUM(amount) FROM df WHERE transaction_date > TIMESTAMP '2024-04-25 00:00:00' - INTERVAL '1' YEAR;",
		"SELECT EXTRACT(month FROM transaction_date) AS month, SUM(amount) FROM df GROUP BY month;",
		"SELECT year(transaction_date), day(transaction_date) FROM df;",
	}
	for _, sql := range valid {
		if err := ValidateSQL(sql); err != nil {
			t.Fatalf("ValidateSQL(%q) error = %v", sql, err)
		}
	}
}

func TestValidateSQLRejectsMalformedStatements(t *testing.T) {
	tests := []struct {
		sql    string
		reason string
	}{
		{"", "empty"},
		{"SELECT SUM(amount) FROM df", "end with a semicolon"},
		{"SELECT 1 FROM df; SELECT 2 FROM df;", "exactly one semicolon"},
		{"SELECT 1 FROM df;;", "exactly one semicolon"},
		{"DELETE FROM df;", "start with SELECT or WITH"},
		{"FROM df SELECT amount;", "start with SELECT or WITH"},
		{"SELECT amount FROM transactions;", "unknown relation"},
		{"SELECT amount FROM main.df;", "not allowed"},
		{"SELECT * FROM read_csv('/etc/passwd');", "table function"},
		{"SELECT a.amount FROM df a, read_parquet('x.parquet') b;", "table function"},
		{"SELECT balance FROM df;", "unknown column"},
		{"SELECT SUM(amount) FROM df WHERE foo = 1;", "unknown column"},
		{"SELECT x.amount FROM df;", "unknown relation"},
		{"SELECT SUM(amount) FROM df WHERE transaction_date >= CURRENT_DATE - INTERVAL '10 month';", "relative date"},
		{"SELECT SUM(amount) FROM df WHERE transaction_date <= now();", "relative date"},
		{"SELECT SUM(amount FROM df;", "unbalanced"},
		{"SELECT 'open FROM df;", "unterminated"},
		{"Here is the query: SELECT amount FROM df;", "start with SELECT or WITH"},
		{"SELECT SUM(amount) FROM df WHERE date >= '2024-01-01';", "unknown column \"date\""},
		{"SELECT year, SUM(amount) FROM df GROUP BY year;", "unknown column \"year\""},
		{"SELECT SUM(amount) FROM df WHERE day = 3;", "unknown column \"day\""},
		{"SELECT month FROM df WHERE CAST(amount AS double) > 0;", "unknown column \"month\""},
		{"SELECT SUM(amount) FROM df WHERE merchant = 'a;b'; SELECT 1;", "exactly one semicolon"},
		{"SELECT SUM(amount) FROM df -- done;", "exactly one semicolon, found 0"},
	}
	for _, tt := range tests {
		err := ValidateSQL(tt.sql)
		var malformed *MalformedSQLError
		if !errors.As(err, &malformed) {
			t.Fatalf("ValidateSQL(%q) error = %v, want MalformedSQLError", tt.sql, err)
		}
		if malformed.SQL != tt.sql {
			t.Fatalf("MalformedSQLError.SQL = %q, want %q", malformed.SQL, tt.sql)
		}
		if !strings.Contains(malformed.Reason, tt.reason) {
			t.Fatalf("ValidateSQL(%q) reason = %q, want %q", tt.sql, malformed.Reason, tt.reason)
		}
	}
}
