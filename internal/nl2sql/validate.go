package nl2sql

import (
	"fmt"
	"strings"

	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/sqltext"
)

// Words that may appear bare in generated SQL without naming a column.
var sqlKeywords = setOf(
	"select", "with", "recursive", "as", "from", "where", "and", "or", "not", "in", "is", "null",
	"like", "ilike", "similar", "glob", "escape", "between", "group", "by", "order", "asc", "desc",
	"nulls", "first", "last", "limit", "offset", "having", "distinct", "all", "any", "some",
	"case", "when", "then", "else", "end", "join", "inner", "left", "right", "full", "outer",
	"cross", "semi", "anti", "on", "using", "natural", "union", "intersect", "except", "exists",
	"true", "false", "cast", "try_cast", "interval", "over", "partition", "rows", "range",
	"groups", "preceding", "following", "unbounded", "current", "row", "filter", "within",
	"qualify", "window", "materialized", "collate", "at", "zone", "for", "both", "leading",
	"trailing",
)

// Type names and date parts read like plausible column names ("date", "year"), so they are
// accepted only where the grammar expects them; see inTypeSlot.
var typeWords = setOf(
	"date", "timestamp", "time", "varchar", "text", "string", "integer", "int", "bigint",
	"hugeint", "smallint", "double", "float", "decimal", "numeric", "real", "boolean", "bool",
	"year", "years", "quarter", "month", "months", "week", "weeks", "day", "days", "hour",
	"hours", "minute", "minutes", "second", "seconds", "epoch", "dow", "doy", "isodow",
	"isoyear", "yearweek", "decade", "century", "millennium",
)

// Relative date expressions make answers depend on when the query runs rather than on the
// as-of date in the prompt.
var relativeDateFunctions = setOf(
	"current_date", "current_timestamp", "current_time", "current_localtimestamp", "now",
	"today", "localtimestamp", "localtime", "get_current_timestamp", "get_current_time",
	"transaction_timestamp",
)

// Functions whose argument syntax uses FROM without naming a relation.
var fromFunctions = setOf("extract", "substring", "trim", "position", "overlay")

// ValidateSQL checks a generated statement before it reaches the engine. Failures are
// *MalformedSQLError.
func ValidateSQL(sql string) error {
	malformed := func(format string, args ...any) error {
		return &MalformedSQLError{SQL: sql, Reason: fmt.Sprintf(format, args...)}
	}

	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return malformed("statement is empty")
	}
	if !strings.HasSuffix(trimmed, ";") {
		return malformed("statement must end with a semicolon")
	}

	tokens, err := sqltext.Tokenize(trimmed)
	if err != nil {
		return malformed("%v", err)
	}
	semicolons := 0
	for _, token := range tokens {
		if token.Is(";") {
			semicolons++
		}
	}
	if semicolons != 1 {
		return malformed("statement must contain exactly one semicolon, found %d", semicolons)
	}
	if !tokens[len(tokens)-1].Is(";") {
		return malformed("statement must end with a semicolon")
	}
	tokens = tokens[:len(tokens)-1]
	if len(tokens) == 0 || tokens[0].Kind != sqltext.Word {
		return malformed("statement must start with SELECT or WITH")
	}
	switch tokens[0].Lower() {
	case "select", "with":
	default:
		return malformed("statement must start with SELECT or WITH, not %s", strings.ToUpper(tokens[0].Text))
	}

	names := map[string]struct{}{dataset.TableName: {}}
	relations := map[string]struct{}{dataset.TableName: {}}
	if tokens[0].Lower() == "with" {
		ctes, columns, err := parseWithHeader(tokens)
		if err != nil {
			return malformed("%v", err)
		}
		for _, name := range ctes {
			relations[name] = struct{}{}
			names[name] = struct{}{}
		}
		for _, name := range columns {
			names[name] = struct{}{}
		}
	}
	calls := enclosingCalls(tokens)
	for _, alias := range collectAliases(tokens, calls) {
		names[alias] = struct{}{}
	}

	var callStack []string
	for i, token := range tokens {
		switch {
		case token.Is("("):
			opener := ""
			if i > 0 && tokens[i-1].Kind == sqltext.Word {
				opener = tokens[i-1].Lower()
			}
			callStack = append(callStack, opener)
			continue
		case token.Is(")"):
			if len(callStack) == 0 {
				return malformed("unbalanced parentheses")
			}
			callStack = callStack[:len(callStack)-1]
			continue
		case !token.IsIdent():
			continue
		}

		lower := token.Lower()
		if token.Kind == sqltext.Word {
			if _, ok := relativeDateFunctions[lower]; ok {
				return malformed("relative date expression %s is not allowed; use literal dates", strings.ToUpper(token.Text))
			}
			if lower == "from" || lower == "join" {
				if lower == "from" && len(callStack) > 0 {
					if _, ok := fromFunctions[callStack[len(callStack)-1]]; ok {
						continue
					}
				}
				// a IS [NOT] DISTINCT FROM b
				if lower == "from" && i >= 2 && isWord(tokens, i-1, "distinct") &&
					(isWord(tokens, i-2, "is") || isWord(tokens, i-2, "not")) {
					continue
				}
				if err := checkRelations(tokens, i+1, relations); err != nil {
					return malformed("%v", err)
				}
				continue
			}
			if _, ok := sqlKeywords[lower]; ok {
				continue
			}
			if next(tokens, i).Is("(") {
				continue
			}
			if _, ok := typeWords[lower]; ok && inTypeSlot(tokens, i, calls) {
				continue
			}
		}
		if next(tokens, i).Is(".") {
			if _, ok := names[lower]; !ok {
				return malformed("unknown relation %q", token.Text)
			}
			continue
		}
		if dataset.IsColumn(lower) {
			continue
		}
		if _, ok := names[lower]; ok {
			continue
		}
		return malformed("unknown column %q", token.Text)
	}
	if len(callStack) != 0 {
		return malformed("unbalanced parentheses")
	}
	return nil
}

// parseWithHeader walks WITH [RECURSIVE] name [(cols)] AS [NOT] [MATERIALIZED] (...), ...
// and returns the CTE names and their declared column names, lowercased.
func parseWithHeader(tokens []sqltext.Token) ([]string, []string, error) {
	var ctes, columns []string
	i := 1
	if i < len(tokens) && tokens[i].Kind == sqltext.Word && tokens[i].Lower() == "recursive" {
		i++
	}
	for {
		if i >= len(tokens) || !tokens[i].IsIdent() {
			return nil, nil, fmt.Errorf("malformed WITH clause: expected a name")
		}
		ctes = append(ctes, tokens[i].Lower())
		i++
		if i < len(tokens) && tokens[i].Is("(") {
			i++
			for i < len(tokens) && !tokens[i].Is(")") {
				if tokens[i].IsIdent() {
					columns = append(columns, tokens[i].Lower())
				}
				i++
			}
			i++
		}
		if !isWord(tokens, i, "as") {
			return nil, nil, fmt.Errorf("malformed WITH clause: expected AS after %s", ctes[len(ctes)-1])
		}
		i++
		if isWord(tokens, i, "not") {
			i++
		}
		if isWord(tokens, i, "materialized") {
			i++
		}
		if i >= len(tokens) || !tokens[i].Is("(") {
			return nil, nil, fmt.Errorf("malformed WITH clause: expected ( after AS")
		}
		i = skipParens(tokens, i)
		if i < 0 {
			return nil, nil, fmt.Errorf("unbalanced parentheses")
		}
		if i < len(tokens) && tokens[i].Is(",") {
			i++
			continue
		}
		return ctes, columns, nil
	}
}

// collectAliases returns names introduced with AS, and implicit aliases: a non-keyword word
// directly after an identifier, a closing parenthesis or a literal. The target type of
// CAST(x AS type) is not an alias.
func collectAliases(tokens []sqltext.Token, calls []string) []string {
	var aliases []string
	for i := 1; i < len(tokens); i++ {
		token := tokens[i]
		if !token.IsIdent() || next(tokens, i).Is("(") || next(tokens, i).Is(".") {
			continue
		}
		prev := tokens[i-1]
		if prev.Kind == sqltext.Word && prev.Lower() == "as" {
			if !isCastCall(calls[i]) {
				aliases = append(aliases, token.Lower())
			}
			continue
		}
		if token.Kind == sqltext.Word && isKeywordLike(token.Lower()) {
			continue
		}
		switch {
		case prev.Kind == sqltext.Word && isKeywordLike(prev.Lower()):
		case prev.IsIdent(), prev.Is(")"), prev.Kind == sqltext.String, prev.Kind == sqltext.Number:
			aliases = append(aliases, token.Lower())
		}
	}
	return aliases
}

// inTypeSlot reports whether the type name or date part at tokens[i] sits where the grammar
// expects one: CAST(x AS date), x::date, DATE '2024-01-01', EXTRACT(year FROM x),
// INTERVAL 3 MONTH or AT TIME ZONE.
func inTypeSlot(tokens []sqltext.Token, i int, calls []string) bool {
	if next(tokens, i).Kind == sqltext.String {
		return true
	}
	if calls[i] == "extract" && isWord(tokens, i+1, "from") {
		return true
	}
	if i == 0 {
		return false
	}
	prev := tokens[i-1]
	switch {
	case isWord(tokens, i-1, "as"):
		return isCastCall(calls[i])
	case prev.Is(":"):
		return i >= 2 && tokens[i-2].Is(":")
	case prev.Kind == sqltext.Number || prev.Kind == sqltext.String:
		return i >= 2 && isWord(tokens, i-2, "interval")
	case isWord(tokens, i-1, "at"):
		return tokens[i].Lower() == "time"
	}
	return false
}

// enclosingCalls maps every token to the lowercased word in front of its innermost open
// parenthesis, or "" at top level and inside bare parentheses.
func enclosingCalls(tokens []sqltext.Token) []string {
	calls := make([]string, len(tokens))
	var stack []string
	for i, token := range tokens {
		if token.Is(")") && len(stack) > 0 {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			calls[i] = stack[len(stack)-1]
		}
		if token.Is("(") {
			opener := ""
			if i > 0 && tokens[i-1].Kind == sqltext.Word {
				opener = tokens[i-1].Lower()
			}
			stack = append(stack, opener)
		}
	}
	return calls
}

func isCastCall(call string) bool {
	return call == "cast" || call == "try_cast"
}

// checkRelations validates the comma-separated relation list starting at tokens[i].
func checkRelations(tokens []sqltext.Token, i int, relations map[string]struct{}) error {
	for {
		if i >= len(tokens) {
			return fmt.Errorf("missing relation after FROM")
		}
		token := tokens[i]
		switch {
		case token.Is("("):
			i = skipParens(tokens, i)
			if i < 0 {
				return fmt.Errorf("unbalanced parentheses")
			}
		case token.IsIdent():
			if next(tokens, i).Is("(") {
				return fmt.Errorf("table function %s is not allowed; read from %s", token.Text, dataset.TableName)
			}
			if next(tokens, i).Is(".") {
				return fmt.Errorf("relation %s.%s is not allowed; read from %s", token.Text, next(tokens, i+1).Text, dataset.TableName)
			}
			if _, ok := relations[token.Lower()]; !ok {
				return fmt.Errorf("unknown relation %q; read from %s", token.Text, dataset.TableName)
			}
			i++
		default:
			return fmt.Errorf("unexpected %q after FROM", token.Text)
		}

		switch {
		case isWord(tokens, i, "as"):
			i += 2
		case i < len(tokens) && tokens[i].IsIdent() && !isKeywordLike(tokens[i].Lower()):
			i++
		}
		if i < len(tokens) && tokens[i].Is(",") {
			i++
			continue
		}
		return nil
	}
}

// skipParens returns the index after the parenthesis matching tokens[open], or -1.
func skipParens(tokens []sqltext.Token, open int) int {
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch {
		case tokens[i].Is("("):
			depth++
		case tokens[i].Is(")"):
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func next(tokens []sqltext.Token, i int) sqltext.Token {
	if i+1 < len(tokens) {
		return tokens[i+1]
	}
	return sqltext.Token{}
}

func isWord(tokens []sqltext.Token, i int, word string) bool {
	return i < len(tokens) && tokens[i].Kind == sqltext.Word && tokens[i].Lower() == word
}

func isKeywordLike(word string) bool {
	if _, ok := sqlKeywords[word]; ok {
		return true
	}
	if _, ok := typeWords[word]; ok {
		return true
	}
	_, ok := relativeDateFunctions[word]
	return ok
}

func setOf(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}
