package query

import (
	"fmt"

	"github.com/finqa/finqa/internal/sqltext"
)

// mutatingKeywords are statement verbs that change data, schema, settings or session state.
var mutatingKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "merge": {}, "upsert": {},
	"create": {}, "drop": {}, "alter": {}, "truncate": {}, "rename": {},
	"copy": {}, "export": {}, "import": {}, "attach": {}, "detach": {},
	"install": {}, "load": {}, "pragma": {}, "set": {}, "reset": {},
	"call": {}, "vacuum": {}, "checkpoint": {}, "grant": {}, "revoke": {},
	"begin": {}, "commit": {}, "rollback": {}, "use": {}, "execute": {},
	"prepare": {}, "deallocate": {}, "comment": {},
}

// CheckReadOnly rejects statements containing data or schema modification keywords outside
// string literals and quoted identifiers. REPLACE is only rejected as a statement verb since
// replace() is also a string function.
func CheckReadOnly(sql string) error {
	tokens, err := sqltext.Tokenize(sql)
	if err != nil {
		return err
	}
	for i, token := range tokens {
		if token.Kind != sqltext.Word {
			continue
		}
		word := token.Lower()
		if _, ok := mutatingKeywords[word]; ok {
			return fmt.Errorf("%w: found %s", ErrNotReadOnly, token.Text)
		}
		if word == "replace" && (i+1 >= len(tokens) || !tokens[i+1].Is("(")) {
			return fmt.Errorf("%w: found %s", ErrNotReadOnly, token.Text)
		}
	}
	return nil
}
