package dataset

// TableName is the only relation generated SQL may read.
const TableName = "df"

type Column struct {
	Name string
	// SQLType is the DuckDB type the column is bound with.
	SQLType     string
	Description string
}

// Columns is the fixed schema of the transaction table, in canonical order.
var Columns = []Column{
	{Name: "client_id", SQLType: "BIGINT", Description: "Integer"},
	{Name: "bank_id", SQLType: "BIGINT", Description: "Integer"},
	{Name: "account_id", SQLType: "BIGINT", Description: "Integer"},
	{Name: "transaction_id", SQLType: "BIGINT", Description: "Integer"},
	{Name: "transaction_date", SQLType: "DATE", Description: "Date (formatted as 'yyyy-MM-dd')"},
	{Name: "transaction_description", SQLType: "VARCHAR", Description: "String (with a maximum length of 200 characters)"},
	{Name: "amount", SQLType: "DOUBLE", Description: "Float"},
	{Name: "category", SQLType: "VARCHAR", Description: "String (with a maximum length of 200 characters)"},
	{Name: "merchant", SQLType: "VARCHAR", Description: "String (with a maximum length of 200 characters)"},
}

// IsColumn reports whether name is one of Columns. The comparison is exact; callers
// lowercase SQL identifiers first.
func IsColumn(name string) bool {
	for _, column := range Columns {
		if column.Name == name {
			return true
		}
	}
	return false
}
