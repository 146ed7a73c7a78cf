package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/preprocess"
)

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// OpenDB opens the Postgres database that holds the transactions table.
func OpenDB(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("source dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open source db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping source db: %w", err)
	}

	return db, nil
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}(\.[A-Za-z_][A-Za-z0-9_]{0,62})?$`)

// PostgresLoader reads the nine transaction columns from a table. Values are fetched as
// text and go through the same normalization as CSV exports.
type PostgresLoader struct {
	db    *sql.DB
	table string
	query string
	pre   *preprocess.Preprocessor
}

func NewPostgresLoader(db *sql.DB, table string, pre *preprocess.Preprocessor) (*PostgresLoader, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	table = strings.TrimSpace(table)
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	ident := pgx.Identifier(strings.Split(table, "."))
	query := `
SELECT client_id::text, bank_id::text, account_id::text, transaction_id::text,
       transaction_date::text, transaction_description, amount::text, category, merchant
FROM ` + ident.Sanitize() + `
ORDER BY transaction_id`
	return &PostgresLoader{db: db, table: table, query: query, pre: pre}, nil
}

func (l *PostgresLoader) Load(ctx context.Context) (*dataset.Dataset, error) {
	rows, err := l.db.QueryContext(ctx, l.query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", l.table, err)
	}
	defer rows.Close()

	raw := make([]preprocess.RawRow, 0)
	for rows.Next() {
		var cols [preprocess.ColumnCount]sql.NullString
		if err := rows.Scan(&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5], &cols[6], &cols[7], &cols[8]); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", l.table, err)
		}
		raw = append(raw, preprocess.RawRow{
			ClientID:               cols[0].String,
			BankID:                 cols[1].String,
			AccountID:              cols[2].String,
			TransactionID:          cols[3].String,
			TransactionDate:        cols[4].String,
			TransactionDescription: cols[5].String,
			Amount:                 cols[6].String,
			Category:               cols[7].String,
			Merchant:               cols[8].String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", l.table, err)
	}

	records, _ := l.pre.Process(raw)
	ds, err := dataset.New(l.Describe(), records)
	if err != nil {
		return nil, fmt.Errorf("build dataset from %s: %w", l.table, err)
	}
	return ds, nil
}

func (l *PostgresLoader) Describe() string {
	return "postgres:" + l.table
}
