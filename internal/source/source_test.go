package source

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/preprocess"
	"github.com/finqa/finqa/internal/storage"
)

const exportCSV = `client_id,bank_id,account_id,transaction_id,transaction_date,transaction_description,amount,category,merchant
6,1,2,100,15/01/2024,Coffee,-3.50,Food,Starbucks
6,1,2,101,03/02/2024,Loan payment,-1250,Loans,
`

func TestFileLoaderReadsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.csv")
	if err := os.WriteFile(path, []byte(exportCSV), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	loader, err := NewFileLoader(path, preprocess.New(nil))
	if err != nil {
		t.Fatalf("NewFileLoader() error = %v", err)
	}
	ds, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ds.Len())
	}
	merchants := ds.Merchants()
	if len(merchants) != 2 || merchants[0] != "Starbucks" || merchants[1] != dataset.Unknown {
		t.Fatalf("Merchants() = %v", merchants)
	}
	if loader.Describe() != "file:"+path {
		t.Fatalf("Describe() = %q", loader.Describe())
	}
}

func TestFileLoaderReadsParquet(t *testing.T) {
	records := []dataset.TransactionRecord{{
		ClientID: 6, BankID: 1, AccountID: 2, TransactionID: 7,
		TransactionDate:        time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		TransactionDescription: "Rent", Amount: -900, Category: "Housing", Merchant: "Landlord",
	}}
	data, err := dataset.EncodeParquet(records)
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "snapshot.parquet")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	loader, err := NewFileLoader(path, nil)
	if err != nil {
		t.Fatalf("NewFileLoader() error = %v", err)
	}
	ds, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ds.Len() != 1 || ds.Categories()[0] != "Housing" {
		t.Fatalf("Load() = %d rows, categories %v", ds.Len(), ds.Categories())
	}
}

func TestFileLoaderRejectsUnknownExtension(t *testing.T) {
	if _, err := NewFileLoader("data/transactions.xlsx", nil); err == nil {
		t.Fatal("expected unsupported extension error")
	}
	if _, err := NewFileLoader("  ", nil); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestObjectLoaderReadsCSV(t *testing.T) {
	store := storage.NewMemoryStore()
	if _, err := store.Put(context.Background(), "exports/tx.csv", strings.NewReader(exportCSV), int64(len(exportCSV)), storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	loader, err := NewObjectLoader(store, "exports/tx.csv", preprocess.New(nil))
	if err != nil {
		t.Fatalf("NewObjectLoader() error = %v", err)
	}
	ds, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ds.Len())
	}
}

func TestObjectLoaderMissingObject(t *testing.T) {
	loader, err := NewObjectLoader(storage.NewMemoryStore(), "exports/missing.csv", nil)
	if err != nil {
		t.Fatalf("NewObjectLoader() error = %v", err)
	}
	if _, err := loader.Load(context.Background()); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Load() error = %v, want ErrObjectNotFound", err)
	}
}

func TestOpenDBRequiresDSN(t *testing.T) {
	if _, err := OpenDB(context.Background(), DBConfig{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestPostgresLoaderRejectsInvalidTable(t *testing.T) {
	db, _ := newSQLMock(t)
	for _, table := range []string{"", "tx; DROP TABLE x", "a.b.c", "1tx"} {
		if _, err := NewPostgresLoader(db, table, nil); err == nil {
			t.Fatalf("NewPostgresLoader(%q) expected error", table)
		}
	}
}

func TestPostgresLoaderLoad(t *testing.T) {
	db, mock := newSQLMock(t)
	loader, err := NewPostgresLoader(db, "banking.transactions", preprocess.New(nil))
	if err != nil {
		t.Fatalf("NewPostgresLoader() error = %v", err)
	}

	columns := []string{"client_id", "bank_id", "account_id", "transaction_id", "transaction_date",
		"transaction_description", "amount", "category", "merchant"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "banking"."transactions"`)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("6", "1", "2", "100", "2024-01-15", "Coffee", "-3.50", "Food", "Starbucks").
			AddRow("6", "1", "2", "101", "2024-02-03", "Loan payment", "-1250.00", "Loans", nil).
			AddRow("6", "1", "2", "102", nil, "Broken", "1", "Food", "Shop"))

	ds, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ds.Len())
	}
	records := ds.Records()
	if records[1].Merchant != dataset.Unknown || records[1].Amount != -1250 {
		t.Fatalf("second record = %+v", records[1])
	}
	if ds.Source() != "postgres:banking.transactions" {
		t.Fatalf("Source() = %q", ds.Source())
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations not met: %v", err)
	}
}
