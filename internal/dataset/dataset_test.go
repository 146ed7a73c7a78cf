package dataset

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewDerivesSortedDistinctValues(t *testing.T) {
	ds, err := New("test", []TransactionRecord{
		record(1, "Loans", "Bank A"),
		record(2, "Groceries", "Migros"),
		record(3, "Loans", Unknown),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := strings.Join(ds.Categories(), ","); got != "Groceries,Loans" {
		t.Fatalf("Categories() = %q", got)
	}
	if got := strings.Join(ds.Merchants(), ","); got != "Bank A,Migros,unknown" {
		t.Fatalf("Merchants() = %q", got)
	}
	if ds.Len() != 3 {
		t.Fatalf("Len() = %d", ds.Len())
	}
	if ds.Version() == "" {
		t.Fatal("expected version id")
	}
}

func TestNewNormalizesDatesAndCopiesInput(t *testing.T) {
	input := []TransactionRecord{record(1, "Loans", "Bank A")}
	input[0].TransactionDate = time.Date(2024, 3, 5, 17, 30, 0, 0, time.FixedZone("X", 3600))

	ds, err := New("test", input)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	input[0].Category = "Mutated"

	records := ds.Records()
	if records[0].Category != "Loans" {
		t.Fatalf("dataset shares caller slice: %q", records[0].Category)
	}
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if !records[0].TransactionDate.Equal(want) {
		t.Fatalf("TransactionDate = %v, want %v", records[0].TransactionDate, want)
	}
}

func TestNewRejectsInvalidRecords(t *testing.T) {
	tooLong := record(2, strings.Repeat("x", MaxTextLength+1), "m")
	noDate := record(3, "c", "m")
	noDate.TransactionDate = time.Time{}
	empty := record(4, "", "m")

	cases := map[string][]TransactionRecord{
		"duplicate id": {record(1, "c", "m"), record(1, "c", "m")},
		"too long":     {tooLong},
		"no date":      {noDate},
		"empty text":   {empty},
	}
	for name, records := range cases {
		if _, err := New("test", records); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestParquetRoundTrip(t *testing.T) {
	ds, err := New("test", []TransactionRecord{
		record(1, "Loans", "Bank A"),
		record(2, "Groceries", "Migros"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	data, err := ds.Parquet()
	if err != nil {
		t.Fatalf("Parquet() error = %v", err)
	}
	again, _ := ds.Parquet()
	if &data[0] != &again[0] {
		t.Fatal("expected cached parquet encoding")
	}

	decoded, err := DecodeParquet("copy", data)
	if err != nil {
		t.Fatalf("DecodeParquet() error = %v", err)
	}
	if decoded.Len() != 2 {
		t.Fatalf("Len() = %d", decoded.Len())
	}
	got := decoded.Records()[1]
	want := ds.Records()[1]
	if got.TransactionID != want.TransactionID || got.Category != want.Category || got.Merchant != want.Merchant || got.Amount != want.Amount {
		t.Fatalf("record = %#v, want %#v", got, want)
	}
	if !got.TransactionDate.Equal(want.TransactionDate) {
		t.Fatalf("TransactionDate = %v, want %v", got.TransactionDate, want.TransactionDate)
	}
}

func TestStoreReplaceIsAtomicSwap(t *testing.T) {
	store := NewStore(nil)
	if _, err := store.Current(); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("Current() error = %v, want ErrNotLoaded", err)
	}

	first, _ := New("first", []TransactionRecord{record(1, "c", "m")})
	second, _ := New("second", []TransactionRecord{record(1, "c", "m"), record(2, "c", "m")})

	if prev := store.Replace(first); prev != nil {
		t.Fatalf("Replace() previous = %v", prev)
	}
	held, _ := store.Current()
	if prev := store.Replace(second); prev != first {
		t.Fatal("Replace() should return the previous snapshot")
	}
	if held.Len() != 1 {
		t.Fatalf("held snapshot changed: Len() = %d", held.Len())
	}
	current, _ := store.Current()
	if current.Source() != "second" {
		t.Fatalf("Source() = %q", current.Source())
	}
}

func record(id int64, category, merchant string) TransactionRecord {
	return TransactionRecord{
		ClientID:               6,
		BankID:                 1,
		AccountID:              10,
		TransactionID:          id,
		TransactionDate:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		TransactionDescription: "payment",
		Amount:                 -12.5,
		Category:               category,
		Merchant:               merchant,
	}
}
