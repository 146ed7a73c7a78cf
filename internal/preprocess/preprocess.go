// Package preprocess turns raw transaction exports into canonical dataset records.
//
// Source columns are taken by position and renamed to the canonical schema, missing
// values become "unknown", and dates are read day-first.
package preprocess

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/finqa/finqa/internal/dataset"
)

// ColumnCount is the number of positional columns a raw export must carry.
const ColumnCount = 9

// RawRow is one source row in positional order; source header names are ignored.
type RawRow struct {
	ClientID               string `csv:"client_id"`
	BankID                 string `csv:"bank_id"`
	AccountID              string `csv:"account_id"`
	TransactionID          string `csv:"transaction_id"`
	TransactionDate        string `csv:"transaction_date"`
	TransactionDescription string `csv:"transaction_description"`
	Amount                 string `csv:"amount"`
	Category               string `csv:"category"`
	Merchant               string `csv:"merchant"`
}

type SkippedRow struct {
	Row    int
	Reason string
}

type Report struct {
	Rows      int
	Kept      int
	Truncated int
	Skipped   []SkippedRow
}

type Preprocessor struct {
	Logger *slog.Logger
}

func New(logger *slog.Logger) *Preprocessor {
	return &Preprocessor{Logger: logger}
}

// ReadCSV decodes a CSV export with a header line. The header is only used to check the
// column count.
func (p *Preprocessor) ReadCSV(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv is empty")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) != ColumnCount {
		return nil, fmt.Errorf("csv has %d columns, want %d", len(header), ColumnCount)
	}
	reader.FieldsPerRecord = ColumnCount

	rows := make([]RawRow, 0)
	if err := gocsv.UnmarshalCSVWithoutHeaders(reader, &rows); err != nil {
		return nil, fmt.Errorf("decode csv rows: %w", err)
	}
	return rows, nil
}

// Build reads a CSV export and returns a validated snapshot.
func (p *Preprocessor) Build(source string, r io.Reader) (*dataset.Dataset, Report, error) {
	rows, err := p.ReadCSV(r)
	if err != nil {
		return nil, Report{}, err
	}
	records, report := p.Process(rows)
	ds, err := dataset.New(source, records)
	if err != nil {
		return nil, report, err
	}
	return ds, report, nil
}

// Process normalizes raw rows. Rows whose numeric or date fields cannot be recovered are
// skipped and listed in the report, as are repeated transaction ids after the first.
func (p *Preprocessor) Process(rows []RawRow) ([]dataset.TransactionRecord, Report) {
	report := Report{Rows: len(rows)}
	records := make([]dataset.TransactionRecord, 0, len(rows))
	seen := make(map[int64]struct{}, len(rows))
	for i, row := range rows {
		record, truncated, err := normalizeRow(row)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedRow{Row: i + 1, Reason: err.Error()})
			continue
		}
		if _, dup := seen[record.TransactionID]; dup {
			report.Skipped = append(report.Skipped, SkippedRow{
				Row:    i + 1,
				Reason: fmt.Sprintf("duplicate transaction_id %d", record.TransactionID),
			})
			continue
		}
		seen[record.TransactionID] = struct{}{}
		if truncated {
			report.Truncated++
		}
		records = append(records, record)
	}
	report.Kept = len(records)

	if p != nil && p.Logger != nil {
		for _, skipped := range report.Skipped {
			p.Logger.Warn("skipping transaction row",
				slog.Int("row", skipped.Row),
				slog.String("reason", skipped.Reason),
			)
		}
		p.Logger.Info("preprocessed transactions",
			slog.Int("rows", report.Rows),
			slog.Int("kept", report.Kept),
			slog.Int("skipped", len(report.Skipped)),
			slog.Int("truncated", report.Truncated),
		)
	}
	return records, report
}

func normalizeRow(row RawRow) (dataset.TransactionRecord, bool, error) {
	var record dataset.TransactionRecord
	var err error

	ids := []struct {
		name string
		raw  string
		dst  *int64
	}{
		{"client_id", row.ClientID, &record.ClientID},
		{"bank_id", row.BankID, &record.BankID},
		{"account_id", row.AccountID, &record.AccountID},
		{"transaction_id", row.TransactionID, &record.TransactionID},
	}
	for _, id := range ids {
		if *id.dst, err = parseInteger(id.raw); err != nil {
			return dataset.TransactionRecord{}, false, fmt.Errorf("%s: %w", id.name, err)
		}
	}
	if record.TransactionDate, err = ParseDayFirstDate(row.TransactionDate); err != nil {
		return dataset.TransactionRecord{}, false, fmt.Errorf("transaction_date: %w", err)
	}
	if record.Amount, err = parseAmount(row.Amount); err != nil {
		return dataset.TransactionRecord{}, false, fmt.Errorf("amount: %w", err)
	}

	var truncated [3]bool
	record.TransactionDescription, truncated[0] = normalizeText(row.TransactionDescription)
	record.Category, truncated[1] = normalizeText(row.Category)
	record.Merchant, truncated[2] = normalizeText(row.Merchant)
	return record, truncated[0] || truncated[1] || truncated[2], nil
}

// normalizeText applies the null replacement and the length limit.
func normalizeText(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if isNull(value) {
		return dataset.Unknown, false
	}
	if utf8.RuneCountInString(value) <= dataset.MaxTextLength {
		return value, false
	}
	runes := []rune(value)
	return strings.TrimSpace(string(runes[:dataset.MaxTextLength])), true
}

func isNull(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "nan", "null", "none", "nat", "<na>", "n/a", dataset.Unknown:
		return true
	default:
		return false
	}
}

// parseInteger accepts "6" as well as float renderings such as "6.0" that spreadsheet
// exports produce for integer columns.
func parseInteger(raw string) (int64, error) {
	value := strings.TrimSpace(raw)
	if isNull(value) {
		return 0, fmt.Errorf("missing value")
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if !parsed.IsInteger() {
		return 0, fmt.Errorf("non-integer value %q", raw)
	}
	return parsed.IntPart(), nil
}

func parseAmount(raw string) (float64, error) {
	value := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if isNull(value) {
		return 0, fmt.Errorf("missing value")
	}
	value = normalizeSeparators(strings.ReplaceAll(value, "'", ""))
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return parsed.InexactFloat64(), nil
}

// normalizeSeparators rewrites grouping and decimal separators to plain "1234.56". When both
// "," and "." appear, the later one is the decimal mark. A lone comma is a decimal comma
// only with one or two digits after it ("12,5"); otherwise commas group thousands.
func normalizeSeparators(value string) string {
	comma := strings.LastIndex(value, ",")
	dot := strings.LastIndex(value, ".")
	switch {
	case comma == -1 && strings.Count(value, ".") > 1:
		return strings.ReplaceAll(value, ".", "")
	case comma == -1:
		return value
	case dot > comma:
		return strings.ReplaceAll(value, ",", "")
	case dot != -1:
		return strings.Replace(strings.ReplaceAll(value, ".", ""), ",", ".", 1)
	case strings.Count(value, ",") == 1 && len(value)-comma-1 <= 2:
		return strings.Replace(value, ",", ".", 1)
	default:
		return strings.ReplaceAll(value, ",", "")
	}
}

var dayFirstLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
	"2-1-2006 15:04:05",
	"2.1.2006 15:04:05",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2-Jan-2006",
	"2 Jan 2006",
	"2 January 2006",
}

// ParseDayFirstDate parses a date where ambiguous numeric forms are read as day/month/year.
// ISO dates keep their year-month-day order. The result carries no clock part.
func ParseDayFirstDate(raw string) (time.Time, error) {
	value := strings.Join(strings.Fields(raw), " ")
	if isNull(value) {
		return time.Time{}, fmt.Errorf("missing value")
	}
	for _, layout := range dayFirstLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return dataset.DateOnly(parsed), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date %q", raw)
}
