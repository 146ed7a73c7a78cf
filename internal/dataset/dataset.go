// Package dataset holds the canonical transaction table that questions are answered from.
//
// A Dataset is immutable once built. Refreshes build a new Dataset and swap it into a
// Store, so a request that captured a snapshot keeps reading the same rows.
package dataset

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// Unknown replaces missing values in string columns.
	Unknown = "unknown"
	// MaxTextLength bounds description, category and merchant values.
	MaxTextLength = 200
)

var ErrNotLoaded = errors.New("dataset is not loaded")

type TransactionRecord struct {
	ClientID               int64     `json:"client_id"`
	BankID                 int64     `json:"bank_id"`
	AccountID              int64     `json:"account_id"`
	TransactionID          int64     `json:"transaction_id"`
	TransactionDate        time.Time `json:"transaction_date"`
	TransactionDescription string    `json:"transaction_description"`
	Amount                 float64   `json:"amount"`
	Category               string    `json:"category"`
	Merchant               string    `json:"merchant"`
}

type Dataset struct {
	version    string
	source     string
	loadedAt   time.Time
	records    []TransactionRecord
	categories []string
	merchants  []string

	parquetOnce sync.Once
	parquetData []byte
	parquetErr  error
}

// New validates records and builds an immutable snapshot. The slice is copied.
func New(source string, records []TransactionRecord) (*Dataset, error) {
	seen := make(map[int64]int, len(records))
	categories := map[string]struct{}{}
	merchants := map[string]struct{}{}
	normalized := make([]TransactionRecord, len(records))
	for i, record := range records {
		record.TransactionDate = DateOnly(record.TransactionDate)
		if err := validateRecord(record); err != nil {
			return nil, fmt.Errorf("record %d (transaction_id=%d): %w", i, record.TransactionID, err)
		}
		if prev, ok := seen[record.TransactionID]; ok {
			return nil, fmt.Errorf("record %d: duplicate transaction_id %d (first at record %d)", i, record.TransactionID, prev)
		}
		seen[record.TransactionID] = i
		categories[record.Category] = struct{}{}
		merchants[record.Merchant] = struct{}{}
		normalized[i] = record
	}

	return &Dataset{
		version:    uuid.NewString(),
		source:     source,
		loadedAt:   time.Now().UTC(),
		records:    normalized,
		categories: sortedKeys(categories),
		merchants:  sortedKeys(merchants),
	}, nil
}

func validateRecord(record TransactionRecord) error {
	if record.TransactionDate.IsZero() {
		return fmt.Errorf("transaction_date is required")
	}
	fields := []struct {
		name  string
		value string
	}{
		{"transaction_description", record.TransactionDescription},
		{"category", record.Category},
		{"merchant", record.Merchant},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%s is empty", field.name)
		}
		if utf8.RuneCountInString(field.value) > MaxTextLength {
			return fmt.Errorf("%s exceeds %d characters", field.name, MaxTextLength)
		}
	}
	return nil
}

// DateOnly drops the clock part of t, keeping its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (d *Dataset) Version() string     { return d.version }
func (d *Dataset) Source() string      { return d.source }
func (d *Dataset) LoadedAt() time.Time { return d.loadedAt }
func (d *Dataset) Len() int            { return len(d.records) }

// Records returns a copy of the rows in load order.
func (d *Dataset) Records() []TransactionRecord {
	return slices.Clone(d.records)
}

// Categories returns the sorted distinct category values, including Unknown when present.
func (d *Dataset) Categories() []string {
	return slices.Clone(d.categories)
}

// Merchants returns the sorted distinct merchant values, including Unknown when present.
func (d *Dataset) Merchants() []string {
	return slices.Clone(d.merchants)
}
