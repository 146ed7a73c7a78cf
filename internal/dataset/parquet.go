package dataset

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
)

const parquetDateLayout = "2006-01-02"

// parquetRow keeps dates as ISO strings; the query engine casts them back to DATE when
// it binds the table.
type parquetRow struct {
	ClientID               int64   `parquet:"client_id"`
	BankID                 int64   `parquet:"bank_id"`
	AccountID              int64   `parquet:"account_id"`
	TransactionID          int64   `parquet:"transaction_id"`
	TransactionDate        string  `parquet:"transaction_date"`
	TransactionDescription string  `parquet:"transaction_description"`
	Amount                 float64 `parquet:"amount"`
	Category               string  `parquet:"category"`
	Merchant               string  `parquet:"merchant"`
}

// Parquet returns the snapshot encoded as a parquet file. The encoding is computed once
// per snapshot.
func (d *Dataset) Parquet() ([]byte, error) {
	d.parquetOnce.Do(func() {
		d.parquetData, d.parquetErr = EncodeParquet(d.records)
	})
	return d.parquetData, d.parquetErr
}

func EncodeParquet(records []TransactionRecord) ([]byte, error) {
	rows := make([]parquetRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, parquetRow{
			ClientID:               record.ClientID,
			BankID:                 record.BankID,
			AccountID:              record.AccountID,
			TransactionID:          record.TransactionID,
			TransactionDate:        record.TransactionDate.Format(parquetDateLayout),
			TransactionDescription: record.TransactionDescription,
			Amount:                 record.Amount,
			Category:               record.Category,
			Merchant:               record.Merchant,
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeParquet reads a parquet file written by EncodeParquet (or any file with the same
// nine columns) into a validated snapshot.
func DecodeParquet(source string, data []byte) (*Dataset, error) {
	rows, err := parquet.Read[parquetRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	records := make([]TransactionRecord, 0, len(rows))
	for i, row := range rows {
		date, err := time.Parse(parquetDateLayout, row.TransactionDate)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid transaction_date %q: %w", i, row.TransactionDate, err)
		}
		records = append(records, TransactionRecord{
			ClientID:               row.ClientID,
			BankID:                 row.BankID,
			AccountID:              row.AccountID,
			TransactionID:          row.TransactionID,
			TransactionDate:        date,
			TransactionDescription: row.TransactionDescription,
			Amount:                 row.Amount,
			Category:               row.Category,
			Merchant:               row.Merchant,
		})
	}
	return New(source, records)
}
