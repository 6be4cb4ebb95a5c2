// Package archive persists completed runs to Postgres for offline analysis.
// It is an optional sink: the simulation's source of truth stays in the
// per-agent journal and audit files.
package archive

import (
	"encoding/json"
	"fmt"

	"main/internal/schema"
	"main/pkg/conn"
)

const defaultBatchSize = 500

// TransactionRow is one executed trade in the archive schema.
type TransactionRow struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"size:64;index:idx_txn_run"`
	Agent      string `gorm:"size:64;index:idx_txn_agent"`
	Date       string `gorm:"size:32"`
	SequenceID uint64
	Action     string `gorm:"size:8"`
	Symbol     string `gorm:"size:16"`
	Amount     string `gorm:"size:32"`
	Positions  string `gorm:"type:text"`
}

// TableName implements the gorm table naming convention.
func (TransactionRow) TableName() string { return "sim_transactions" }

// AuditRow is one audit log line in the archive schema.
type AuditRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"size:64;index:idx_audit_run"`
	Agent     string `gorm:"size:64;index:idx_audit_agent"`
	Type      string `gorm:"size:32"`
	Timestamp string `gorm:"size:32"`
	Summary   string `gorm:"type:text"`
	Payload   string `gorm:"type:text"`
}

// TableName implements the gorm table naming convention.
func (AuditRow) TableName() string { return "sim_audit_records" }

// Sink writes run artifacts to Postgres in batches.
type Sink struct {
	client *conn.Client
	batch  int
}

// NewSink connects to Postgres and migrates the archive tables.
func NewSink(dsn string, batchSize int) (*Sink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("archive dsn is empty")
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	client, err := conn.Open(conn.Config{DSN: dsn})
	if err != nil {
		return nil, err
	}
	if err := client.DB().AutoMigrate(&TransactionRow{}, &AuditRow{}); err != nil {
		client.Close()
		return nil, err
	}
	return &Sink{client: client, batch: batchSize}, nil
}

// Close releases the connection pool.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}

// ArchiveTransactions batch-inserts a run's journal.
func (s *Sink) ArchiveTransactions(runID, agent string, txs []schema.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	rows := make([]TransactionRow, 0, len(txs))
	for _, tx := range txs {
		positions, err := json.Marshal(tx.Positions)
		if err != nil {
			return err
		}
		rows = append(rows, TransactionRow{
			RunID:      runID,
			Agent:      agent,
			Date:       tx.Date,
			SequenceID: tx.SequenceID,
			Action:     string(tx.ThisAction.Action),
			Symbol:     tx.ThisAction.Symbol,
			Amount:     tx.ThisAction.Amount.String(),
			Positions:  string(positions),
		})
	}
	return s.client.DB().CreateInBatches(rows, s.batch).Error
}

// ArchiveAudit batch-inserts a run's audit log.
func (s *Sink) ArchiveAudit(records []schema.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]AuditRow, 0, len(records))
	for _, rec := range records {
		payload := ""
		if rec.Payload != nil {
			data, err := json.Marshal(rec.Payload)
			if err != nil {
				return err
			}
			payload = string(data)
		}
		rows = append(rows, AuditRow{
			RunID:     rec.RunID,
			Agent:     rec.Agent,
			Type:      string(rec.Type),
			Timestamp: rec.Timestamp,
			Summary:   rec.Summary,
			Payload:   payload,
		})
	}
	return s.client.DB().CreateInBatches(rows, s.batch).Error
}
