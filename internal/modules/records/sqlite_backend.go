package records

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/famledger/internal/database"
	"github.com/aristath/famledger/internal/domain"
)

// SQLiteBackend keeps the records in the records table.
type SQLiteBackend struct {
	db *database.DB
}

// NewSQLiteBackend uses an already migrated database.
func NewSQLiteBackend(db *database.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// Name returns "sqlite"
func (b *SQLiteBackend) Name() string { return "sqlite" }

// Read returns the records in their saved order.
func (b *SQLiteBackend) Read(ctx context.Context) ([]domain.Record, error) {
	rows, err := b.db.Conn().QueryContext(ctx, `
		SELECT id, member, type, amount, main_category, sub_category, description, date
		FROM records
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.Record, 0)
	for rows.Next() {
		var r domain.Record
		var recordType string
		if err := rows.Scan(&r.ID, &r.Member, &recordType, &r.Amount,
			&r.MainCategory, &r.SubCategory, &r.Description, &r.Date); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Type = domain.RecordType(recordType)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// Write replaces the table contents in one transaction.
func (b *SQLiteBackend) Write(ctx context.Context, records []domain.Record) error {
	return database.WithTransaction(b.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
			return fmt.Errorf("failed to clear records: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO records (id, member, type, amount, main_category, sub_category, description, date, position, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, r := range records {
			if _, err := stmt.ExecContext(ctx, r.ID, r.Member, string(r.Type), r.Amount,
				r.MainCategory, r.SubCategory, r.Description, r.Date, i); err != nil {
				return fmt.Errorf("failed to insert record %s: %w", r.ID, err)
			}
		}
		return nil
	})
}
