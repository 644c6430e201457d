package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
)

// rowsToSnapshots converts pgx.Rows into row images keyed by column name.
// SQL NULL comes through as a nil value, which a Snapshot records as a
// real null rather than dropping the column.
func rowsToSnapshots(rows pgx.Rows) ([]domain.Snapshot, error) {
	fields := rows.FieldDescriptions()
	var result []domain.Snapshot
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(domain.Snapshot, len(fields))
		for i, fd := range fields {
			row[fd.Name] = vals[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}
