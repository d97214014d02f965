package repositories

import (
	"database/sql"
	"fmt"
)

// sequenceTables lists the tables that have a "<table>_sequence" counter row.
var sequenceTables = map[string]bool{"runs": true}

// NextSequence increments and returns the counter of table in a single statement.
//
// The counter is what `umx history list` shows as the run number (#42).
func NextSequence(db *sql.DB, table string) (int, error) {
	if !sequenceTables[table] {
		return 0, fmt.Errorf("no sequence for table %q", table)
	}

	var sequence int
	query := fmt.Sprintf("UPDATE %s_sequence SET value = value + 1 WHERE id = 1 RETURNING value", table)
	if err := db.QueryRow(query).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}
	return sequence, nil
}
