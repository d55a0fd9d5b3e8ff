// Package sqlite persists the discovery index in a local SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	output_hash TEXT NOT NULL,
	signed_cid  TEXT NOT NULL,
	PRIMARY KEY (output_hash, signed_cid)
);
CREATE INDEX IF NOT EXISTS records_by_hash ON records (output_hash);
`

// Index is a SQLite-backed discovery index.
type Index struct {
	db *sql.DB
}

// Open opens (creating if needed) the index database at path.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index: init schema: %w", err)
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

func (ix *Index) Record(outputHash, signedCID string) error {
	if outputHash == "" || signedCID == "" {
		return fmt.Errorf("index: empty key")
	}
	_, err := ix.db.Exec(
		`INSERT OR IGNORE INTO records (output_hash, signed_cid) VALUES (?, ?)`,
		outputHash, signedCID,
	)
	return err
}

func (ix *Index) Lookup(outputHash string) ([]string, error) {
	rows, err := ix.db.Query(
		`SELECT signed_cid FROM records WHERE output_hash = ? ORDER BY rowid`,
		outputHash,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
