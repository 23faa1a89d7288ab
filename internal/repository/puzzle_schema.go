package repository

import (
	"context"
	"database/sql"
	"fmt"
)

const sampleKeyBatchSize = 5000

// CreateCorpusSchema creates the corpus tables if they are missing. The corpus is normally
// built by the import pipeline; this exists for fresh environments and tests.
func CreateCorpusSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS puzzles (
			puzzle_id TEXT PRIMARY KEY,
			fen TEXT NOT NULL,
			moves TEXT NOT NULL,
			rating INTEGER,
			rnd INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS themes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS puzzle_themes (
			puzzle_id TEXT,
			theme_id INTEGER,
			PRIMARY KEY (puzzle_id, theme_id)
		);`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnsureCorpusIndexes adds the sampling column if needed and creates the lookup indexes.
func EnsureCorpusIndexes(ctx context.Context, db *sql.DB) error {
	if err := ensureSamplingColumn(ctx, db); err != nil {
		return err
	}
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_puzzles_rating ON puzzles(rating);`,
		`CREATE INDEX IF NOT EXISTS idx_puzzles_rnd ON puzzles(rnd);`,
		`CREATE INDEX IF NOT EXISTS idx_puzzles_rating_rnd ON puzzles(rating, rnd);`,
		`CREATE INDEX IF NOT EXISTS idx_themes_name ON themes(name);`,
		`CREATE INDEX IF NOT EXISTS idx_puzzle_themes_puzzle ON puzzle_themes(puzzle_id);`,
		`CREATE INDEX IF NOT EXISTS idx_puzzle_themes_theme ON puzzle_themes(theme_id);`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func ensureSamplingColumn(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(puzzles)`)
	if err != nil {
		return err
	}
	found := false
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return err
		}
		if name == "rnd" {
			found = true
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if found {
		return nil
	}
	_, err = db.ExecContext(ctx, `ALTER TABLE puzzles ADD COLUMN rnd INTEGER`)
	return err
}

// BackfillSamplingKeys assigns an rnd key to every puzzle that lacks one and returns how many
// rows were updated. Existing keys are never changed.
func BackfillSamplingKeys(ctx context.Context, db *sql.DB, rng RandomSource) (int, error) {
	total := 0
	for {
		ids, err := puzzlesWithoutKey(ctx, db)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return total, err
		}
		stmt, err := tx.PrepareContext(ctx, `UPDATE puzzles SET rnd = ? WHERE puzzle_id = ? AND rnd IS NULL`)
		if err != nil {
			_ = tx.Rollback()
			return total, err
		}
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, rng.Int63n(SamplingKeySpace), id); err != nil {
				stmt.Close()
				_ = tx.Rollback()
				return total, fmt.Errorf("assign sampling key to %s: %w", id, err)
			}
		}
		stmt.Close()
		if err := tx.Commit(); err != nil {
			return total, err
		}
		total += len(ids)
	}
}

func puzzlesWithoutKey(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT puzzle_id FROM puzzles WHERE rnd IS NULL LIMIT ?`, sampleKeyBatchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
