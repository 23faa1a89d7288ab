package repository

import (
	"context"
	"database/sql"
	"strings"

	"puzzletrainer/internal/metrics"
	"puzzletrainer/internal/models"
)

// SamplingKeySpace bounds the per-puzzle rnd key and the query-time threshold.
const SamplingKeySpace int64 = 1 << 31

// RandomSource is the part of *rand.Rand the sampler needs.
type RandomSource interface {
	Int63n(n int64) int64
}

// PuzzleRepository reads the pre-built puzzle corpus (SQLite, read-only).
type PuzzleRepository struct {
	db *sql.DB
}

// NewPuzzleRepository creates a new puzzle repository.
func NewPuzzleRepository(db *sql.DB) *PuzzleRepository {
	return &PuzzleRepository{db: db}
}

// GetByID returns a puzzle by id, or nil if it is not in the corpus.
func (r *PuzzleRepository) GetByID(ctx context.Context, puzzleID string) (*models.Puzzle, error) {
	query := `SELECT puzzle_id, fen, moves, rating FROM puzzles WHERE puzzle_id = ? LIMIT 1`
	return r.queryOne(ctx, query, puzzleID)
}

// Exists reports whether puzzleID is still in the corpus.
func (r *PuzzleRepository) Exists(ctx context.Context, puzzleID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM puzzles WHERE puzzle_id = ? LIMIT 1`, puzzleID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetRandom returns a uniformly drawn puzzle with rating in [ratingMin, ratingMax] carrying at
// least one of tags (any tag when tags is empty), or nil when nothing matches.
//
// Each puzzle has a fixed random key rnd. A fresh threshold is drawn and the first matching
// row at or above it in rnd order is taken; if the threshold lies above every matching key
// the lookup wraps to the smallest key. Rows without a key are never drawn; BackfillSamplingKeys
// assigns them one.
func (r *PuzzleRepository) GetRandom(ctx context.Context, rng RandomSource, ratingMin, ratingMax int, tags []string) (*models.Puzzle, error) {
	threshold := rng.Int63n(SamplingKeySpace)

	query, args := randomPuzzleQuery(ratingMin, ratingMax, tags, &threshold)
	puzzle, err := r.queryOne(ctx, query, args...)
	if err != nil || puzzle != nil {
		return puzzle, err
	}

	query, args = randomPuzzleQuery(ratingMin, ratingMax, tags, nil)
	puzzle, err = r.queryOne(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if puzzle != nil {
		metrics.SamplingWraparounds.Inc()
	}
	return puzzle, nil
}

func randomPuzzleQuery(ratingMin, ratingMax int, tags []string, threshold *int64) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(`SELECT p.puzzle_id, p.fen, p.moves, p.rating FROM puzzles p WHERE p.rnd IS NOT NULL AND p.rating BETWEEN ? AND ?`)
	args := []interface{}{ratingMin, ratingMax}

	if len(tags) > 0 {
		b.WriteString(` AND EXISTS (SELECT 1 FROM puzzle_themes pt JOIN themes t ON t.id = pt.theme_id
			WHERE pt.puzzle_id = p.puzzle_id AND t.name IN (`)
		b.WriteString(strings.TrimSuffix(strings.Repeat("?,", len(tags)), ","))
		b.WriteString(`))`)
		for _, tag := range tags {
			args = append(args, tag)
		}
	}
	if threshold != nil {
		b.WriteString(` AND p.rnd >= ?`)
		args = append(args, *threshold)
	}
	b.WriteString(` ORDER BY p.rnd ASC LIMIT 1`)
	return b.String(), args
}

func (r *PuzzleRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*models.Puzzle, error) {
	var p models.Puzzle
	var moves string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.FEN, &moves, &p.Rating)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Moves = strings.Fields(moves)
	p.Orientation = BoardOrientation(p.FEN)

	themes, err := r.GetPuzzleThemes(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Themes = themes
	return &p, nil
}

// GetPuzzleThemes returns the theme tags of a puzzle.
func (r *PuzzleRepository) GetPuzzleThemes(ctx context.Context, puzzleID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT t.name FROM themes t
		JOIN puzzle_themes pt ON pt.theme_id = t.id
		WHERE pt.puzzle_id = ? ORDER BY t.name`, puzzleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	themes := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		themes = append(themes, name)
	}
	return themes, rows.Err()
}

// AllTags lists every theme tag present in the corpus.
func (r *PuzzleRepository) AllTags(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM themes ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// BoardOrientation returns the learner's side: the side NOT to move in the stored position,
// because the first move of a puzzle is the opponent's.
func BoardOrientation(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "white"
	}
	if fields[1] == "b" {
		return "white"
	}
	return "black"
}
