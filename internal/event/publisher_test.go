package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/models"
)

func TestDisabledPublisherIsNoop(t *testing.T) {
	p, err := NewEventPublisher("", "training.events", logger.NewNop())
	require.NoError(t, err)
	assert.NoError(t, p.PublishPuzzleSubmitted(context.Background(), &PuzzleSubmitted{ID: uuid.New()}))
	assert.NoError(t, p.Close())
}

func TestPuzzleSubmittedJSON(t *testing.T) {
	ev := PuzzleSubmitted{
		ID:            uuid.MustParse("6f1c8a52-3c1e-4f0f-9a53-2a3c0b5f7f11"),
		UserID:        9,
		PuzzleID:      "00sHx",
		Solved:        true,
		RatingChanges: []models.RatingChange{{Scope: "global", Old: 1500, New: 1520}},
		At:            time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC),
	}
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "00sHx", decoded["puzzleId"])
	assert.EqualValues(t, 9, decoded["userId"])
	assert.Len(t, decoded["ratingChanges"], 1)
}

func TestMockPublisherRecords(t *testing.T) {
	m := NewMockPublisher()
	require.NoError(t, m.PublishPuzzleSubmitted(context.Background(), &PuzzleSubmitted{PuzzleID: "a"}))
	m.Err = errors.New("broker down")
	assert.Error(t, m.PublishPuzzleSubmitted(context.Background(), &PuzzleSubmitted{PuzzleID: "b"}))
	assert.Len(t, m.GetEvents(), 1)
}
