package models

import (
	"time"

	"github.com/google/uuid"
)

// GlobalScope is the ThemeID used by a user's overall rating.
const GlobalScope uint = 0

// DefaultRating is the value a rating starts from.
const DefaultRating = 1500

// Puzzle is a corpus entry; it is read-only to this service.
type Puzzle struct {
	ID          string   `json:"puzzleId"`
	FEN         string   `json:"fen"`
	Moves       []string `json:"moves"`
	Rating      int      `json:"rating"`
	Themes      []string `json:"themes"`
	Orientation string   `json:"orientation"`
}

// Theme is admin-managed reference data. Categories have no parent and are not trainable;
// trainable themes hang directly under a category and carry the corpus tag.
type Theme struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Name        string  `gorm:"size:100;uniqueIndex" json:"name"`
	ExternalTag *string `gorm:"size:100;uniqueIndex" json:"externalTag,omitempty"`
	ParentID    *uint   `gorm:"index" json:"parentId,omitempty"`
	Trainable   bool    `gorm:"not null;default:false" json:"trainable"`
	Description string  `json:"description,omitempty"`
}

// Tag returns the external tag or "" for categories.
func (t Theme) Tag() string {
	if t.ExternalTag == nil {
		return ""
	}
	return *t.ExternalTag
}

// Rating is an Elo estimate for one user, either global (ThemeID == GlobalScope) or per theme.
type Rating struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UserID      uint      `gorm:"uniqueIndex:idx_rating_user_theme;not null" json:"userId"`
	ThemeID     uint      `gorm:"uniqueIndex:idx_rating_user_theme;not null;default:0" json:"themeId"`
	Value       int       `gorm:"not null;default:1500" json:"value"`
	GamesPlayed int       `gorm:"not null;default:0" json:"gamesPlayed"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsGlobal reports whether the rating is the user's overall rating.
func (r Rating) IsGlobal() bool {
	return r.ThemeID == GlobalScope
}

// TrainingPreferences holds per-user knobs for cycle creation.
type TrainingPreferences struct {
	UserID          uint `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	PuzzlesPerCycle int  `gorm:"not null;default:105" json:"puzzlesPerCycle"`
}

// TrainingCycle is one calendar week of practice for a user.
type TrainingCycle struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex:idx_cycle_window;not null" json:"userId"`
	StartDate   time.Time `gorm:"uniqueIndex:idx_cycle_window;type:date;not null" json:"startDate"`
	EndDate     time.Time `gorm:"uniqueIndex:idx_cycle_window;type:date;not null" json:"endDate"`
	TotalTarget int       `gorm:"not null" json:"totalTarget"`
	Completed   int       `gorm:"not null;default:0" json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CycleTheme assigns a theme to a cycle; priority 1 is the weakest theme.
type CycleTheme struct {
	ID       uint  `gorm:"primaryKey" json:"-"`
	CycleID  uint  `gorm:"uniqueIndex:idx_cycle_theme;not null" json:"cycleId"`
	ThemeID  uint  `gorm:"uniqueIndex:idx_cycle_theme;not null" json:"themeId"`
	Priority int   `gorm:"not null;default:1" json:"priority"`
	Theme    Theme `gorm:"foreignKey:ThemeID" json:"theme"`
}

// RetryEntry is a failed puzzle waiting to be served again.
type RetryEntry struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	UserID        uint      `gorm:"uniqueIndex:idx_retry_user_puzzle;not null" json:"userId"`
	PuzzleID      string    `gorm:"uniqueIndex:idx_retry_user_puzzle;size:100;not null" json:"puzzleId"`
	FailCount     int       `gorm:"not null;default:0" json:"failCount"`
	LastAttemptAt time.Time `gorm:"index" json:"lastAttemptAt"`
}

// ActiveExercise is the single outstanding puzzle of a user.
type ActiveExercise struct {
	UserID     uint      `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	PuzzleID   string    `gorm:"size:100;not null" json:"puzzleId"`
	AssignedAt time.Time `json:"assignedAt"`
}

// PuzzleAttempt is the history of accepted submissions.
type PuzzleAttempt struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_attempt_user_created;not null" json:"userId"`
	PuzzleID  string    `gorm:"index;size:100;not null" json:"puzzleId"`
	Solved    bool      `json:"solved"`
	CreatedAt time.Time `gorm:"index:idx_attempt_user_created" json:"createdAt"`
}

// DailyProgress counts results per user per calendar day.
type DailyProgress struct {
	ID     uint      `gorm:"primaryKey" json:"-"`
	UserID uint      `gorm:"uniqueIndex:idx_daily_user_date;not null" json:"userId"`
	Date   time.Time `gorm:"uniqueIndex:idx_daily_user_date;type:date;not null" json:"date"`
	Solved int       `gorm:"not null;default:0" json:"solved"`
	Failed int       `gorm:"not null;default:0" json:"failed"`
}

// RatingChange reports one rating update of a submission.
type RatingChange struct {
	Scope   string `json:"scope"`
	ThemeID uint   `json:"themeId"`
	Old     int    `json:"old"`
	New     int    `json:"new"`
}

// AllModels lists every table owned by this service, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Theme{},
		&Rating{},
		&TrainingPreferences{},
		&TrainingCycle{},
		&CycleTheme{},
		&RetryEntry{},
		&ActiveExercise{},
		&PuzzleAttempt{},
		&DailyProgress{},
	}
}

// DateOf truncates t to midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
