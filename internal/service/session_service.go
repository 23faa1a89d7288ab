package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"puzzletrainer/internal/event"
	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/metrics"
	"puzzletrainer/internal/models"
	"puzzletrainer/internal/repository"
)

// Where a served puzzle came from.
const (
	SourceActive = "active"
	SourceRetry  = "retry"
	SourceThemed = "themed"
)

// PuzzleStore is the read-only corpus.
type PuzzleStore interface {
	GetByID(ctx context.Context, puzzleID string) (*models.Puzzle, error)
	GetRandom(ctx context.Context, rng repository.RandomSource, ratingMin, ratingMax int, tags []string) (*models.Puzzle, error)
}

// SessionConfig holds the selection policy.
type SessionConfig struct {
	RetryProbability float64
	BandSteps        []int
	StoreTimeout     time.Duration
}

// SessionDeps are the collaborators of SessionService. Leaderboard and Publisher are optional.
type SessionDeps struct {
	DB          *gorm.DB
	Puzzles     PuzzleStore
	Exercises   *repository.ExerciseRepository
	Retries     *repository.RetryRepository
	Cycles      *repository.CycleRepository
	Progress    *repository.ProgressRepository
	Scheduler   *CycleScheduler
	Ratings     *RatingService
	Leaderboard *repository.LeaderboardRepository
	Publisher   event.Publisher
	Rand        Rand
	Now         func() time.Time
	Log         *logger.Logger
}

// SessionService runs the get-next-puzzle / submit-result round of a user.
type SessionService struct {
	SessionDeps
	cfg SessionConfig
	log *logger.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(deps SessionDeps, cfg SessionConfig) *SessionService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if len(cfg.BandSteps) == 0 {
		cfg.BandSteps = []int{50}
	}
	return &SessionService{
		SessionDeps: deps,
		cfg:         cfg,
		log:         deps.Log.With("component", "session"),
	}
}

// CycleSummary describes the current training cycle.
type CycleSummary struct {
	ID          uint      `json:"id"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	TotalTarget int       `json:"totalTarget"`
	Completed   int       `json:"completed"`
}

// AssignedTheme is a theme of the current cycle.
type AssignedTheme struct {
	ThemeID  uint   `json:"themeId"`
	Name     string `json:"name"`
	Tag      string `json:"tag"`
	Priority int    `json:"priority"`
}

// NextPuzzle is the result of get-next-puzzle.
type NextPuzzle struct {
	Puzzle         *models.Puzzle  `json:"puzzle"`
	Source         string          `json:"source"`
	Cycle          CycleSummary    `json:"cycle"`
	AssignedThemes []AssignedTheme `json:"assignedThemes"`
}

// SubmitResult is the result of an accepted submission.
type SubmitResult struct {
	Accepted      bool                  `json:"accepted"`
	Solved        bool                  `json:"solved"`
	AttemptID     uuid.UUID             `json:"attemptId"`
	RatingChanges []models.RatingChange `json:"ratingChanges"`
}

// GetNextPuzzle returns the user's active puzzle, or draws and assigns a new one.
func (s *SessionService) GetNextPuzzle(ctx context.Context, userID uint) (*NextPuzzle, error) {
	now := s.Now()
	cycle, err := s.Scheduler.EnsureCurrentCycle(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	assignments, err := s.Cycles.Themes(ctx, nil, cycle.ID)
	if err != nil {
		return nil, fmt.Errorf("load cycle themes: %w", err)
	}
	if len(assignments) == 0 {
		return nil, ErrNoThemesConfigured
	}
	result := &NextPuzzle{
		Cycle:          summarizeCycle(cycle),
		AssignedThemes: summarizeThemes(assignments),
	}

	active, err := s.Exercises.Get(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("load active exercise: %w", err)
	}
	if active != nil {
		puzzle, err := s.serveActive(ctx, active)
		if err != nil {
			return nil, err
		}
		result.Puzzle, result.Source = puzzle, SourceActive
		metrics.PuzzlesServed.WithLabelValues(SourceActive).Inc()
		return result, nil
	}

	puzzle, source, err := s.draw(ctx, userID, assignments)
	if err != nil {
		return nil, err
	}

	ex, created, err := s.Exercises.CreateIfAbsent(ctx, nil, userID, puzzle.ID, now)
	if err != nil {
		return nil, fmt.Errorf("assign exercise: %w", err)
	}
	if !created {
		// a concurrent request assigned first; serve its puzzle
		puzzle, err = s.serveActive(ctx, ex)
		if err != nil {
			return nil, err
		}
		source = SourceActive
	}
	result.Puzzle, result.Source = puzzle, source
	metrics.PuzzlesServed.WithLabelValues(source).Inc()
	s.log.Debug("puzzle served", "userId", userID, "puzzleId", puzzle.ID, "source", source)
	return result, nil
}

// serveActive resolves the active exercise's puzzle, clearing the exercise if the corpus lost it.
func (s *SessionService) serveActive(ctx context.Context, active *models.ActiveExercise) (*models.Puzzle, error) {
	puzzle, err := s.fetchByID(ctx, active.PuzzleID)
	if err != nil {
		return nil, err
	}
	if puzzle == nil {
		if _, err := s.Exercises.Delete(ctx, nil, active.UserID, active.PuzzleID); err != nil {
			return nil, fmt.Errorf("delete stale exercise: %w", err)
		}
		s.log.Warn("active exercise references a missing puzzle, cleared", "userId", active.UserID, "puzzleId", active.PuzzleID)
		return nil, ErrStaleExercise
	}
	return puzzle, nil
}

// draw picks a retry entry with the configured probability, otherwise a themed puzzle.
func (s *SessionService) draw(ctx context.Context, userID uint, assignments []models.CycleTheme) (*models.Puzzle, string, error) {
	if s.Rand.Float64() < s.cfg.RetryProbability {
		puzzle, err := s.drawRetry(ctx, userID)
		if err != nil {
			return nil, "", err
		}
		if puzzle != nil {
			return puzzle, SourceRetry, nil
		}
	}
	puzzle, err := s.drawThemed(ctx, userID, assignments)
	if err != nil {
		return nil, "", err
	}
	return puzzle, SourceThemed, nil
}

// drawRetry returns the head of the retry queue, or nil when the queue is empty. Entries whose
// puzzle left the corpus are dropped.
func (s *SessionService) drawRetry(ctx context.Context, userID uint) (*models.Puzzle, error) {
	entry, err := s.Retries.Next(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("load retry queue: %w", err)
	}
	if entry == nil {
		return nil, nil
	}
	puzzle, err := s.fetchByID(ctx, entry.PuzzleID)
	if err != nil {
		return nil, err
	}
	if puzzle == nil {
		if _, err := s.Retries.Remove(ctx, nil, userID, entry.PuzzleID); err != nil {
			return nil, fmt.Errorf("drop stale retry entry: %w", err)
		}
		s.log.Warn("retry entry references a missing puzzle, dropped", "userId", userID, "puzzleId", entry.PuzzleID)
		return nil, nil
	}
	return puzzle, nil
}

// drawThemed picks a cycle theme and samples around the user's rating for it, widening the band
// step by step.
func (s *SessionService) drawThemed(ctx context.Context, userID uint, assignments []models.CycleTheme) (*models.Puzzle, error) {
	pick, err := s.Scheduler.PickTheme(s.Rand, assignments)
	if err != nil {
		return nil, err
	}
	tag := pick.Theme.Tag()
	if tag == "" {
		s.log.Warn("assigned theme has no corpus tag", "userId", userID, "themeId", pick.ThemeID)
		return nil, ErrNoPuzzleAvailable
	}
	center, err := s.Ratings.ThemeRating(ctx, userID, pick.ThemeID)
	if err != nil {
		return nil, fmt.Errorf("load theme rating: %w", err)
	}

	for _, step := range s.cfg.BandSteps {
		lo, hi := center-step, center+step
		if lo < 0 {
			lo = 0
		}
		puzzle, err := s.fetchRandom(ctx, lo, hi, []string{tag})
		if err != nil {
			return nil, err
		}
		if puzzle != nil {
			return puzzle, nil
		}
		s.log.Debug("no puzzle in band", "userId", userID, "tag", tag, "min", lo, "max", hi)
	}
	return nil, ErrNoPuzzleAvailable
}

// SubmitResult records the outcome of the user's active puzzle. All writes commit together.
func (s *SessionService) SubmitResult(ctx context.Context, userID uint, puzzleID string, solved bool) (*SubmitResult, error) {
	active, err := s.Exercises.Get(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("load active exercise: %w", err)
	}
	if active == nil || active.PuzzleID != puzzleID {
		metrics.RejectedSubmissions.Inc()
		return nil, ErrInvalidSubmission
	}

	// resolved before any write so a store failure leaves state untouched
	puzzle, err := s.fetchByID(ctx, puzzleID)
	if err != nil {
		return nil, err
	}
	if puzzle == nil {
		if _, err := s.Exercises.Delete(ctx, nil, userID, puzzleID); err != nil {
			return nil, fmt.Errorf("delete stale exercise: %w", err)
		}
		s.log.Warn("submitted puzzle no longer exists, exercise cleared", "userId", userID, "puzzleId", puzzleID)
		return nil, ErrStaleExercise
	}

	now := s.Now()
	result := &SubmitResult{Accepted: true, Solved: solved}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.Exercises.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if locked == nil || locked.PuzzleID != puzzleID {
			return ErrInvalidSubmission
		}
		removed, err := s.Exercises.Delete(ctx, tx, userID, puzzleID)
		if err != nil {
			return err
		}
		if removed != 1 {
			return ErrInvalidSubmission
		}

		attempt, err := s.Progress.RecordAttempt(ctx, tx, userID, puzzleID, solved, now)
		if err != nil {
			return fmt.Errorf("record attempt: %w", err)
		}
		result.AttemptID = attempt.ID
		if err := s.Progress.IncrementDaily(ctx, tx, userID, now, solved); err != nil {
			return fmt.Errorf("daily progress: %w", err)
		}

		if solved {
			if _, err := s.Retries.Remove(ctx, tx, userID, puzzleID); err != nil {
				return fmt.Errorf("clear retry entry: %w", err)
			}
			n, err := s.Cycles.IncrementCompleted(ctx, tx, userID, now)
			if err != nil {
				return fmt.Errorf("cycle progress: %w", err)
			}
			if n == 0 {
				s.log.Warn("no cycle covers the submission, completion not counted", "userId", userID, "puzzleId", puzzleID)
			}
		} else if err := s.Retries.RecordFailure(ctx, tx, userID, puzzleID, now); err != nil {
			return fmt.Errorf("record retry entry: %w", err)
		}

		result.RatingChanges, err = s.Ratings.ApplyOutcome(ctx, tx, userID, puzzle, solved)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidSubmission) {
			metrics.RejectedSubmissions.Inc()
			return nil, err
		}
		return nil, fmt.Errorf("submit result: %w", err)
	}

	outcome := "failed"
	if solved {
		outcome = "solved"
	}
	metrics.Submissions.WithLabelValues(outcome).Inc()
	s.afterCommit(ctx, userID, puzzleID, solved, result, now)
	return result, nil
}

// afterCommit mirrors the global rating and publishes the submission. Failures are only logged.
func (s *SessionService) afterCommit(ctx context.Context, userID uint, puzzleID string, solved bool, result *SubmitResult, at time.Time) {
	if s.Leaderboard != nil {
		for _, c := range result.RatingChanges {
			if c.ThemeID != models.GlobalScope {
				continue
			}
			if err := s.Leaderboard.UpdateRating(ctx, userID, c.New); err != nil {
				s.log.Warn("leaderboard update failed", "userId", userID, "error", err)
			}
		}
	}
	if s.Publisher != nil {
		ev := &event.PuzzleSubmitted{
			ID:            uuid.New(),
			UserID:        userID,
			PuzzleID:      puzzleID,
			Solved:        solved,
			RatingChanges: result.RatingChanges,
			At:            at,
		}
		if err := s.Publisher.PublishPuzzleSubmitted(ctx, ev); err != nil {
			s.log.Warn("event publish failed", "userId", userID, "puzzleId", puzzleID, "error", err)
		}
	}
}

func (s *SessionService) fetchByID(ctx context.Context, puzzleID string) (*models.Puzzle, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	puzzle, err := s.Puzzles.GetByID(ctx, puzzleID)
	if err != nil {
		return nil, s.storeError(err)
	}
	return puzzle, nil
}

func (s *SessionService) fetchRandom(ctx context.Context, ratingMin, ratingMax int, tags []string) (*models.Puzzle, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	puzzle, err := s.Puzzles.GetRandom(ctx, s.Rand, ratingMin, ratingMax, tags)
	if err != nil {
		return nil, s.storeError(err)
	}
	return puzzle, nil
}

func (s *SessionService) storeError(err error) error {
	kind := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		kind = "timeout"
	}
	metrics.StoreErrors.WithLabelValues(kind).Inc()
	s.log.Error("puzzle store call failed", "kind", kind, "error", err)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func summarizeCycle(c *models.TrainingCycle) CycleSummary {
	return CycleSummary{
		ID:          c.ID,
		StartDate:   c.StartDate,
		EndDate:     c.EndDate,
		TotalTarget: c.TotalTarget,
		Completed:   c.Completed,
	}
}

func summarizeThemes(assignments []models.CycleTheme) []AssignedTheme {
	out := make([]AssignedTheme, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, AssignedTheme{
			ThemeID:  a.ThemeID,
			Name:     a.Theme.Name,
			Tag:      a.Theme.Tag(),
			Priority: a.Priority,
		})
	}
	return out
}
