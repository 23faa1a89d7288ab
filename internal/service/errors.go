package service

// Client-visible conditions. Callers compare with errors.Is; wrapped detail stays in the chain.
var (
	ErrNoThemesConfigured = &Error{Code: "no_themes_configured", Message: "the current training cycle has no themes; initialize training first"}
	ErrNoPuzzleAvailable  = &Error{Code: "no_puzzle_available", Message: "no puzzle matches the current filters"}
	ErrStaleExercise      = &Error{Code: "stale_exercise", Message: "the active puzzle no longer exists; request a new one"}
	ErrInvalidSubmission  = &Error{Code: "invalid_submission", Message: "no active puzzle matches this submission"}
	ErrStoreUnavailable   = &Error{Code: "store_unavailable", Message: "puzzle store unavailable, retry later"}
	ErrInvalidTheme       = &Error{Code: "invalid_theme", Message: "theme catalog violates the category hierarchy"}
	ErrInvalidRequest     = &Error{Code: "invalid_request", Message: "invalid request"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
