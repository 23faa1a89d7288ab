package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/service"
)

// TrainerHandlers contains HTTP handlers for the training endpoints
type TrainerHandlers struct {
	sessionService     *service.SessionService
	trainingService    *service.TrainingService
	progressService    *service.ProgressService
	themeService       *service.ThemeService
	leaderboardService *service.LeaderboardService
	log                *logger.Logger
}

// NewTrainerHandlers creates a new trainer handlers instance
func NewTrainerHandlers(
	sessionService *service.SessionService,
	trainingService *service.TrainingService,
	progressService *service.ProgressService,
	themeService *service.ThemeService,
	leaderboardService *service.LeaderboardService,
	log *logger.Logger,
) *TrainerHandlers {
	return &TrainerHandlers{
		sessionService:     sessionService,
		trainingService:    trainingService,
		progressService:    progressService,
		themeService:       themeService,
		leaderboardService: leaderboardService,
		log:                log.With("component", "http"),
	}
}

// Register mounts every route on app. Per-user rate limiting applies to the /v1 user routes.
func (h *TrainerHandlers) Register(app *fiber.App, rateLimit fiber.Handler) {
	v1 := app.Group("/v1")

	perUser := []fiber.Handler{ResolveUserKey}
	if rateLimit != nil {
		perUser = append(perUser, rateLimit)
	}
	with := func(handler fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, perUser...), handler)
	}
	v1.Get("/puzzles/next", with(h.HandleNextPuzzle)...)
	v1.Post("/puzzles/submit", with(h.HandleSubmitResult)...)
	v1.Get("/progress", with(h.HandleGetProgress)...)
	v1.Post("/training/init", with(h.HandleInitialize)...)
	v1.Delete("/training", with(h.HandlePurge)...)

	v1.Get("/themes", h.HandleListThemes)
	v1.Get("/leaderboard/rating", h.HandleGetRatingBoard)
}

// HandleNextPuzzle handles GET /v1/puzzles/next
// Query params: userId (required)
func (h *TrainerHandlers) HandleNextPuzzle(c *fiber.Ctx) error {
	userID, err := queryUserID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	next, err := h.sessionService.GetNextPuzzle(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, "Failed to get next puzzle", err, "userId", userID)
	}

	return c.JSON(fiber.Map{
		"userId":         userID,
		"puzzle":         next.Puzzle,
		"source":         next.Source,
		"cycle":          next.Cycle,
		"assignedThemes": next.AssignedThemes,
	})
}

// HandleSubmitResult handles POST /v1/puzzles/submit
func (h *TrainerHandlers) HandleSubmitResult(c *fiber.Ctx) error {
	var req struct {
		UserID   uint   `json:"userId"`
		PuzzleID string `json:"puzzleId"`
		Solved   *bool  `json:"solved"`
	}

	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if req.UserID == 0 || req.PuzzleID == "" || req.Solved == nil {
		return badRequest(c, "userId, puzzleId, and solved are required")
	}

	res, err := h.sessionService.SubmitResult(c.UserContext(), req.UserID, req.PuzzleID, *req.Solved)
	if err != nil {
		return h.fail(c, "Failed to submit result", err, "userId", req.UserID, "puzzleId", req.PuzzleID)
	}

	return c.JSON(res)
}

// HandleGetProgress handles GET /v1/progress
func (h *TrainerHandlers) HandleGetProgress(c *fiber.Ctx) error {
	userID, err := queryUserID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	summary, err := h.progressService.GetSummary(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, "Failed to get progress", err, "userId", userID)
	}

	return c.JSON(summary)
}

// HandleInitialize handles POST /v1/training/init
func (h *TrainerHandlers) HandleInitialize(c *fiber.Ctx) error {
	var req struct {
		UserID          uint `json:"userId"`
		PuzzlesPerCycle *int `json:"puzzlesPerCycle"`
	}

	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == 0 {
		return badRequest(c, "userId is required")
	}

	res, err := h.trainingService.Initialize(c.UserContext(), req.UserID, req.PuzzlesPerCycle)
	if err != nil {
		return h.fail(c, "Failed to initialize training", err, "userId", req.UserID)
	}

	return c.JSON(res)
}

// HandlePurge handles DELETE /v1/training
func (h *TrainerHandlers) HandlePurge(c *fiber.Ctx) error {
	userID, err := queryUserID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	removed, err := h.trainingService.Purge(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, "Failed to delete training data", err, "userId", userID)
	}

	return c.JSON(fiber.Map{
		"userId":      userID,
		"rowsDeleted": removed,
	})
}

// HandleListThemes handles GET /v1/themes
func (h *TrainerHandlers) HandleListThemes(c *fiber.Ctx) error {
	groups, err := h.themeService.ListGrouped(c.UserContext())
	if err != nil {
		return h.fail(c, "Failed to list themes", err)
	}
	return c.JSON(groups)
}

// HandleGetRatingBoard handles GET /v1/leaderboard/rating
func (h *TrainerHandlers) HandleGetRatingBoard(c *fiber.Ctx) error {
	limitStr := c.Query("limit", "10")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100 // Cap at 100
	}

	entries, err := h.leaderboardService.GetTop(c.UserContext(), limit)
	if err != nil {
		return h.fail(c, "Failed to get leaderboard", err)
	}

	return c.JSON(entries)
}

// statusFor maps a service error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case "no_puzzle_available":
		return fiber.StatusNotFound
	case "no_themes_configured":
		return fiber.StatusConflict
	case "stale_exercise":
		return fiber.StatusGone
	case "invalid_submission", "invalid_request", "invalid_theme":
		return fiber.StatusBadRequest
	case "store_unavailable":
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func (h *TrainerHandlers) fail(c *fiber.Ctx, msg string, err error, kv ...interface{}) error {
	var se *service.Error
	if errors.As(err, &se) {
		status := statusFor(se.Code)
		if status >= fiber.StatusInternalServerError {
			h.log.Warn(msg, append(kv, "code", se.Code, "error", err)...)
		}
		return c.Status(status).JSON(fiber.Map{
			"error": se.Message,
			"code":  se.Code,
		})
	}

	h.log.Error(msg, append(kv, "error", err)...)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   msg,
		"details": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"code":  service.ErrInvalidRequest.Code,
	})
}

func queryUserID(c *fiber.Ctx) (uint, error) {
	userIDStr := c.Query("userId")
	if userIDStr == "" {
		return 0, errors.New("userId query parameter is required")
	}
	userID, err := strconv.ParseUint(userIDStr, 10, 32)
	if err != nil || userID == 0 {
		return 0, errors.New("userId must be a positive integer")
	}
	return uint(userID), nil
}
