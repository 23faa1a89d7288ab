package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

const userKeyLocal = "rateLimitUser"

// ResolveUserKey records the requesting user in Locals for per-user rate limiting. The id comes
// from the userId query parameter, or from the JSON body of a POST. Ids that do not parse are left
// for the handler to reject.
func ResolveUserKey(c *fiber.Ctx) error {
	if id, ok := requestUserID(c); ok {
		c.Locals(userKeyLocal, id)
	}
	return c.Next()
}

func requestUserID(c *fiber.Ctx) (uint64, bool) {
	if q := c.Query("userId"); q != "" {
		id, err := strconv.ParseUint(q, 10, 32)
		return id, err == nil && id != 0
	}
	if c.Method() != fiber.MethodPost || len(c.Body()) == 0 {
		return 0, false
	}
	var body struct {
		UserID uint `json:"userId"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil || body.UserID == 0 {
		return 0, false
	}
	return uint64(body.UserID), true
}

// rateLimitKey buckets by the user ResolveUserKey found, else by client IP.
func rateLimitKey(c *fiber.Ctx) string {
	if id, ok := c.Locals(userKeyLocal).(uint64); ok {
		return "user:" + strconv.FormatUint(id, 10)
	}
	return "ip:" + c.IP()
}

// NewRateLimiter allows max requests per user (or IP) per minute.
func NewRateLimiter(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   time.Minute,
		KeyGenerator: rateLimitKey,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
				"code":  "rate_limited",
			})
		},
	})
}
