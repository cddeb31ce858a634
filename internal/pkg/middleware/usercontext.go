package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/docquery/docquery/app/repository"
	"github.com/docquery/docquery/internal/pkg/session"
	"github.com/docquery/docquery/internal/pkg/usercontext"
)

// UserContextMiddleware sets up the complete user context for every request.
// This centralizes user session handling and eliminates code duplication.
func UserContextMiddleware(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		setAnonymous(c)
		return c.Next()
	}

	authenticated, _ := sess.Get(usercontext.AuthKey).(bool)
	userID, ok := sess.Get(usercontext.KeyUserID).(uint)
	if !authenticated || !ok || userID == 0 {
		setAnonymous(c)
		return c.Next()
	}

	username, _ := sess.Get(usercontext.KeyUsername).(string)
	isAdmin, _ := sess.Get(usercontext.KeyIsAdmin).(bool)

	// Plan with session-first strategy: fall back to the subscription row and
	// cache it for subsequent requests.
	plan := session.GetSessionValue(c, usercontext.KeyUserPlan)
	if plan == "" {
		if sub, err := repository.GetGlobalFactory().GetSubscriptionRepository().GetByUserID(userID); err == nil {
			plan = sub.Plan
		}
		if plan != "" {
			_ = session.SetSessionValue(c, usercontext.KeyUserPlan, plan)
		}
	}

	userCtx := usercontext.UserContext{
		UserID:     userID,
		Username:   username,
		IsLoggedIn: true,
		IsAdmin:    isAdmin,
		Plan:       plan,
	}
	c.Locals("USER_CONTEXT", userCtx)
	c.Locals(usercontext.KeyUserID, userID)
	c.Locals(usercontext.KeyUsername, username)
	c.Locals(usercontext.KeyIsAdmin, isAdmin)

	return c.Next()
}

func setAnonymous(c *fiber.Ctx) {
	c.Locals("USER_CONTEXT", usercontext.UserContext{
		IsLoggedIn: false,
		IsAdmin:    false,
	})
	c.Locals(usercontext.KeyIsAdmin, false)
}
