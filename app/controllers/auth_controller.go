package controllers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/app/repository"
	"github.com/docquery/docquery/internal/pkg/mail"
	"github.com/docquery/docquery/internal/pkg/session"
	"github.com/docquery/docquery/internal/pkg/usercontext"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleAuthRegister creates a new account. The user row and the FREE
// subscription row are written in one transaction; every account carries
// exactly one subscription from the moment it exists.
func HandleAuthRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "malformed JSON body")
	}

	user, err := models.CreateUser(strings.TrimSpace(req.Name), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}
	if err := user.GenerateActivationToken(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to prepare account")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := repo.GetByEmail(user.Email); err == nil {
		return jsonError(c, fiber.StatusConflict, "email_taken", "an account with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to check email")
	}

	if err := repo.CreateWithSubscription(user, nil); err != nil {
		// Two concurrent registrations can both pass the email pre-check;
		// the unique index decides the loser, which still gets the 409.
		if repository.IsDuplicateKey(err) {
			return jsonError(c, fiber.StatusConflict, "email_taken", "an account with this email already exists")
		}
		log.Printf("registration failed for %s: %v", user.Email, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to create account")
	}

	go func(email, name, token string) {
		if err := mail.SendActivationEmail(email, name, token); err != nil {
			log.Printf("failed to send activation mail to %s: %v", email, err)
		}
	}(user.Email, user.Name, user.ActivationToken)

	if err := createUserSession(c, user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "account created but login failed")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user": user,
		"plan": models.PlanFree,
	})
}

// HandleAuthActivate confirms a user's email address via the token from
// the activation mail. The token is single use.
func HandleAuthActivate(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "missing activation token")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByActivationToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "unknown or already used activation token")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to look up token")
	}

	user.ActivationToken = ""
	user.Status = models.STATUS_ACTIVE
	if err := repo.Update(user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to activate account")
	}

	return c.JSON(fiber.Map{"activated": true})
}

// HandleAuthLogin authenticates by email and password and opens a session.
func HandleAuthLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "malformed JSON body")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusUnauthorized, "invalid_credentials", "wrong email or password")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "login failed")
	}

	if !user.CheckPassword(req.Password) {
		return jsonError(c, fiber.StatusUnauthorized, "invalid_credentials", "wrong email or password")
	}
	if !user.IsActive() {
		return jsonError(c, fiber.StatusForbidden, "account_disabled", "account is not active")
	}

	if err := createUserSession(c, user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to create session")
	}

	return c.JSON(fiber.Map{"user": user})
}

// HandleAuthLogout destroys the current session.
func HandleAuthLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to load session")
	}
	if err := sess.Destroy(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to destroy session")
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleAuthMe returns the authenticated user's profile.
func HandleAuthMe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "user not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to load user")
	}
	return c.JSON(fiber.Map{"user": user, "plan": userCtx.Plan})
}

func createUserSession(c *fiber.Ctx, user *models.User) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return err
	}

	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUsername, user.Name)
	sess.Set(usercontext.KeyIsAdmin, user.IsAdmin())

	return sess.Save()
}
