package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/krishkalaria12/pix-stash/auth"
	"github.com/krishkalaria12/pix-stash/middleware"
	"github.com/krishkalaria12/pix-stash/models"
	"github.com/krishkalaria12/pix-stash/repository"
)

// AuthHandler exposes register/login/me on top of the auth service.
type AuthHandler struct {
	Users *repository.UserRepository
	Auth  *auth.Service
	Log   zerolog.Logger
}

type userResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	if input.Username == "" || input.Email == "" || input.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Username, email and password are required"})
	}

	if _, err := h.Users.GetByEmail(input.Email); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Email already registered"})
	}
	if _, err := h.Users.GetByUsername(input.Username); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Username already taken"})
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to hash password"})
	}

	user := &models.User{
		Username: input.Username,
		Email:    input.Email,
		Password: hash,
	}
	if err := h.Users.Create(user); err != nil {
		h.Log.Error().Err(err).Msg("user create failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create user"})
	}

	tokenStr, err := h.Auth.IssueToken(user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}
	h.setTokenCookie(c, tokenStr)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"access_token": tokenStr,
		"user":         userResponse{ID: user.ID, Username: user.Username, Email: user.Email},
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	identity := input.Username
	if identity == "" {
		identity = input.Email
	}

	user, err := h.Auth.CheckCredentials(identity, input.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
		}
		h.Log.Error().Err(err).Msg("credential check failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	tokenStr, err := h.Auth.IssueToken(user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}
	h.setTokenCookie(c, tokenStr)

	return c.JSON(fiber.Map{
		"access_token": tokenStr,
		"user":         userResponse{ID: user.ID, Username: user.Username, Email: user.Email},
	})
}

// Me returns the authenticated caller's profile.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	user, err := h.Users.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	return c.JSON(userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

// setTokenCookie mirrors the token into a cookie for web clients.
func (h *AuthHandler) setTokenCookie(c *fiber.Ctx, tokenStr string) {
	c.Cookie(&fiber.Cookie{
		Name:     "JWT",
		Value:    tokenStr,
		Expires:  time.Now().Add(time.Hour * 24 * 7),
		HTTPOnly: true,
		SameSite: "Lax",
	})
}
