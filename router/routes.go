package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	handler "github.com/krishkalaria12/pix-stash/handlers"
)

// SetupRoutes registers the API surface. Everything under /api/images sits
// behind the auth middleware.
func SetupRoutes(app *fiber.App, authHandler *handler.AuthHandler, imageHandler *handler.ImageHandler, requireAuth fiber.Handler) {
	api := app.Group("/api", logger.New())

	api.Get("/health", handler.Health)

	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Get("/me", requireAuth, authHandler.Me)

	images := api.Group("/images", requireAuth)
	images.Post("/", imageHandler.Upload)
	images.Get("/", imageHandler.List)
	images.Get("/:id", imageHandler.Get)
	images.Delete("/:id", imageHandler.Delete)
	images.Post("/:id/analyze", imageHandler.Analyze)
}
