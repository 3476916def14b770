package handler

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/krishkalaria12/pix-stash/middleware"
	"github.com/krishkalaria12/pix-stash/models"
	"github.com/krishkalaria12/pix-stash/repository"
	"github.com/krishkalaria12/pix-stash/storage"
)

// ObjectStore is the slice of the storage adapter the image routes use.
type ObjectStore interface {
	Upload(ctx context.Context, file io.Reader, size int64, contentType, originalName string, ownerID uint) (*storage.UploadResult, error)
	Delete(ctx context.Context, key string) error
}

// ImageAnalyzer produces a description for an image URL. It never fails;
// diagnostic text comes back as the result instead.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, imageURL, customPrompt string) string
}

// ImageHandler wires the five image routes to the storage adapter, the
// analyzer and the record store.
type ImageHandler struct {
	Images  *repository.ImageRepository
	Users   *repository.UserRepository
	Storage ObjectStore
	AI      ImageAnalyzer
	Log     zerolog.Logger
}

// Upload stores the multipart "image" file in the object store, inserts the
// record and, when the form asks for it, analyzes the image synchronously
// before responding. The record is only created after the blob write
// succeeded.
func (h *ImageHandler) Upload(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	if _, err := h.Users.GetByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No file part"})
	}
	if fileHeader.Filename == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No selected file"})
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File must be an image"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	defer file.Close()

	result, err := h.Storage.Upload(c.Context(), file, fileHeader.Size, contentType, fileHeader.Filename, userID)
	if err != nil {
		h.Log.Error().Err(err).Uint("user_id", userID).Msg("blob upload failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	size := result.Size
	image := &models.Image{
		Filename:         result.Key,
		OriginalFilename: result.OriginalFilename,
		S3URL:            result.URL,
		ContentType:      contentType,
		Size:             &size,
		UserID:           userID,
	}
	if err := h.Images.Create(image); err != nil {
		h.Log.Error().Err(err).Str("key", result.Key).Msg("record insert failed after upload")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if strings.EqualFold(c.FormValue("analyze"), "true") {
		description := h.AI.Analyze(c.Context(), image.S3URL, c.FormValue("prompt"))
		if err := h.Images.UpdateDescription(image.ID, description); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		image.AIDescription = &description
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Image uploaded successfully",
		"image":   image,
	})
}

// List returns the caller's images, newest first.
func (h *ImageHandler) List(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	images, err := h.Images.ListByUser(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if images == nil {
		images = []models.Image{}
	}

	return c.JSON(fiber.Map{"images": images})
}

func (h *ImageHandler) Get(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	image, ok := h.findOwned(c, userID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Image not found"})
	}

	return c.JSON(image)
}

// Delete removes the blob first and the record second. A blob-delete
// failure aborts with 500 and keeps the record, so a row never outlives
// the knowledge of whether its blob exists.
func (h *ImageHandler) Delete(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	image, ok := h.findOwned(c, userID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Image not found"})
	}

	if err := h.Storage.Delete(c.Context(), image.Filename); err != nil {
		h.Log.Error().Err(err).Str("key", image.Filename).Msg("blob delete failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.Images.DeleteByIDAndUser(image.ID, userID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"message": "Image deleted successfully"})
}

// Analyze runs the AI adapter against the stored blob's URL and persists
// whatever text comes back, sentinel or genuine description alike.
func (h *ImageHandler) Analyze(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	image, ok := h.findOwned(c, userID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Image not found"})
	}

	var body struct {
		Prompt string `json:"prompt"`
	}
	// an empty or non-JSON body just means no custom prompt
	_ = c.BodyParser(&body)

	description := h.AI.Analyze(c.Context(), image.S3URL, body.Prompt)
	if err := h.Images.UpdateDescription(image.ID, description); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	image.AIDescription = &description

	return c.JSON(fiber.Map{
		"message": "Image analyzed successfully",
		"image":   image,
	})
}

// findOwned parses the :id param and loads the record scoped to the caller.
// A malformed id, a missing row and someone else's row all look the same to
// the client.
func (h *ImageHandler) findOwned(c *fiber.Ctx, userID uint) (*models.Image, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return nil, false
	}

	image, err := h.Images.GetByIDAndUser(uint(id), userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			h.Log.Error().Err(err).Uint("user_id", userID).Msg("image lookup failed")
		}
		return nil, false
	}
	return image, true
}
