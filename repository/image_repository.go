package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/krishkalaria12/pix-stash/models"
)

// ImageRepository handles database operations for Image entities. Every
// lookup is scoped to the owning user; a row owned by someone else is
// indistinguishable from a missing one (gorm.ErrRecordNotFound either way).
type ImageRepository struct {
	DB *gorm.DB
}

func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{DB: db}
}

func (r *ImageRepository) Create(image *models.Image) error {
	if err := r.DB.Create(image).Error; err != nil {
		return fmt.Errorf("create image record: %w", err)
	}
	return nil
}

// ListByUser returns the user's images, newest upload first.
func (r *ImageRepository) ListByUser(userID uint) ([]models.Image, error) {
	var images []models.Image
	err := r.DB.Where("user_id = ?", userID).Order("uploaded_at DESC").Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("list images for user %d: %w", userID, err)
	}
	return images, nil
}

func (r *ImageRepository) GetByIDAndUser(id, userID uint) (*models.Image, error) {
	var image models.Image
	err := r.DB.Where("id = ? AND user_id = ?", id, userID).First(&image).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("get image %d: %w", id, err)
	}
	return &image, nil
}

func (r *ImageRepository) DeleteByIDAndUser(id, userID uint) error {
	result := r.DB.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Image{})
	if result.Error != nil {
		return fmt.Errorf("delete image %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateDescription overwrites ai_description; it may be called any number
// of times for the same record.
func (r *ImageRepository) UpdateDescription(id uint, description string) error {
	result := r.DB.Model(&models.Image{}).Where("id = ?", id).Update("ai_description", description)
	if result.Error != nil {
		return fmt.Errorf("update description for image %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
