package models

import "time"

// Image is one uploaded blob tracked in the database. Filename is the
// object-store key and is globally unique; OriginalFilename is the sanitized
// client-supplied name kept for display. AIDescription is nil until an
// analysis call stores its result text.
type Image struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	Filename         string    `json:"filename" gorm:"size:255;not null;uniqueIndex"`
	OriginalFilename string    `json:"original_filename" gorm:"size:255;not null"`
	S3URL            string    `json:"s3_url" gorm:"size:512;not null"`
	ContentType      string    `json:"content_type" gorm:"size:100;not null"`
	Size             *int64    `json:"size"`
	AIDescription    *string   `json:"ai_description" gorm:"type:text"`
	UploadedAt       time.Time `json:"uploaded_at" gorm:"autoCreateTime"`
	UserID           uint      `json:"user_id" gorm:"not null;index"`
}
