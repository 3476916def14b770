package models

import "time"

type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"size:80;not null;uniqueIndex"`
	Email     string    `json:"email" gorm:"size:120;not null;uniqueIndex"`
	Password  string    `json:"-" gorm:"size:255;not null"`
	CreatedAt time.Time `json:"created_at"`

	Images []Image `json:"-" gorm:"foreignKey:UserID"`
}
