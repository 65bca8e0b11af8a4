package models

import "time"

// User is the account an order or vendor belongs to.
type User struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Email     string    `gorm:"column:email;type:text;not null;uniqueIndex"`
	IsAdmin   bool      `gorm:"column:is_admin;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
