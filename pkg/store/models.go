package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ContentModel struct {
	ID               string  `gorm:"primaryKey"`
	UserID           string  `gorm:"not null;index"`
	SourceType       string  `gorm:"not null;index"`
	ProcessingStatus string  `gorm:"not null;index"`
	Title            *string
	Summary          *string `gorm:"type:text"`
	RawText          *string `gorm:"type:text"`
	ViewText         *string `gorm:"type:text"`
	StorageRef       *string
	Image            *string
	Source           *string
	Annotations      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt        time.Time      `gorm:"not null;index"`
	UpdatedAt        time.Time      `gorm:"not null"`
}
