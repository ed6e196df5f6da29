package model

import (
	"time"

	"gorm.io/datatypes"
)

// Document is one JSON document of the hierarchical store, addressed by a
// slash-separated path such as users/u1/objectives/o1.
type Document struct {
	Path       string         `gorm:"primaryKey;size:512" json:"path"`
	Collection string         `gorm:"index:idx_doc_collection;size:512;not null" json:"collection"`
	Data       datatypes.JSON `gorm:"not null" json:"data"`
	Version    int64          `gorm:"not null;default:1" json:"version"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Document) TableName() string { return "documents" }
