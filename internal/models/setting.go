package models

import "time"

// Setting is one admin-editable knowledge base override. Defaults live in
// code; rows here win over them.
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
