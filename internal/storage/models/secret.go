// Package models contains data models for storage operations.
package models

import "time"

// Secret is a named credential held encrypted at rest (API key, client secret).
type Secret struct {
	Name      string    `json:"name"`
	Value     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SecretPreview is a safe representation of a secret (value masked).
type SecretPreview struct {
	Name         string    `json:"name"`
	ValuePreview string    `json:"value_preview"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MaskValue creates a masked preview of a secret value.
func MaskValue(value string) string {
	if len(value) <= 10 {
		return "***"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// ToPreview converts a Secret to a safe SecretPreview.
func (s *Secret) ToPreview() *SecretPreview {
	return &SecretPreview{
		Name:         s.Name,
		ValuePreview: MaskValue(s.Value),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
