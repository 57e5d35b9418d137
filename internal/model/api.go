package model

import "time"

// CreateLinkRequest represents the request body for creating a short URL
type CreateLinkRequest struct {
	OriginalURL string     `json:"original_url" binding:"required,url"`
	Alias       string     `json:"alias,omitempty" binding:"omitempty,max=20"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// CreateLinkResponse represents the response for a created short URL
type CreateLinkResponse struct {
	Alias       string `json:"alias"`
	ShortURL    string `json:"short_url"`
	OriginalURL string `json:"original_url"`
	CreatedAt   string `json:"created_at"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// MessageResponse carries a plain confirmation message
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
