package model

import (
	"time"

	"github.com/google/uuid"
)

// Link is a shortened URL and its click counter
type Link struct {
	ID          uuid.UUID  `json:"id"`
	Alias       string     `json:"alias"`
	OriginalURL string     `json:"original_url"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClickCount  int64      `json:"click_count"`
}

// IsExpired reports whether the link's expiry lies before now.
// Links without an expiry never expire.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// ClickEvent is one recorded visit to a link
type ClickEvent struct {
	ID         int64     `json:"id"`
	LinkID     uuid.UUID `json:"link_id"`
	IP         string    `json:"ip"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LinkInfo is the read-only metadata view of a link
type LinkInfo struct {
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
	ClickCount  int64     `json:"click_count"`
}

// RecentClick is a single entry of the analytics click history
type RecentClick struct {
	IP   string    `json:"ip"`
	Time time.Time `json:"time"`
}

// Analytics summarises the clicks recorded for a link
type Analytics struct {
	TotalClicks  int64         `json:"total_clicks"`
	RecentClicks []RecentClick `json:"recent_clicks"`
}
