package domain

import "time"

// Attachment is a site-hosted source image eligible for upscaling.
type Attachment struct {
	ID        int64
	PostID    int64
	URL       string
	Width     int
	Height    int
	CreatedAt time.Time
}
