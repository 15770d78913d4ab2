package catalog

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Movie is a catalog entry for a playable title. FileID is the opaque
// identifier of the video on the bot file host; it is never exposed through
// the public API.
type Movie struct {
	ID         uuid.UUID  `json:"id"`
	Slug       string     `json:"slug"`
	Title      string     `json:"title"`
	Synopsis   string     `json:"synopsis"`
	FileID     string     `json:"-"`
	Published  bool       `json:"published"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Post is a blog entry.
type Post struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
