package post

import (
	"context"
	"errors"
	"time"

	"github.com/Auchit011/Vistagram-Application/internal/shared/geo"
)

var ErrNotFound = errors.New("post not found")

type Post struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Caption      string     `json:"caption"`
	ImageURL     string     `json:"image_url"`
	Location     *geo.Point `json:"location,omitempty"`
	LocationName string     `json:"location_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Clusterable reports whether the post carries enough data to take part in album detection.
func (p Post) Clusterable() bool {
	return p.ID != "" && p.Location != nil && p.Location.Validate() == nil && !p.CreatedAt.IsZero()
}

// NeighborQuery selects posts within RadiusM metres of Center whose CreatedAt is in [From, To].
type NeighborQuery struct {
	Center  geo.Point
	RadiusM float64
	From    time.Time
	To      time.Time
}

// Store persists posts. Posts are immutable once written.
type Store interface {
	CreatePost(ctx context.Context, p Post) (Post, error)
	GetPost(ctx context.Context, id string) (Post, error)
}

// Hook is invoked after a post has been durably stored. It never fails the caller;
// ok is false when the post was not placed in a shared album.
type Hook interface {
	PostCreated(ctx context.Context, p Post) (albumID string, ok bool)
}
