package album

import (
	"errors"
	"slices"
	"time"

	"github.com/Auchit011/Vistagram-Application/internal/shared/geo"
)

var (
	ErrNotFound = errors.New("album not found")
	// ErrConflict means the album changed since it was read; re-read and retry.
	ErrConflict = errors.New("album version conflict")
	ErrInvalid  = errors.New("invalid album")
)

type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
)

type Metadata struct {
	AutoCreated          bool     `json:"autoCreated"`
	DetectionWindowHours float64  `json:"detectionWindowHours"`
	MergedFrom           []string `json:"mergedFrom,omitempty"`
}

type SharedAlbum struct {
	ID           string    `json:"id"`
	CreatorID    string    `json:"creator_id"`
	Location     geo.Point `json:"location"`
	LocationName string    `json:"location_name"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Members      []string  `json:"members"`
	PostIDs      []string  `json:"post_ids"`
	Privacy      Privacy   `json:"privacy"`
	Metadata     Metadata  `json:"metadata"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a SharedAlbum) Validate() error {
	switch {
	case a.ID == "":
		return errors.Join(ErrInvalid, errors.New("id required"))
	case len(a.PostIDs) < 2:
		return errors.Join(ErrInvalid, errors.New("an album needs at least two posts"))
	case len(a.Members) == 0:
		return errors.Join(ErrInvalid, errors.New("an album needs members"))
	case a.StartTime.After(a.EndTime):
		return errors.Join(ErrInvalid, errors.New("start_time after end_time"))
	case a.Privacy != PrivacyPublic && a.Privacy != PrivacyPrivate:
		return errors.Join(ErrInvalid, errors.New("unknown privacy"))
	}
	return a.Location.Validate()
}

func (a SharedAlbum) HasMember(userID string) bool {
	return slices.Contains(a.Members, userID)
}

func (a SharedAlbum) HasPost(postID string) bool {
	return slices.Contains(a.PostIDs, postID)
}

// Overlaps reports whether the album's time span intersects [from, to], bounds inclusive.
func (a SharedAlbum) Overlaps(from, to time.Time) bool {
	return !a.StartTime.After(to) && !a.EndTime.Before(from)
}

// VisibleTo reports whether userID may read the album.
func (a SharedAlbum) VisibleTo(userID string) bool {
	return a.Privacy != PrivacyPrivate || a.HasMember(userID)
}

// Merge folds Absorbed albums and additional posts into Target. Target and Absorbed carry the
// versions the caller read; a store rejects the whole merge with ErrConflict if any changed.
// Absorbed albums are removed and their ids redirect to Target.
type Merge struct {
	Target     SharedAlbum
	Absorbed   []SharedAlbum
	AddPostIDs []string
	AddMembers []string
	StartTime  time.Time
	EndTime    time.Time
	Metadata   Metadata
}

// Empty reports whether applying the merge would leave Target unchanged.
func (m Merge) Empty() bool {
	if len(m.Absorbed) > 0 {
		return false
	}
	for _, id := range m.AddPostIDs {
		if !m.Target.HasPost(id) {
			return false
		}
	}
	for _, id := range m.AddMembers {
		if !m.Target.HasMember(id) {
			return false
		}
	}
	return !m.StartTime.Before(m.Target.StartTime) && !m.EndTime.After(m.Target.EndTime)
}

// Apply returns Target with the merge applied in memory.
func (m Merge) Apply() SharedAlbum {
	out := m.Target
	out.PostIDs = union(m.Target.PostIDs, m.AddPostIDs)
	out.Members = union(m.Target.Members, m.AddMembers)
	for _, a := range m.Absorbed {
		out.PostIDs = union(out.PostIDs, a.PostIDs)
		out.Members = union(out.Members, a.Members)
	}
	if m.StartTime.Before(out.StartTime) {
		out.StartTime = m.StartTime
	}
	if m.EndTime.After(out.EndTime) {
		out.EndTime = m.EndTime
	}
	out.Metadata = m.Metadata
	out.Version++
	return out
}

func union(base, extra []string) []string {
	out := slices.Clone(base)
	for _, id := range extra {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
