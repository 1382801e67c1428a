// Package memstore keeps posts and shared albums in process memory behind spatial grids.
// It backs STORE_DRIVER=memory and the clustering tests.
package memstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Auchit011/Vistagram-Application/internal/album"
	"github.com/Auchit011/Vistagram-Application/internal/post"
	"github.com/Auchit011/Vistagram-Application/internal/shared/geo"

	"github.com/google/uuid"
)

var ErrDuplicate = errors.New("duplicate id")

// distanceEpsilonM absorbs float error so a point placed exactly on the radius still matches.
const distanceEpsilonM = 1e-6

// PostStore holds posts and answers neighbour queries from a spatial grid.
type PostStore struct {
	mu    sync.RWMutex
	posts map[string]post.Post
	grid  *grid
	now   func() time.Time
}

func NewPostStore() *PostStore {
	return &PostStore{
		posts: make(map[string]post.Post),
		grid:  newGrid(1000),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *PostStore) CreatePost(_ context.Context, p post.Post) (post.Post, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	if p.Location != nil {
		loc := *p.Location
		p.Location = &loc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[p.ID]; ok {
		return post.Post{}, fmt.Errorf("post %s: %w", p.ID, ErrDuplicate)
	}
	s.posts[p.ID] = p
	if p.Location != nil {
		s.grid.insert(p.ID, *p.Location)
	}
	return p, nil
}

func (s *PostStore) GetPost(_ context.Context, id string) (post.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return post.Post{}, post.ErrNotFound
	}
	return p, nil
}

// Nearby returns located posts within q.RadiusM of q.Center created inside [q.From, q.To],
// nearest first, then oldest, then by id.
func (s *PostStore) Nearby(_ context.Context, q post.NeighborQuery) ([]post.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		p    post.Post
		dist float64
	}
	var hits []hit
	for _, id := range s.grid.within(q.Center, q.RadiusM) {
		p := s.posts[id]
		if p.CreatedAt.Before(q.From) || p.CreatedAt.After(q.To) {
			continue
		}
		d := geo.DistanceM(q.Center, *p.Location)
		if d > q.RadiusM+distanceEpsilonM {
			continue
		}
		hits = append(hits, hit{p: p, dist: d})
	}
	slices.SortFunc(hits, func(a, b hit) int {
		return cmp.Or(
			cmp.Compare(a.dist, b.dist),
			a.p.CreatedAt.Compare(b.p.CreatedAt),
			cmp.Compare(a.p.ID, b.p.ID),
		)
	})

	out := make([]post.Post, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out, nil
}

// AlbumStore holds shared albums, the post to album ownership index and merge redirects.
type AlbumStore struct {
	mu        sync.RWMutex
	albums    map[string]album.SharedAlbum
	grid      *grid
	redirects map[string]string
	owner     map[string]string
	now       func() time.Time
}

func NewAlbumStore() *AlbumStore {
	return &AlbumStore{
		albums:    make(map[string]album.SharedAlbum),
		grid:      newGrid(1000),
		redirects: make(map[string]string),
		owner:     make(map[string]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetAlbum loads an album by id, following redirects left behind by merges.
func (s *AlbumStore) GetAlbum(_ context.Context, id string) (album.SharedAlbum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if to, ok := s.redirects[id]; ok {
		id = to
	}
	a, ok := s.albums[id]
	if !ok {
		return album.SharedAlbum{}, album.ErrNotFound
	}
	return cloneAlbum(a), nil
}

// Nearby lists albums within radiusM of center, nearest first. limit <= 0 means no limit.
func (s *AlbumStore) Nearby(_ context.Context, center geo.Point, radiusM float64, limit int) ([]album.SharedAlbum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		a    album.SharedAlbum
		dist float64
	}
	var hits []hit
	for _, id := range s.grid.within(center, radiusM) {
		a := s.albums[id]
		d := geo.DistanceM(center, a.Location)
		if d > radiusM+distanceEpsilonM {
			continue
		}
		hits = append(hits, hit{a: a, dist: d})
	}
	slices.SortFunc(hits, func(a, b hit) int {
		return cmp.Or(cmp.Compare(a.dist, b.dist), cmp.Compare(a.a.ID, b.a.ID))
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]album.SharedAlbum, len(hits))
	for i, h := range hits {
		out[i] = cloneAlbum(h.a)
	}
	return out, nil
}

// Overlapping lists albums within radiusM of center whose span intersects [from, to], oldest first.
func (s *AlbumStore) Overlapping(_ context.Context, center geo.Point, radiusM float64, from, to time.Time) ([]album.SharedAlbum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []album.SharedAlbum
	for _, id := range s.grid.within(center, radiusM) {
		a := s.albums[id]
		if !a.Overlaps(from, to) {
			continue
		}
		if geo.DistanceM(center, a.Location) > radiusM+distanceEpsilonM {
			continue
		}
		out = append(out, cloneAlbum(a))
	}
	sortOldestFirst(out)
	return out, nil
}

// ContainingPosts returns every album holding at least one of postIDs, oldest first.
func (s *AlbumStore) ContainingPosts(_ context.Context, postIDs []string) ([]album.SharedAlbum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []album.SharedAlbum
	for _, pid := range postIDs {
		aid, ok := s.owner[pid]
		if !ok || seen[aid] {
			continue
		}
		seen[aid] = true
		out = append(out, cloneAlbum(s.albums[aid]))
	}
	sortOldestFirst(out)
	return out, nil
}

// CreateAlbum stores a new album at version 1. It fails with album.ErrConflict when any of its
// posts already belongs to another album.
func (s *AlbumStore) CreateAlbum(_ context.Context, a album.SharedAlbum) (album.SharedAlbum, error) {
	if a.Privacy == "" {
		a.Privacy = album.PrivacyPublic
	}
	if err := a.Validate(); err != nil {
		return album.SharedAlbum{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.albums[a.ID]; ok {
		return album.SharedAlbum{}, fmt.Errorf("album %s: %w", a.ID, ErrDuplicate)
	}
	for _, pid := range a.PostIDs {
		if owner, ok := s.owner[pid]; ok {
			return album.SharedAlbum{}, fmt.Errorf("post %s already in %s: %w", pid, owner, album.ErrConflict)
		}
	}

	a = cloneAlbum(a)
	a.Version = 1
	a.CreatedAt = s.now()
	a.UpdatedAt = a.CreatedAt
	s.albums[a.ID] = a
	s.grid.insert(a.ID, a.Location)
	for _, pid := range a.PostIDs {
		s.owner[pid] = a.ID
	}
	return cloneAlbum(a), nil
}

// MergeAlbums applies m atomically. Every album in m must still be at the version it was read
// at, and no added post may belong to an album outside the merge.
func (s *AlbumStore) MergeAlbums(_ context.Context, m album.Merge) (album.SharedAlbum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	involved := map[string]bool{m.Target.ID: true}
	if err := s.checkVersion(m.Target); err != nil {
		return album.SharedAlbum{}, err
	}
	for _, a := range m.Absorbed {
		if err := s.checkVersion(a); err != nil {
			return album.SharedAlbum{}, err
		}
		involved[a.ID] = true
	}
	for _, pid := range m.AddPostIDs {
		if owner, ok := s.owner[pid]; ok && !involved[owner] {
			return album.SharedAlbum{}, fmt.Errorf("post %s already in %s: %w", pid, owner, album.ErrConflict)
		}
	}

	// apply against the stored copies so the result does not depend on what the caller passed
	m.Target = s.albums[m.Target.ID]
	m.Absorbed = slices.Clone(m.Absorbed)
	for i, a := range m.Absorbed {
		m.Absorbed[i] = s.albums[a.ID]
	}
	merged := m.Apply()
	merged.UpdatedAt = s.now()

	for _, a := range m.Absorbed {
		delete(s.albums, a.ID)
		s.grid.remove(a.ID, a.Location)
		for from, to := range s.redirects {
			if to == a.ID {
				s.redirects[from] = merged.ID
			}
		}
		s.redirects[a.ID] = merged.ID
	}
	s.albums[merged.ID] = merged
	for _, pid := range merged.PostIDs {
		s.owner[pid] = merged.ID
	}
	return cloneAlbum(merged), nil
}

func (s *AlbumStore) checkVersion(want album.SharedAlbum) error {
	got, ok := s.albums[want.ID]
	if !ok || got.Version != want.Version {
		return fmt.Errorf("album %s: %w", want.ID, album.ErrConflict)
	}
	return nil
}

func sortOldestFirst(albums []album.SharedAlbum) {
	slices.SortFunc(albums, func(a, b album.SharedAlbum) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
}

func cloneAlbum(a album.SharedAlbum) album.SharedAlbum {
	a.Members = slices.Clone(a.Members)
	a.PostIDs = slices.Clone(a.PostIDs)
	a.Metadata.MergedFrom = slices.Clone(a.Metadata.MergedFrom)
	return a
}
