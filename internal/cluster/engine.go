// Package cluster groups posts taken close together in space and time into shared albums.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Auchit011/Vistagram-Application/internal/album"
	"github.com/Auchit011/Vistagram-Application/internal/logging"
	"github.com/Auchit011/Vistagram-Application/internal/metrics"
	"github.com/Auchit011/Vistagram-Application/internal/post"
	"github.com/Auchit011/Vistagram-Application/internal/shared/geo"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrRetriesExhausted = errors.New("album write kept conflicting")

type PostIndex interface {
	Nearby(ctx context.Context, q post.NeighborQuery) ([]post.Post, error)
}

type AlbumStore interface {
	Overlapping(ctx context.Context, center geo.Point, radiusM float64, from, to time.Time) ([]album.SharedAlbum, error)
	ContainingPosts(ctx context.Context, postIDs []string) ([]album.SharedAlbum, error)
	CreateAlbum(ctx context.Context, a album.SharedAlbum) (album.SharedAlbum, error)
	MergeAlbums(ctx context.Context, m album.Merge) (album.SharedAlbum, error)
}

// Notifier receives a JSON event whenever an album is created or changes.
type Notifier interface {
	Broadcast(albumID string, payload []byte)
}

type Outcome string

const (
	OutcomeNone     Outcome = "none"
	OutcomeCreated  Outcome = "created"
	OutcomeAttached Outcome = "attached"
	OutcomeMerged   Outcome = "merged"
)

type Result struct {
	Album   album.SharedAlbum
	Outcome Outcome
}

// Event is what subscribers of an album receive.
type Event struct {
	Type     Outcome           `json:"type"`
	PostID   string            `json:"post_id"`
	Album    album.SharedAlbum `json:"album"`
	Absorbed []string          `json:"absorbed,omitempty"`
}

type Engine struct {
	posts    PostIndex
	albums   AlbumStore
	locker   Locker
	notifier Notifier
	params   Params
	log      zerolog.Logger
	newID    func() string
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

func NewEngine(posts PostIndex, albums AlbumStore, locker Locker, params Params, opts ...Option) *Engine {
	if locker == nil {
		locker = NewLocalLocker()
	}
	e := &Engine{
		posts:  posts,
		albums: albums,
		locker: locker,
		params: params.withDefaults(),
		log:    logging.Component("cluster"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Params() Params { return e.params }

// PostCreated runs detection for a freshly stored post. It never fails the caller.
func (e *Engine) PostCreated(ctx context.Context, p post.Post) (string, bool) {
	a, ok := e.ProcessNewPost(ctx, p)
	return a.ID, ok
}

// ProcessNewPost places p in a shared album if it has neighbours. Failures are logged and
// reported as ok=false; the post itself is unaffected.
func (e *Engine) ProcessNewPost(ctx context.Context, p post.Post) (album.SharedAlbum, bool) {
	res, err := e.Process(ctx, p)
	if err != nil {
		e.log.Error().Err(err).Str("post_id", p.ID).Msg("album detection failed")
		return album.SharedAlbum{}, false
	}
	if res.Outcome == OutcomeNone {
		return album.SharedAlbum{}, false
	}
	return res.Album, true
}

// Process is ProcessNewPost with the outcome and error exposed.
func (e *Engine) Process(ctx context.Context, p post.Post) (Result, error) {
	started := time.Now()
	if !p.Clusterable() {
		metrics.RecordOutcome(string(OutcomeNone), started)
		return Result{Outcome: OutcomeNone}, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.params.LockWait)
	unlock, err := e.locker.Lock(lockCtx, LockKeys(*p.Location, p.CreatedAt, e.params))
	cancel()
	metrics.ClusterLockWait.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.RecordError("lock")
		return Result{}, err
	}
	defer unlock()

	for attempt := 1; attempt <= e.params.MaxRetries; attempt++ {
		res, err := e.resolve(ctx, p)
		if errors.Is(err, album.ErrConflict) {
			metrics.ClusterConflicts.Inc()
			e.log.Warn().Err(err).Str("post_id", p.ID).Int("attempt", attempt).Msg("album changed underneath, retrying")
			continue
		}
		if err != nil {
			metrics.RecordError("store")
			return Result{}, err
		}

		metrics.RecordOutcome(string(res.Outcome), started)
		if res.Outcome != OutcomeNone {
			e.log.Info().
				Str("post_id", p.ID).
				Str("album_id", res.Album.ID).
				Str("outcome", string(res.Outcome)).
				Int("posts", len(res.Album.PostIDs)).
				Msg("post clustered")
		}
		return res, nil
	}
	metrics.RecordError("retries")
	return Result{}, fmt.Errorf("post %s: %w", p.ID, ErrRetriesExhausted)
}

// resolve runs one read-decide-write pass. Any album.ErrConflict means the pass can be repeated
// from scratch.
func (e *Engine) resolve(ctx context.Context, p post.Post) (Result, error) {
	center := *p.Location
	from, to := e.params.Window(p.CreatedAt)

	var (
		neighbours  []post.Post
		overlapping []album.SharedAlbum
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		neighbours, err = e.posts.Nearby(gctx, post.NeighborQuery{
			Center:  center,
			RadiusM: e.params.MaxDistanceMeters,
			From:    from,
			To:      to,
		})
		if err != nil {
			return fmt.Errorf("query neighbours: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		overlapping, err = e.albums.Overlapping(gctx, center, e.params.MaxDistanceMeters, from, to)
		if err != nil {
			return fmt.Errorf("query overlapping albums: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	candidates := candidateSet(p, neighbours, from, to)
	owning, err := e.albums.ContainingPosts(ctx, postIDs(candidates))
	if err != nil {
		return Result{}, fmt.Errorf("query albums holding candidates: %w", err)
	}
	targets := oldestFirst(overlapping, owning)

	if len(targets) == 0 {
		if len(candidates) < 2 {
			return Result{Outcome: OutcomeNone}, nil
		}
		created, err := e.albums.CreateAlbum(ctx, e.newAlbum(p, candidates))
		if err != nil {
			return Result{}, fmt.Errorf("create album: %w", err)
		}
		e.notify(Event{Type: OutcomeCreated, PostID: p.ID, Album: created})
		return Result{Album: created, Outcome: OutcomeCreated}, nil
	}

	m := buildMerge(targets, candidates)
	if m.Empty() {
		return Result{Album: m.Target, Outcome: OutcomeAttached}, nil
	}
	merged, err := e.albums.MergeAlbums(ctx, m)
	if err != nil {
		return Result{}, fmt.Errorf("merge into %s: %w", m.Target.ID, err)
	}

	ev := Event{Type: OutcomeAttached, PostID: p.ID, Album: merged}
	if len(m.Absorbed) > 0 {
		ev.Type = OutcomeMerged
		for _, a := range m.Absorbed {
			ev.Absorbed = append(ev.Absorbed, a.ID)
		}
	}
	e.notify(ev)
	return Result{Album: merged, Outcome: ev.Type}, nil
}

func (e *Engine) newAlbum(p post.Post, candidates []post.Post) album.SharedAlbum {
	start, end := span(candidates)
	name := p.LocationName
	if name == "" {
		name = e.params.DefaultLocationName
	}
	return album.SharedAlbum{
		ID:           e.newID(),
		CreatorID:    p.UserID,
		Location:     *p.Location,
		LocationName: name,
		StartTime:    start,
		EndTime:      end,
		Members:      owners(candidates),
		PostIDs:      postIDs(candidates),
		Privacy:      album.PrivacyPublic,
		Metadata: album.Metadata{
			AutoCreated:          true,
			DetectionWindowHours: e.params.TimeWindow.Hours(),
		},
	}
}

func (e *Engine) notify(ev Event) {
	if e.notifier == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.log.Warn().Err(err).Str("album_id", ev.Album.ID).Msg("encode album event")
		return
	}
	e.notifier.Broadcast(ev.Album.ID, payload)
	for _, id := range ev.Absorbed {
		e.notifier.Broadcast(id, payload)
	}
}

// candidateSet is p plus every neighbour inside the window, p first, without duplicates.
func candidateSet(p post.Post, neighbours []post.Post, from, to time.Time) []post.Post {
	out := []post.Post{p}
	seen := map[string]bool{p.ID: true}
	for _, n := range neighbours {
		if seen[n.ID] || n.CreatedAt.Before(from) || n.CreatedAt.After(to) {
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out
}

// oldestFirst unions album lists by id and orders them by creation time, then id.
func oldestFirst(lists ...[]album.SharedAlbum) []album.SharedAlbum {
	seen := map[string]bool{}
	var out []album.SharedAlbum
	for _, list := range lists {
		for _, a := range list {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b album.SharedAlbum) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// buildMerge folds every target into the oldest one and adds the candidates it lacks.
func buildMerge(targets []album.SharedAlbum, candidates []post.Post) album.Merge {
	target := targets[0]
	absorbed := targets[1:]

	start, end := span(candidates)
	for _, a := range targets {
		if a.StartTime.Before(start) {
			start = a.StartTime
		}
		if a.EndTime.After(end) {
			end = a.EndTime
		}
	}

	var addPosts []string
	for _, c := range candidates {
		if !target.HasPost(c.ID) {
			addPosts = append(addPosts, c.ID)
		}
	}

	meta := target.Metadata
	meta.MergedFrom = slices.Clone(meta.MergedFrom)
	for _, a := range absorbed {
		meta.MergedFrom = appendMissing(meta.MergedFrom, a.ID)
		for _, id := range a.Metadata.MergedFrom {
			meta.MergedFrom = appendMissing(meta.MergedFrom, id)
		}
	}

	return album.Merge{
		Target:     target,
		Absorbed:   slices.Clone(absorbed),
		AddPostIDs: addPosts,
		AddMembers: owners(candidates),
		StartTime:  start,
		EndTime:    end,
		Metadata:   meta,
	}
}

func appendMissing(list []string, id string) []string {
	if slices.Contains(list, id) {
		return list
	}
	return append(list, id)
}

func span(posts []post.Post) (start, end time.Time) {
	start, end = posts[0].CreatedAt, posts[0].CreatedAt
	for _, p := range posts[1:] {
		if p.CreatedAt.Before(start) {
			start = p.CreatedAt
		}
		if p.CreatedAt.After(end) {
			end = p.CreatedAt
		}
	}
	return start, end
}

func postIDs(posts []post.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

// owners returns the distinct authors of posts in first-seen order.
func owners(posts []post.Post) []string {
	var out []string
	for _, p := range posts {
		out = appendMissing(out, p.UserID)
	}
	return out
}
