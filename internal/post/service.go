package post

import (
	"context"
	"errors"
	"time"

	"github.com/Auchit011/Vistagram-Application/internal/db"
	"github.com/Auchit011/Vistagram-Application/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) CreatePost(ctx context.Context, input Post) (Post, error) {
	if input.ID == "" {
		input.ID = uuid.NewString()
	}
	if input.CreatedAt.IsZero() {
		input.CreatedAt = time.Now().UTC()
	}

	var row pgx.Row
	if input.Location != nil {
		row = s.db.QueryRow(ctx, `
			INSERT INTO posts (id, user_id, caption, image_url, location, location_name, created_at)
			VALUES ($1,$2,$3,$4, ST_SetSRID(ST_MakePoint($5,$6), 4326)::geography, $7, $8)
			RETURNING created_at
		`, input.ID, input.UserID, input.Caption, input.ImageURL, input.Location.Lng, input.Location.Lat, input.LocationName, input.CreatedAt)
	} else {
		row = s.db.QueryRow(ctx, `
			INSERT INTO posts (id, user_id, caption, image_url, location_name, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING created_at
		`, input.ID, input.UserID, input.Caption, input.ImageURL, input.LocationName, input.CreatedAt)
	}
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Post{}, err
	}
	return input, nil
}

func (s *Service) GetPost(ctx context.Context, id string) (Post, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, caption, image_url, ST_X(location::geometry), ST_Y(location::geometry), location_name, created_at
		FROM posts WHERE id=$1
	`, id)
	p, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	return p, err
}

// Nearby is the spatial index lookup used by clustering. Distances are spherical and the
// radius is inclusive; rows come back nearest first, ties broken by creation time.
func (s *Service) Nearby(ctx context.Context, q NeighborQuery) ([]Post, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, caption, image_url, ST_X(location::geometry), ST_Y(location::geometry), location_name, created_at
		FROM posts
		WHERE location IS NOT NULL
		  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3, false)
		  AND created_at >= $4 AND created_at <= $5
		ORDER BY ST_Distance(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, false), created_at, id
	`, q.Center.Lng, q.Center.Lat, q.RadiusM, q.From, q.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func scanPost(row pgx.Row) (Post, error) {
	var (
		p        Post
		lng, lat *float64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Caption, &p.ImageURL, &lng, &lat, &p.LocationName, &p.CreatedAt); err != nil {
		return Post{}, err
	}
	if lng != nil && lat != nil {
		p.Location = &geo.Point{Lng: *lng, Lat: *lat}
	}
	return p, nil
}
