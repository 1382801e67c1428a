package album

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Auchit011/Vistagram-Application/internal/db"
	"github.com/Auchit011/Vistagram-Application/internal/shared/geo"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
)

const albumColumns = `id, creator_id, ST_X(location::geometry), ST_Y(location::geometry), location_name,
	start_time, end_time, members, post_ids, privacy, metadata, version, created_at, updated_at`

type Service struct {
	db db.TxQuerier
}

func NewService(db db.TxQuerier) *Service {
	return &Service{db: db}
}

// GetAlbum loads an album by id. Ids of albums absorbed by a merge resolve to the survivor.
func (s *Service) GetAlbum(ctx context.Context, id string) (SharedAlbum, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+albumColumns+`
		FROM shared_albums
		WHERE id = COALESCE((SELECT to_id FROM album_redirects WHERE from_id=$1), $1)
	`, id)
	a, err := scanAlbum(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SharedAlbum{}, ErrNotFound
	}
	return a, err
}

// Nearby lists albums whose representative point lies within radiusM metres, nearest first.
func (s *Service) Nearby(ctx context.Context, center geo.Point, radiusM float64, limit int) ([]SharedAlbum, error) {
	return s.queryAlbums(ctx, `
		SELECT `+albumColumns+`
		FROM shared_albums
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3, false)
		ORDER BY ST_Distance(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, false), id
		LIMIT $4
	`, center.Lng, center.Lat, radiusM, limit)
}

// Overlapping lists albums within radiusM metres of center whose span intersects [from, to],
// oldest first.
func (s *Service) Overlapping(ctx context.Context, center geo.Point, radiusM float64, from, to time.Time) ([]SharedAlbum, error) {
	return s.queryAlbums(ctx, `
		SELECT `+albumColumns+`
		FROM shared_albums
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3, false)
		  AND start_time <= $5 AND end_time >= $4
		ORDER BY created_at, id
	`, center.Lng, center.Lat, radiusM, from, to)
}

// ContainingPosts lists albums that already own any of postIDs, oldest first.
func (s *Service) ContainingPosts(ctx context.Context, postIDs []string) ([]SharedAlbum, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	return s.queryAlbums(ctx, `
		SELECT `+albumColumns+`
		FROM shared_albums
		WHERE post_ids && $1::text[]
		ORDER BY created_at, id
	`, postIDs)
}

func (s *Service) CreateAlbum(ctx context.Context, a SharedAlbum) (SharedAlbum, error) {
	if a.Privacy == "" {
		a.Privacy = PrivacyPublic
	}
	if err := a.Validate(); err != nil {
		return SharedAlbum{}, err
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return SharedAlbum{}, err
	}

	// a post may only belong to one album, so refuse to create one that would steal a post
	row := s.db.QueryRow(ctx, `
		INSERT INTO shared_albums (id, creator_id, location, location_name, start_time, end_time, members, post_ids, privacy, metadata)
		SELECT $1::text, $2::text, ST_SetSRID(ST_MakePoint($3,$4), 4326)::geography, $5::text,
		       $6::timestamptz, $7::timestamptz, $8::text[], $9::text[], $10::text, $11::jsonb
		WHERE NOT EXISTS (SELECT 1 FROM shared_albums WHERE post_ids && $9::text[])
		RETURNING version, created_at, updated_at
	`, a.ID, a.CreatorID, a.Location.Lng, a.Location.Lat, a.LocationName, a.StartTime, a.EndTime,
		a.Members, a.PostIDs, string(a.Privacy), meta)
	err = row.Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SharedAlbum{}, fmt.Errorf("create %s: %w", a.ID, ErrConflict)
	}
	if err != nil {
		return SharedAlbum{}, err
	}
	return a, nil
}

// MergeAlbums applies m in a single transaction. Every album involved is checked against the
// version the caller read, and no post may already belong to an album outside the merge. Either
// failure is ErrConflict and nothing is written.
func (s *Service) MergeAlbums(ctx context.Context, m Merge) (SharedAlbum, error) {
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return SharedAlbum{}, err
	}

	postIDs := slicesUnion(m.AddPostIDs, m.Absorbed, func(a SharedAlbum) []string { return a.PostIDs })
	members := slicesUnion(m.AddMembers, m.Absorbed, func(a SharedAlbum) []string { return a.Members })

	var merged SharedAlbum
	err = db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		for _, absorbed := range m.Absorbed {
			tag, err := tx.Exec(ctx, `DELETE FROM shared_albums WHERE id=$1 AND version=$2`, absorbed.ID, absorbed.Version)
			if err != nil {
				return err
			}
			if tag.RowsAffected() != 1 {
				return fmt.Errorf("absorb %s: %w", absorbed.ID, ErrConflict)
			}
			if _, err := tx.Exec(ctx, `UPDATE album_redirects SET to_id=$2 WHERE to_id=$1`, absorbed.ID, m.Target.ID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO album_redirects (from_id, to_id) VALUES ($1,$2)
				ON CONFLICT (from_id) DO UPDATE SET to_id=EXCLUDED.to_id
			`, absorbed.ID, m.Target.ID); err != nil {
				return err
			}
		}

		row := tx.QueryRow(ctx, `
			UPDATE shared_albums
			SET post_ids = ARRAY(SELECT DISTINCT unnest(post_ids || $2::text[]) ORDER BY 1),
			    members = ARRAY(SELECT DISTINCT unnest(members || $3::text[]) ORDER BY 1),
			    start_time = LEAST(start_time, $4),
			    end_time = GREATEST(end_time, $5),
			    metadata = $6,
			    version = version + 1,
			    updated_at = now()
			WHERE id=$1 AND version=$7
			  AND NOT EXISTS (SELECT 1 FROM shared_albums o WHERE o.id <> $1 AND o.post_ids && $2::text[])
			RETURNING `+albumColumns,
			m.Target.ID, postIDs, members, m.StartTime, m.EndTime, meta, m.Target.Version)
		a, err := scanAlbum(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("update %s: %w", m.Target.ID, ErrConflict)
		}
		if err != nil {
			return err
		}
		merged = a
		return nil
	})
	if err != nil {
		return SharedAlbum{}, err
	}
	return merged, nil
}

func (s *Service) queryAlbums(ctx context.Context, sql string, args ...any) ([]SharedAlbum, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var albums []SharedAlbum
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

func scanAlbum(row pgx.Row) (SharedAlbum, error) {
	var (
		a       SharedAlbum
		privacy string
		meta    []byte
	)
	err := row.Scan(&a.ID, &a.CreatorID, &a.Location.Lng, &a.Location.Lat, &a.LocationName,
		&a.StartTime, &a.EndTime, &a.Members, &a.PostIDs, &privacy, &meta, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return SharedAlbum{}, err
	}
	a.Privacy = Privacy(privacy)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return SharedAlbum{}, err
		}
	}
	return a, nil
}

func slicesUnion(base []string, albums []SharedAlbum, field func(SharedAlbum) []string) []string {
	out := union(nil, base)
	for _, a := range albums {
		out = union(out, field(a))
	}
	return out
}
