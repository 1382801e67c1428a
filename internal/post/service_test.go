package post

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Auchit011/Vistagram-Application/internal/shared/geo"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

var postColumns = []string{"id", "user_id", "caption", "image_url", "lng", "lat", "location_name", "created_at"}

func ptr(v float64) *float64 { return &v }

func TestCreatePostWithLocation(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	createdAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO posts \(id, user_id, caption, image_url, location, location_name, created_at\)`).
		WithArgs(pgxmock.AnyArg(), "user-1", "sunset", "https://img", 106.8, -6.2, "Monas", createdAt).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	svc := NewService(mock)
	p, err := svc.CreatePost(context.Background(), Post{
		UserID:       "user-1",
		Caption:      "sunset",
		ImageURL:     "https://img",
		Location:     &geo.Point{Lng: 106.8, Lat: -6.2},
		LocationName: "Monas",
		CreatedAt:    createdAt,
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if p.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !p.Clusterable() {
		t.Fatalf("expected clusterable post")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreatePostWithoutLocation(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO posts \(id, user_id, caption, image_url, location_name, created_at\)`).
		WithArgs(pgxmock.AnyArg(), "user-1", "", "https://img", "", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	svc := NewService(mock)
	p, err := svc.CreatePost(context.Background(), Post{UserID: "user-1", ImageURL: "https://img"})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if p.Clusterable() {
		t.Fatalf("post without location must not be clusterable")
	}
}

func TestCreatePostError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO posts`).
		WithArgs(pgxmock.AnyArg(), "user-1", "", "", "", pgxmock.AnyArg()).
		WillReturnError(errPost)

	svc := NewService(mock)
	if _, err := svc.CreatePost(context.Background(), Post{UserID: "user-1"}); !errors.Is(err, errPost) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetPost(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	createdAt := time.Now()
	mock.ExpectQuery(`SELECT id, user_id, caption, image_url, ST_X\(location::geometry\), ST_Y\(location::geometry\)`).
		WithArgs("post-1").
		WillReturnRows(pgxmock.NewRows(postColumns).
			AddRow("post-1", "user-1", "c", "u", ptr(106.8), ptr(-6.2), "", createdAt))

	mock.ExpectQuery(`SELECT id, user_id, caption, image_url`).
		WithArgs("post-2").
		WillReturnRows(pgxmock.NewRows(postColumns).
			AddRow("post-2", "user-1", "c", "u", (*float64)(nil), (*float64)(nil), "", createdAt))

	mock.ExpectQuery(`SELECT id, user_id, caption, image_url`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	svc := NewService(mock)
	p, err := svc.GetPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if p.Location == nil || p.Location.Lng != 106.8 || p.Location.Lat != -6.2 {
		t.Fatalf("unexpected location %+v", p.Location)
	}

	p, err = svc.GetPost(context.Background(), "post-2")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if p.Location != nil {
		t.Fatalf("expected nil location")
	}

	if _, err := svc.GetPost(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNearby(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	from := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	to := from.Add(8 * time.Hour)
	mock.ExpectQuery(`ST_DWithin\(location, ST_SetSRID\(ST_MakePoint\(\$1,\$2\), 4326\)::geography, \$3, false\)`).
		WithArgs(106.8, -6.2, 500.0, from, to).
		WillReturnRows(pgxmock.NewRows(postColumns).
			AddRow("post-1", "user-1", "", "", ptr(106.8), ptr(-6.2), "", from.Add(time.Hour)).
			AddRow("post-2", "user-2", "", "", ptr(106.801), ptr(-6.2), "", from.Add(2*time.Hour)))

	svc := NewService(mock)
	posts, err := svc.Nearby(context.Background(), NeighborQuery{
		Center:  geo.Point{Lng: 106.8, Lat: -6.2},
		RadiusM: 500,
		From:    from,
		To:      to,
	})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != "post-1" {
		t.Fatalf("unexpected nearby result %+v", posts)
	}

	anyArgs := []any{pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()}
	mock.ExpectQuery(`ST_DWithin`).WithArgs(anyArgs...).WillReturnError(errPost)
	if _, err := svc.Nearby(context.Background(), NeighborQuery{}); !errors.Is(err, errPost) {
		t.Fatalf("expected query error, got %v", err)
	}

	mock.ExpectQuery(`ST_DWithin`).WithArgs(anyArgs...).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("post-1"))
	if _, err := svc.Nearby(context.Background(), NeighborQuery{}); err == nil {
		t.Fatalf("expected scan error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClusterable(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		post Post
		want bool
	}{
		{"ok", Post{ID: "p", Location: &geo.Point{Lng: 1, Lat: 1}, CreatedAt: now}, true},
		{"no id", Post{Location: &geo.Point{Lng: 1, Lat: 1}, CreatedAt: now}, false},
		{"no location", Post{ID: "p", CreatedAt: now}, false},
		{"bad location", Post{ID: "p", Location: &geo.Point{Lng: 200, Lat: 1}, CreatedAt: now}, false},
		{"no time", Post{ID: "p", Location: &geo.Point{Lng: 1, Lat: 1}}, false},
	}
	for _, tc := range cases {
		if got := tc.post.Clusterable(); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

var errPost = errors.New("post error")
