package post

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

type fakeStore struct {
	posts     map[string]Post
	createErr error
}

func (f *fakeStore) CreatePost(_ context.Context, p Post) (Post, error) {
	if f.createErr != nil {
		return Post{}, f.createErr
	}
	if p.ID == "" {
		p.ID = "post-new"
	}
	p.CreatedAt = time.Now()
	f.posts[p.ID] = p
	return p, nil
}

func (f *fakeStore) GetPost(_ context.Context, id string) (Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return p, nil
}

type fakeHook struct {
	calls   []Post
	albumID string
}

func (h *fakeHook) PostCreated(_ context.Context, p Post) (string, bool) {
	h.calls = append(h.calls, p)
	return h.albumID, h.albumID != ""
}

func asUser(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals("user_id", userID)
		}
		return c.Next()
	}
}

func newApp(store Store, hook Hook, userID string) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/posts"), store, hook, asUser(userID))
	return app
}

func postJSON(t *testing.T, app *fiber.App, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return resp
}

func TestCreatePostHandlerClusters(t *testing.T) {
	store := &fakeStore{posts: map[string]Post{}}
	hook := &fakeHook{albumID: "album-1"}
	app := newApp(store, hook, "user-1")

	resp := postJSON(t, app, `{"image_url":"https://img","lat":-6.2,"lng":106.8,"location_name":"Monas"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var body struct {
		ID            string `json:"id"`
		UserID        string `json:"user_id"`
		SharedAlbumID string `json:"shared_album_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SharedAlbumID != "album-1" || body.UserID != "user-1" {
		t.Fatalf("unexpected body %+v", body)
	}
	if len(hook.calls) != 1 || hook.calls[0].Location == nil {
		t.Fatalf("expected hook to be called with located post")
	}
}

func TestCreatePostHandlerWithoutLocationSkipsHook(t *testing.T) {
	store := &fakeStore{posts: map[string]Post{}}
	hook := &fakeHook{albumID: "album-1"}
	app := newApp(store, hook, "user-1")

	resp := postJSON(t, app, `{"image_url":"https://img"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if len(hook.calls) != 0 {
		t.Fatalf("hook must not run for posts without location")
	}
}

func TestCreatePostHandlerValidation(t *testing.T) {
	store := &fakeStore{posts: map[string]Post{}}
	app := newApp(store, nil, "user-1")

	cases := []string{
		`{"caption":"no image"}`,
		`{"image_url":"u","lat":1}`,
		`{"image_url":"u","lat":95,"lng":1}`,
		`not json`,
	}
	for _, body := range cases {
		if resp := postJSON(t, app, body); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, resp.StatusCode)
		}
	}

	anon := newApp(store, nil, "")
	if resp := postJSON(t, anon, `{"image_url":"u"}`); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	failing := newApp(&fakeStore{posts: map[string]Post{}, createErr: errPost}, nil, "user-1")
	if resp := postJSON(t, failing, `{"image_url":"u"}`); resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestGetPostHandler(t *testing.T) {
	store := &fakeStore{posts: map[string]Post{"post-1": {ID: "post-1", UserID: "user-1"}}}
	app := newApp(store, nil, "user-1")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/posts/post-1", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %v %v", resp, err)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/posts/missing", nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v %v", resp, err)
	}
}
