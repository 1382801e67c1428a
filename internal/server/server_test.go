package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Auchit011/Vistagram-Application/internal/auth"
	"github.com/Auchit011/Vistagram-Application/internal/cluster"
	"github.com/Auchit011/Vistagram-Application/internal/config"
	"github.com/Auchit011/Vistagram-Application/internal/memstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testConfig() config.Config {
	return config.Config{JWTSecret: "secret", ServerPort: ":0", StoreDriver: config.StoreMemory, LockDriver: config.LockLocal}
}

func TestHealthRoute(t *testing.T) {
	s := NewServer(testConfig(), nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestMetricsRoute(t *testing.T) {
	s := NewServer(testConfig(), nil, nil)

	resp, err := s.App.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !strings.Contains(string(body), "vistagram_cluster") {
		t.Fatalf("expected cluster metrics, got %d", resp.StatusCode)
	}
}

func TestBackendSelection(t *testing.T) {
	s := NewServer(config.Config{StoreDriver: config.StorePostgres}, nil, nil)
	if _, ok := s.Posts.(*memstore.PostStore); !ok {
		t.Fatalf("expected memory fallback without a pool, got %T", s.Posts)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	cfg.LockDriver = config.LockRedis
	cfg.RedisAddr = mr.Addr()
	if _, ok := newLocker(cfg, rdb).(*cluster.RedisLocker); !ok {
		t.Fatalf("expected redis locker")
	}
	if _, ok := newLocker(cfg, nil).(*cluster.LocalLocker); !ok {
		t.Fatalf("expected local locker without client")
	}
}

func TestClusterParamsFromConfig(t *testing.T) {
	p := clusterParams(config.Config{ClusterMaxDistanceMeters: 250, ClusterTimeWindow: time.Hour})
	if p.MaxDistanceMeters != 250 || p.TimeWindow != time.Hour {
		t.Fatalf("unexpected params %+v", p)
	}
}

func postJSON(t *testing.T, s *Server, token, body string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestPostsClusterIntoAlbum(t *testing.T) {
	s := NewServer(testConfig(), nil, nil)
	defer s.Close()

	alice, _ := auth.SignToken("secret", "alice", time.Minute)
	bob, _ := auth.SignToken("secret", "bob", time.Minute)

	first := postJSON(t, s, alice, `{"image_url":"https://img/1.jpg","lat":48.8584,"lng":2.2945}`)
	if _, ok := first["shared_album_id"]; ok {
		t.Fatalf("lone post should not join an album")
	}
	second := postJSON(t, s, bob, `{"image_url":"https://img/2.jpg","lat":48.8590,"lng":2.2950,"location_name":"Eiffel Tower"}`)
	albumID, _ := second["shared_album_id"].(string)
	if albumID == "" {
		t.Fatalf("expected shared album, got %+v", second)
	}

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/albums/"+albumID, nil))
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got struct {
		LocationName string   `json:"location_name"`
		PostIDs      []string `json:"post_ids"`
		Members      []string `json:"members"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.LocationName != "Eiffel Tower" || len(got.PostIDs) != 2 || len(got.Members) != 2 {
		t.Fatalf("unexpected album %+v", got)
	}

	resp, err = s.App.Test(httptest.NewRequest(http.MethodGet, "/albums?lat=48.8584&lng=2.2945", nil))
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	var nearby []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&nearby)
	if len(nearby) != 1 {
		t.Fatalf("expected one nearby album, got %d", len(nearby))
	}
}

func TestPostsRequireAuth(t *testing.T) {
	s := NewServer(testConfig(), nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
