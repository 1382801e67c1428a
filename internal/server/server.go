package server

import (
	"github.com/Auchit011/Vistagram-Application/internal/album"
	"github.com/Auchit011/Vistagram-Application/internal/auth"
	"github.com/Auchit011/Vistagram-Application/internal/cluster"
	"github.com/Auchit011/Vistagram-Application/internal/config"
	"github.com/Auchit011/Vistagram-Application/internal/logging"
	"github.com/Auchit011/Vistagram-Application/internal/memstore"
	"github.com/Auchit011/Vistagram-Application/internal/post"
	"github.com/Auchit011/Vistagram-Application/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// PostBackend stores posts and answers neighbour queries for clustering.
type PostBackend interface {
	post.Store
	cluster.PostIndex
}

// AlbumBackend serves album reads and clustering writes.
type AlbumBackend interface {
	album.Reader
	cluster.AlbumStore
}

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
	Posts  PostBackend
	Albums AlbumBackend
	Engine *cluster.Engine
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}
	s.Posts, s.Albums = newBackends(cfg, db)
	s.Engine = cluster.NewEngine(s.Posts, s.Albums, newLocker(cfg, redisClient), clusterParams(cfg),
		cluster.WithNotifier(s.Stream))

	registerRoutes(s)
	return s
}

func newBackends(cfg config.Config, db *pgxpool.Pool) (PostBackend, AlbumBackend) {
	if cfg.UseMemoryStore() {
		return memstore.NewPostStore(), memstore.NewAlbumStore()
	}
	if db == nil {
		logging.Warn().Msg("no postgres pool, posts and albums are kept in memory")
		return memstore.NewPostStore(), memstore.NewAlbumStore()
	}
	return post.NewService(db), album.NewService(db)
}

func newLocker(cfg config.Config, redisClient *redis.Client) cluster.Locker {
	if cfg.UseRedisLock() && redisClient != nil {
		return cluster.NewRedisLocker(redisClient, cfg.ClusterLockTTL)
	}
	return cluster.NewLocalLocker()
}

func clusterParams(cfg config.Config) cluster.Params {
	return cluster.Params{
		MaxDistanceMeters:   cfg.ClusterMaxDistanceMeters,
		TimeWindow:          cfg.ClusterTimeWindow,
		MaxRetries:          cfg.ClusterMaxRetries,
		LockWait:            cfg.ClusterLockWait,
		DefaultLocationName: cfg.ClusterDefaultLocationName,
	}
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	optionalJWT := auth.OptionalJWTMiddleware(s.Cfg.JWTSecret)

	post.RegisterRoutes(s.App.Group("/posts"), s.Posts, s.Engine, jwtMiddleware)
	album.RegisterRoutes(s.App.Group("/albums"), s.Albums, optionalJWT)
	stream.RegisterRoutes(s.App.Group("/stream", optionalJWT), s.Stream, s.Albums)
}

// Close releases what NewServer started. The pools passed in stay open.
func (s *Server) Close() error {
	return s.Stream.Close()
}
