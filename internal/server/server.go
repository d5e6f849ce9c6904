package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/quizflash/internal/api"
	"github.com/victornm/quizflash/internal/event"
	"github.com/victornm/quizflash/internal/flashcard"
	"github.com/victornm/quizflash/internal/logger"
	"github.com/victornm/quizflash/internal/progress"
	"github.com/victornm/quizflash/internal/quiz"
	"github.com/victornm/quizflash/internal/quota"
	"github.com/victornm/quizflash/internal/storage/memory"
	"github.com/victornm/quizflash/internal/storage/postgres"
	"github.com/victornm/quizflash/internal/telemetry"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Env string

	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Addrs []string
		Pass  string

		// Prefix namespaces attempt and quota keys.
		Prefix       string
		PubsubPrefix string
	}

	Storage string

	Postgres struct {
		Addr            string
		User            string
		Pass            string
		Name            string
		MaxConns        int32
		MaxConnLifetime time.Duration
		Migrate         bool
	}

	Quota struct {
		Quiz       int
		Flashcards int
	}

	Attempt struct {
		TTL time.Duration
	}
}

type store interface {
	quiz.Repository
	flashcard.Repository
}

type Server struct {
	c   Config
	log *zap.Logger

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
		store    store
	}

	service struct {
		quota     *quota.Service
		quiz      *quiz.Service
		flashcard *flashcard.Service
		progress  *progress.Service
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	l, err := logger.New(c.Env)
	if err != nil {
		return nil, fmt.Errorf("server: init logger: %w", err)
	}

	s := &Server{c: c, log: l}

	s.eb = event.NewBus(event.WithLogger(l.Named("event")))

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r, s.log); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initStore() error {
	switch s.c.Storage {
	case StorageMemory:
		s.log.Warn("server: using in-memory storage, data is lost on restart")
		s.infra.store = memory.NewStore()
		return nil
	case StoragePostgres, "":
	default:
		return fmt.Errorf("unknown storage %q", s.c.Storage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pc := s.c.Postgres
	db, err := postgres.Connect(ctx, postgres.PoolConfig{
		Addr:            pc.Addr,
		User:            pc.User,
		Pass:            pc.Pass,
		Name:            pc.Name,
		MaxConns:        pc.MaxConns,
		MaxConnLifetime: pc.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if pc.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return fmt.Errorf("postgres: %w", err)
		}
	}

	s.infra.postgres = db
	s.infra.store = postgres.NewStore(db)
	return nil
}

func (s *Server) initService() {
	s.service.quota = quota.NewService(quota.Config{
		Redis:  s.infra.redis,
		Prefix: s.c.Redis.Prefix,
		Limits: map[quota.Kind]int{
			quota.KindQuiz:       s.c.Quota.Quiz,
			quota.KindFlashcards: s.c.Quota.Flashcards,
		},
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		Repo:       s.infra.store,
		Quota:      s.service.quota,
		EventBus:   s.eb,
		Redis:      s.infra.redis,
		Prefix:     s.c.Redis.Prefix,
		AttemptTTL: s.c.Attempt.TTL,
		Logger:     s.log.Named("quiz"),
	})

	s.service.flashcard = flashcard.NewService(flashcard.Config{
		Repo:     s.infra.store,
		Quota:    s.service.quota,
		EventBus: s.eb,
		Logger:   s.log.Named("flashcard"),
	})

	s.service.progress = progress.NewService(progress.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis,
		Prefix:   s.c.Redis.Prefix,
	})
}

func (s *Server) initAPI() {
	if s.c.Env == logger.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	e := gin.New()
	e.Use(gin.Recovery())
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", s.healthz)
	pprof.Register(e, "/debug/pprof")

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(s.log.Named("grpc")))

	api.New(api.Config{
		GRPC:         s.grpc,
		EventBus:     s.eb,
		Quiz:         s.service.quiz,
		Flashcard:    s.service.flashcard,
		Progress:     s.service.progress,
		Quota:        s.service.quota,
		Redis:        s.infra.redis,
		PubsubPrefix: s.c.Redis.PubsubPrefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error {
		return s.infra.redis.Ping(ctx).Err()
	})
	if s.infra.postgres != nil {
		eg.Go(func() error {
			return s.infra.postgres.Ping(ctx)
		})
	}

	if err := eg.Wait(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start() {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		s.log.Fatal("grpc server: listen failed", zap.Error(err))
	}

	var eg errgroup.Group
	eg.Go(func() error {
		s.log.Info("server: gRPC listening", zap.Int32("port", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		s.log.Info("server: HTTP listening", zap.Int32("port", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		s.log.Error("server: shutdown with error", zap.Error(err))
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Error("server: shutdown HTTP failed", zap.Error(err))
	}

	s.eb.Stop()

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}
	if err := s.infra.redis.Close(); err != nil {
		s.log.Error("server: close redis failed", zap.Error(err))
	}

	s.log.Info("server: shutdown completed")
	_ = s.log.Sync()
}
