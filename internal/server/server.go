package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/adaptivequiz/internal/api"
	"github.com/victornm/adaptivequiz/internal/domain"
	"github.com/victornm/adaptivequiz/internal/event"
	"github.com/victornm/adaptivequiz/internal/leaderboard"
	"github.com/victornm/adaptivequiz/internal/postgres"
	"github.com/victornm/adaptivequiz/internal/question"
	"github.com/victornm/adaptivequiz/internal/result"
	"github.com/victornm/adaptivequiz/internal/session"
	"github.com/victornm/adaptivequiz/internal/stats"
	"github.com/victornm/adaptivequiz/internal/telemetry"
)

const lockTTL = 10 * time.Second

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Quiz struct {
		// Fallback is what to do when the bank has no unseen question at the wanted difficulty: none or nearest.
		Fallback     string
		RecentScores int
		LockTimeout  time.Duration
		// SeedFile replaces the built-in questions of the in-memory bank.
		SeedFile string
	}

	Leaderboard struct {
		PublishInterval time.Duration
		NotifyLimit     int
	}

	// Empty addresses keep the matching state in memory.
	Redis struct {
		Session struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres postgres.Config
}

// DefaultConfig runs everything in memory.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Quiz.Fallback = string(session.FallbackNearest)
	c.Quiz.RecentScores = domain.DefaultRecentScores
	c.Quiz.LockTimeout = 5 * time.Second
	c.Leaderboard.PublishInterval = 200 * time.Millisecond
	c.Leaderboard.NotifyLimit = 10
	c.Redis.Session.Prefix = "quiz"
	c.Redis.Session.TTL = 24 * time.Hour
	c.Redis.Pubsub.Prefix = "quiz"
	return c
}

func (c Config) Validate() error {
	if _, err := session.ParseFallback(c.Quiz.Fallback); err != nil {
		return fmt.Errorf("quiz.fallback: %w", err)
	}
	if c.Quiz.RecentScores <= 0 {
		return fmt.Errorf("quiz.recentscores must be positive, got %d", c.Quiz.RecentScores)
	}
	if c.HTTP.Port <= 0 || c.GRPC.Port <= 0 {
		return fmt.Errorf("ports must be positive, got http=%d grpc=%d", c.HTTP.Port, c.GRPC.Port)
	}
	if len(c.Redis.Session.Addrs) > 0 && c.Redis.Session.TTL <= 0 {
		return fmt.Errorf("redis.session.ttl must be positive, got %s", c.Redis.Session.TTL)
	}

	return nil
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			session redis.UniversalClient
			pubsub  redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	service struct {
		session     *session.Service
		stats       stats.Store
		leaderboard *leaderboard.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(ctx context.Context, c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(ctx); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra(ctx context.Context) error {
	if err := s.initRedis(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis(ctx context.Context) error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		if len(addrs) == 0 {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.session, err = connect(s.c.Redis.Session.Addrs, s.c.Redis.Session.Pass)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres(ctx context.Context) (err error) {
	if !s.c.Postgres.Enabled() {
		slog.InfoContext(ctx, "server: postgres not configured, keeping questions and stats in memory")
		return nil
	}

	if err := postgres.Migrate(ctx, s.c.Postgres.DSN()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	s.infra.postgres, err = postgres.Connect(ctx, s.c.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	return nil
}

func (s *Server) initService() error {
	bank, err := s.questionBank()
	if err != nil {
		return fmt.Errorf("question bank: %w", err)
	}

	var (
		repo   session.Repository = session.NewMemoryRepository()
		locker session.Locker     = session.NewLocalLocker()
	)
	if r := s.infra.redis.session; r != nil {
		repo = session.NewRedisRepository(r, s.c.Redis.Session.Prefix, s.c.Redis.Session.TTL)
		locker = session.NewRedisLocker(r, s.c.Redis.Session.Prefix, lockTTL)
	}

	s.service.stats = stats.NewMemoryStore(s.c.Quiz.RecentScores)
	if db := s.infra.postgres; db != nil {
		s.service.stats = stats.NewPostgresStore(db, s.c.Quiz.RecentScores)
	}

	fallback, err := session.ParseFallback(s.c.Quiz.Fallback)
	if err != nil {
		return err
	}

	s.service.session = session.NewService(session.Config{
		Bank:   bank,
		Repo:   repo,
		Locker: locker,
		Compiler: result.NewCompiler(result.Config{
			Stats:    s.service.stats,
			EventBus: s.eb,
		}),
		Fallback:    fallback,
		LockTimeout: s.c.Quiz.LockTimeout,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus:        s.eb,
		Stats:           s.service.stats,
		Redis:           s.infra.redis.session,
		Prefix:          s.c.Redis.Session.Prefix,
		PublishInterval: s.c.Leaderboard.PublishInterval,
		NotifyLimit:     s.c.Leaderboard.NotifyLimit,
	})

	return nil
}

func (s *Server) questionBank() (question.Bank, error) {
	if db := s.infra.postgres; db != nil {
		return question.NewPostgresBank(db), nil
	}

	qs := question.Default()
	if f := s.c.Quiz.SeedFile; f != "" {
		var err error
		if qs, err = question.LoadFile(f); err != nil {
			return nil, err
		}
	}

	return question.NewMemoryBank(qs...)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery())
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")

	c := api.Config{
		Router:       e,
		EventBus:     s.eb,
		Session:      s.service.session,
		Stats:        s.service.stats,
		Leaderboard:  s.service.leaderboard,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	}
	if s.infra.redis.pubsub != nil {
		c.Redis = s.infra.redis.pubsub
	}
	api.New(c)

	s.grpc = grpc.NewServer(telemetry.GRPCServerOptions(slog.Default())...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// Start serves HTTP and gRPC until Shutdown is called or one of them fails.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		return fmt.Errorf("grpc server: listen: %w", err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return eg.Wait()
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	for _, r := range []redis.UniversalClient{s.infra.redis.session, s.infra.redis.pubsub} {
		if r != nil {
			_ = r.Close()
		}
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
