// Package app wires the stores, services and transport of the server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wellping/internal/cache"
	"wellping/internal/config"
	"wellping/internal/repository"
	"wellping/internal/service"
	"wellping/internal/study"
	"wellping/internal/transport/rest"
	"wellping/internal/transport/ws"
)

const activePingTTL = 24 * time.Hour

// ErrNoStudy is returned when neither a study file nor a stored study is
// available.
var ErrNoStudy = errors.New("no study configured: set STUDY_FILE or run seed load")

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Mongo *mongo.Client
	Redis *redis.Client

	PingRepo   repository.PingRepo
	AnswerRepo repository.AnswerRepo
	StudyRepo  repository.StudyRepo

	SessionStates cache.SessionStateCache
	FuturePings   cache.FuturePingQueue
	ActivePings   cache.ActivePingCache

	Study       *study.Study
	AuthService *service.AuthService
	PingService *service.PingService
	Uploader    *service.UploadService
	WSHub       *ws.Hub
}

// Connect opens the Mongo and Redis connections and creates the stores.
func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	g, gctx := errgroup.WithContext(pingCtx)
	g.Go(func() error {
		if err := mongoClient.Ping(gctx, nil); err != nil {
			return fmt.Errorf("failed to ping MongoDB: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := rdb.Ping(gctx).Err(); err != nil {
			return fmt.Errorf("failed to ping Redis: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		_ = mongoClient.Disconnect(context.Background())
		_ = rdb.Close()
		return nil, err
	}
	logger.Info("Connected to MongoDB and Redis",
		zap.String("database", cfg.Mongo.Database),
		zap.String("redis", cfg.Redis.Addr),
	)

	db := mongoClient.Database(cfg.Mongo.Database)
	return &App{
		Config:        cfg,
		Logger:        logger,
		Mongo:         mongoClient,
		Redis:         rdb,
		PingRepo:      repository.NewPingRepo(db),
		AnswerRepo:    repository.NewAnswerRepo(db),
		StudyRepo:     repository.NewStudyRepo(db),
		SessionStates: cache.NewSessionStateCache(rdb, 0),
		FuturePings:   cache.NewFuturePingQueue(rdb),
		ActivePings:   cache.NewActivePingCache(rdb, activePingTTL),
	}, nil
}

// EnsureIndexes creates the Mongo indexes the repositories rely on.
func (a *App) EnsureIndexes(ctx context.Context) error {
	if err := a.PingRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create ping indexes: %w", err)
	}
	if err := a.AnswerRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create answer indexes: %w", err)
	}
	return nil
}

// LoadStudy loads the configured study file and stores it as the current
// study, or falls back to the stored one.
func (a *App) LoadStudy(ctx context.Context) error {
	if path := a.Config.Study.File; path != "" {
		st, err := study.LoadFile(path)
		if err != nil {
			return err
		}
		if err := a.StudyRepo.SaveCurrent(ctx, st.Info().ID, st.Raw()); err != nil {
			return fmt.Errorf("failed to store study: %w", err)
		}
		a.Study = st
		a.Logger.Info("Study loaded from file", zap.String("path", path), zap.String("studyId", st.Info().ID))
		return nil
	}

	raw, err := a.StudyRepo.GetCurrent(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stored study: %w", err)
	}
	if raw == nil {
		return ErrNoStudy
	}
	st, err := study.Parse(raw)
	if err != nil {
		return fmt.Errorf("stored study is invalid: %w", err)
	}
	a.Study = st
	a.Logger.Info("Study loaded from database", zap.String("studyId", st.Info().ID))
	return nil
}

// BuildServices creates the services and the WebSocket hub. LoadStudy
// must have succeeded.
func (a *App) BuildServices() {
	cfg := a.Config
	info := a.Study.Info()

	uploadURL := cfg.Upload.URL
	if uploadURL == "" {
		uploadURL = strings.TrimSuffix(info.ServerURL, "/") + "/data"
	}
	a.Uploader = service.NewUploadService(uploadURL, info.ID, cfg.Upload.Timeout, a.PingRepo, a.AnswerRepo, a.Logger.Named("upload"))

	a.WSHub = ws.NewHub(a.Logger.Named("ws"))
	a.AuthService = service.NewAuthService(cfg.Auth, cfg.Debug, info.ID, a.Logger.Named("auth"))
	a.PingService = service.NewPingService(a.Study, a.PingRepo, a.ActivePings, service.SessionDeps{
		States:         a.SessionStates,
		Answers:        a.AnswerRepo,
		Futures:        a.FuturePings,
		Uploader:       a.Uploader,
		Pings:          a.PingRepo,
		Logger:         a.Logger.Named("session"),
		UploadThrottle: cfg.Upload.Throttle,
		Timeout:        cfg.CollaboratorTimeout,
	}, cfg.Resolver, cfg.Debug)
	a.PingService.SetBroadcaster(a.WSHub)
}

// Router returns the HTTP handler of the API.
func (a *App) Router() http.Handler {
	return rest.NewRouter(&rest.Container{
		AuthService: a.AuthService,
		PingService: a.PingService,
		Study:       a.Study,
		WSHub:       a.WSHub,
		CORS:        a.Config.CORS,
		Logger:      a.Logger,
	})
}

// Close waits for session background work and releases the connections.
func (a *App) Close(ctx context.Context) error {
	if a.PingService != nil {
		a.PingService.Sessions().Wait()
	}
	if a.WSHub != nil {
		a.WSHub.Close()
	}
	return errors.Join(
		a.Redis.Close(),
		a.Mongo.Disconnect(ctx),
	)
}
