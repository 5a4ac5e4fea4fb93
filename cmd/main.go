package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiawesome/flow-market/internal/cache"
	"github.com/weiawesome/flow-market/internal/config"
	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/handler"
	"github.com/weiawesome/flow-market/internal/hub"
	"github.com/weiawesome/flow-market/internal/relay"
	"github.com/weiawesome/flow-market/internal/repository"
	"github.com/weiawesome/flow-market/internal/service"
	"github.com/weiawesome/flow-market/internal/uploader"
	"github.com/weiawesome/flow-market/pkg/database"
	"github.com/weiawesome/flow-market/pkg/jwt"
	"github.com/weiawesome/flow-market/pkg/log"
	"github.com/weiawesome/flow-market/pkg/middleware"
	"github.com/weiawesome/flow-market/pkg/pubsub"
	"github.com/weiawesome/flow-market/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := log.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := log.Init(cfg.Log)
	cfg.OnLogLevelChange(func(level string) {
		lvl := log.SetLevel(level)
		l := log.L()
		l.Info().Str("level", lvl.String()).Msg("log level reloaded from config file")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.New(&cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		l.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	l.Info().Str("driver", cfg.Database.Driver).Msg("database ready")

	userRepo := repository.NewGormUserRepository(db)
	productRepo := repository.NewGormProductRepository(db)
	messageRepo, closeMessages := openMessages(cfg, db)
	defer closeMessages()

	// Sessions
	if cfg.Session.Secret == config.DevSessionSecret {
		l.Warn().Msg("SECRET_KEY not set, using the development session secret")
	}
	tokens, err := jwt.NewManager(cfg.Session.Secret, cfg.Session.MaxAge, domain.ServiceName)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to create session token manager")
	}

	// Realtime
	wsHub := hub.NewHub()
	go wsHub.Run()
	defer wsHub.Stop()

	broadcaster, closeRelay := openRelay(ctx, cfg, wsHub)
	defer closeRelay()

	msgCache := openCache(cfg)
	if msgCache != nil {
		defer msgCache.Close()
	}

	// Uploads
	store, localStore := openStorage(ctx, cfg)
	imageUploader := uploader.New(cfg.Upload, store)
	l.Info().Str(log.FieldBackend, imageUploader.Name()).Msg("image uploader selected")

	// Services
	authService := service.NewAuthService(userRepo, tokens)
	productService := service.NewProductService(productRepo, userRepo)
	chatService := service.NewChatService(wsHub, messageRepo, broadcaster, msgCache, cfg.Cache.TTL)
	uploadService := service.NewUploadService(imageUploader, cfg.Upload.MaxSize)
	healthService := service.NewHealthService(productRepo, messageRepo)

	cookie := middleware.SessionCookie{
		Name:   cfg.Session.CookieName,
		MaxAge: int(cfg.Session.MaxAge / time.Second),
		Secure: cfg.Session.Secure,
	}

	deps := handler.Deps{
		Auth:      authService,
		Products:  productService,
		Chat:      chatService,
		Uploads:   uploadService,
		Health:    healthService,
		Hub:       wsHub,
		Cookie:    cookie,
		WebSocket: cfg.WebSocket,
		FeedLimit: cfg.Server.FeedLimit,
		MaxUpload: cfg.Upload.MaxSize,
	}
	if localStore != nil {
		deps.Media = localStore
		deps.MediaPrefix = localStore.URLPrefix()
	}

	httpHandler, err := handler.NewHandler(deps)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to create http handler")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		gin.Recovery(),
		log.AccessLog(l, "/static/", "/health", cfg.Upload.Storage.Local.URLPrefix),
		middleware.CORS(cfg.Server.CORSOrigins),
		middleware.Session(authService, cookie),
	)
	if cfg.Upload.MaxSize > 0 {
		r.MaxMultipartMemory = cfg.Upload.MaxSize
	}
	httpHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("flow market listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("flow market stopped")
}

// openRelay returns the broadcaster for chat messages. Without a relay, or
// when the relay cannot be reached, delivery stays within this process.
func openRelay(ctx context.Context, cfg *config.Config, h *hub.Hub) (relay.Broadcaster, func()) {
	l := log.L()
	local := relay.NewLocalBroadcaster(h)
	if !cfg.RelayEnabled() {
		return local, func() {}
	}

	bus, err := pubsub.Open(cfg.Relay)
	if err != nil {
		l.Error().Err(err).Str("driver", cfg.Relay.Driver).Msg("relay unavailable, broadcasting locally")
		return local, func() {}
	}

	origin := cfg.Relay.Kafka.InstanceID
	if origin == "" {
		origin = uuid.New().String()
	}

	b := relay.NewPubSubBroadcaster(bus, h, origin)
	if err := b.Start(ctx); err != nil {
		l.Error().Err(err).Msg("relay subscribe failed, broadcasting locally")
		bus.Close()
		return local, func() {}
	}

	l.Info().Str("driver", cfg.Relay.Driver).Str("instance", origin).Msg("relay started")
	return b, func() {
		if err := b.Close(); err != nil {
			l.Warn().Err(err).Msg("failed to close relay")
		}
	}
}

// openMessages returns the chat log. The SQL database holds it unless
// MESSAGE_STORE selects Cassandra.
func openMessages(cfg *config.Config, db *gorm.DB) (repository.MessageRepository, func()) {
	l := log.L()
	switch cfg.Messages.Store {
	case "", "sql":
		return repository.NewGormMessageRepository(db), func() {}
	case "cassandra":
		session, err := repository.OpenCassandra(cfg.Messages.Cassandra)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to open cassandra message store")
		}
		l.Info().Strs("hosts", cfg.Messages.Cassandra.Hosts).Msg("chat log stored in cassandra")
		repo := repository.NewCassandraMessageRepository(session)
		return repo, repo.Close
	default:
		l.Fatal().Str("store", cfg.Messages.Store).Msg("unknown message store")
		return nil, nil
	}
}

func openCache(cfg *config.Config) cache.MessageCache {
	if cfg.Cache.RedisURL == "" {
		return nil
	}
	l := log.L()

	c, err := cache.NewRedisMessageCache(cfg.Cache.RedisURL, cfg.Cache.Prefix)
	if err != nil {
		l.Warn().Err(err).Msg("history cache unavailable, reading from the database")
		return nil
	}
	return c
}

// openStorage builds the object storage upload backend. The second result is
// set only for local storage, which this process also serves.
func openStorage(ctx context.Context, cfg *config.Config) (storage.Store, *storage.LocalStore) {
	l := log.L()
	sc := cfg.Upload.Storage

	switch sc.Driver {
	case "":
		return nil, nil
	case "local":
		s, err := storage.NewLocalStore(sc.Local)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to create local storage")
		}
		return s, s
	case "s3":
		s, err := storage.NewS3Store(ctx, sc.S3)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to create s3 storage")
		}
		return s, nil
	default:
		l.Fatal().Str("driver", sc.Driver).Msg("unknown upload storage driver")
		return nil, nil
	}
}
