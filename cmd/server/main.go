package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	webapi "go.pilab.hu/webstarter/api/echo"
	"go.pilab.hu/webstarter/config"
	"go.pilab.hu/webstarter/csrf"
	"go.pilab.hu/webstarter/domain"
	"go.pilab.hu/webstarter/internal/auth"
	"go.pilab.hu/webstarter/internal/server"
	"go.pilab.hu/webstarter/log"
	"go.pilab.hu/webstarter/memdb"
	"go.pilab.hu/webstarter/mongodb"
	"go.pilab.hu/webstarter/services"
	"go.pilab.hu/webstarter/session"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)
	if parseErr != nil {
		appLogger.Warn(context.Background(), "Invalid LOG_LEVEL configured, defaulting to 'info'",
			map[string]interface{}{"configured_log_level": cfg.LogLevel})
	}

	ctx := context.Background()
	appLogger.Info(ctx, "Starting webstarter server...", map[string]interface{}{
		"http_port":     cfg.HTTPPort,
		"env":           cfg.Env,
		"session_store": cfg.SessionStore,
		"user_store":    cfg.UserStore,
	})

	// CSRF token store with its background sweeper.
	csrfStore := csrf.NewMemoryStore()
	csrfStore.StartSweeping(time.Duration(cfg.CSRFSweepIntervalMin) * time.Minute)

	// Session store.
	var sessionStore session.Store
	var redisClient *redis.Client
	switch cfg.SessionStore {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			appLogger.Fatal(ctx, "Failed to connect to Redis", err, nil)
		}
		sessionStore = session.NewRedisStore(redisClient)
	default:
		memStore := session.NewMemoryStore()
		defer memStore.Close()
		sessionStore = memStore
	}

	// User repository.
	var userRepo domain.UserRepository
	switch cfg.UserStore {
	case "mongo":
		if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
			appLogger.Fatal(ctx, "Failed to initialize MongoDB connection", err, nil)
		}
		repo, err := mongodb.NewUserRepository(ctx, mongodb.GetDB())
		if err != nil {
			appLogger.Fatal(ctx, "Failed to initialize UserRepository", err, nil)
		}
		userRepo = repo
	default:
		userRepo = memdb.NewUserRepository()
	}

	// Services.
	passwordHasher := auth.NewBcryptPasswordHasher(bcrypt.DefaultCost)
	userService := services.NewUserService(userRepo, passwordHasher)
	tokenService := services.NewTokenService(
		cfg.JWTSecretKey,
		cfg.JWTIssuer,
		time.Duration(cfg.AccessTokenTTLMin)*time.Minute,
	)

	api := webapi.NewAPI(cfg, userService, tokenService, sessionStore)

	e, err := server.NewHTTPServer(server.Deps{
		Config:       cfg,
		Logger:       appLogger,
		CSRFStore:    csrfStore,
		SessionStore: sessionStore,
		API:          api,
	})
	if err != nil {
		appLogger.Fatal(ctx, "Failed to build HTTP server", err, nil)
	}

	go func() {
		appLogger.Info(ctx, "HTTP server listening", map[string]interface{}{"port": cfg.HTTPPort})
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(ctx, "Failed to start HTTP server", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(ctx, "Received signal, shutting down server...",
		map[string]interface{}{"signal": receivedSignal.String()})

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err, nil)
	}

	csrfStore.Stop()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			appLogger.Error(shutdownCtx, "Redis client close error", err, nil)
		}
	}
	if cfg.UserStore == "mongo" {
		mongodb.CloseMongoDB(shutdownCtx)
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}
