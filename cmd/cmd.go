package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"campus-social-backend/internal/config"
	"campus-social-backend/internal/handlers"
	"campus-social-backend/internal/middleware"
	"campus-social-backend/internal/repository"
	"campus-social-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// stores groups the persistence collaborators chosen by database.driver
type stores struct {
	relations     repository.RelationStore
	profiles      repository.ProfileStore
	notifications repository.NotificationStore
	close         func()
}

func Run() {
	// Load configuration
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to ping redis")
	}
	log.Info().Msg("Redis connection established")

	sessionService := services.NewSessionService(rdb, cfg.Session.Secret, cfg.Session.TTL)

	// issue-session <user_id> prints a token for an existing user and exits
	if len(os.Args) == 3 && os.Args[1] == "issue-session" {
		issueSession(sessionService, os.Args[2])
		return
	}

	st, err := openStores(context.Background(), cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to open database")
	}
	defer st.close()

	// Initialize services
	presence := services.NewPresence(rdb, cfg.Cache.PresenceTTL)
	friendsCache := services.NewFriendsCache(rdb, cfg.Cache.FriendsTTL)
	notifier := services.NewNotifier(st.profiles, st.notifications)
	friendService := services.NewFriendService(st.relations, st.profiles, notifier, friendsCache, presence)

	sendLimiter := middleware.NewRateLimiter(rdb, "friend_request", cfg.RateLimit.FriendRequestsPerMinute, time.Minute)

	r := newRouter(routerDeps{
		friendHandler:  handlers.NewFriendHandler(friendService),
		sessionHandler: handlers.NewSessionHandler(sessionService, cfg.Session.CookieName),
		auth:           middleware.AuthMiddleware(sessionService, cfg.Session.CookieName, presence),
		sendLimit:      sendLimiter.PerUser,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("driver", cfg.Database.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func openStores(ctx context.Context, cfg config.DatabaseConfig) (*stores, error) {
	if cfg.Driver == "memory" {
		log.Warn().Msg("Using in-memory store, state is lost on exit")
		mem := repository.NewMemoryStore()
		return &stores{relations: mem, profiles: mem, notifications: mem, close: func() {}}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test database connection
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if cfg.Migrate {
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		log.Info().Msg("Database schema applied")
	}

	return &stores{
		relations:     repository.NewPostgresStore(db),
		profiles:      repository.NewProfileRepository(db),
		notifications: repository.NewNotificationRepository(db),
		close:         db.Close,
	}, nil
}

func issueSession(sessions *services.SessionService, arg string) {
	userID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || userID <= 0 {
		log.Fatal().Str("user_id", arg).Msg("Invalid user id")
	}
	token, err := sessions.Issue(context.Background(), userID)
	if err != nil {
		log.Fatal().Err(err).Int64("user_id", userID).Msg("Failed to issue session")
	}
	fmt.Println(token)
}

type routerDeps struct {
	friendHandler  *handlers.FriendHandler
	sessionHandler *handlers.SessionHandler
	auth           func(http.Handler) http.Handler
	sendLimit      func(http.Handler) http.Handler
}

func newRouter(deps routerDeps) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", handlers.Health)

	// Protected routes
	r.Route("/api", func(r chi.Router) {
		r.Use(deps.auth)
		r.Delete("/session", deps.sessionHandler.Logout)
		r.Route("/friends", func(r chi.Router) {
			deps.friendHandler.Routes(r, deps.sendLimit)
		})
	})

	return r
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
