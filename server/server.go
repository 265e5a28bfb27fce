package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wavecast/cache"
	"wavecast/config"
	"wavecast/core/auth"
	"wavecast/db"
	"wavecast/logger"
	"wavecast/model"
	"wavecast/repository"
	"wavecast/storage"

	"github.com/gorilla/mux"
)

// Start initializes dependencies and runs the HTTP server until interrupted.
func Start() {
	cfg := config.Load()

	logLevel := logger.InfoLevel
	if !cfg.IsProduction() {
		logLevel = logger.DebugLevel
	}
	logger.Init(logger.Config{
		Level:       logLevel,
		Development: !cfg.IsProduction(),
	})

	objects, err := storage.InitMinio(cfg)
	if err != nil {
		logger.Fatal("failed to initialize MinIO", logger.ErrorField(err))
	}
	if objects.Enabled() {
		logger.Info("object-storage mirror enabled", logger.String("endpoint", cfg.MinioEndpoint))
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect to database with GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.User{}); err != nil {
		logger.Fatal("failed to migrate user model", logger.ErrorField(err))
	}
	if err := db.InitDB(); err != nil {
		logger.Fatal("failed to initialize database schema", logger.ErrorField(err))
	}

	// The catalog cache is an accelerator only; a missing Redis just means
	// every listing is a cache miss.
	var catalog *cache.CatalogCache
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis unavailable, continuing without catalog cache", logger.ErrorField(err))
	} else {
		defer db.CloseRedis()
		catalog = cache.NewCatalogCache(db.RedisClient)
		logger.Info("connected to Redis")
	}

	uploader := NewUploader(cfg)
	if err := uploader.EnsureDirs(); err != nil {
		logger.Fatal("failed to create upload directories", logger.ErrorField(err))
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTLifetime)
	userRepo := repository.NewGormUserRepository(db.GormDB)
	trackRepo := repository.NewMySQLTrackRepository(db.DB)

	h := NewAPIHandler(cfg, userRepo, trackRepo, tokens, uploader, catalog, objects)

	router := NewRouter(h, cfg, objects)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  5 * time.Minute, // uploads can be large
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("server stopped")
}

// NewRouter wires every route. Split from Start so tests can mount the full
// surface against fakes.
func NewRouter(h *APIHandler, cfg *config.Config, objects *storage.ObjectStore) http.Handler {
	router := mux.NewRouter()

	// Authentication
	router.HandleFunc("/auth/register", h.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/auth/login", h.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/auth/me", h.RequireAuth(h.MeHandler)).Methods(http.MethodGet)
	router.HandleFunc("/auth/refresh", h.RequireAuth(h.RefreshHandler)).Methods(http.MethodPost)
	router.HandleFunc("/auth/logout", h.RequireAuth(h.LogoutHandler)).Methods(http.MethodPost)
	router.HandleFunc("/auth/preferences", h.RequireAuth(h.UpdatePreferencesHandler)).Methods(http.MethodPut)

	// Catalog. Fixed listings are registered before the {id} routes so mux
	// matches them first.
	router.HandleFunc("/songs", h.RequireAuth(h.RequireRoles(model.RoleContributor, model.RoleAdmin)(h.CreateTrackHandler))).Methods(http.MethodPost)
	router.HandleFunc("/songs", h.ListTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/songs/featured", h.FeaturedTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/songs/popular", h.PopularTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/songs/recent", h.RecentTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/songs/user/{userId}", h.UserTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/songs/{id}", h.OptionalAuth(h.GetTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/songs/{id}/play", h.OptionalAuth(h.PlayHandler)).Methods(http.MethodPut)
	router.HandleFunc("/songs/{id}/rate", h.RequireAuth(h.RateHandler)).Methods(http.MethodPost)
	router.HandleFunc("/songs/{id}/favorite", h.RequireAuth(h.FavoriteHandler)).Methods(http.MethodPost)
	router.HandleFunc("/songs/{id}/favorite", h.RequireAuth(h.UnfavoriteHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/songs/{id}/download", h.DownloadHandler).Methods(http.MethodGet)
	router.HandleFunc("/songs/{id}", h.RequireAuth(h.RequireOwnerOrAdmin(h.trackOwner, h.DeleteTrackHandler))).Methods(http.MethodDelete)

	// Moderation
	router.HandleFunc("/songs/{id}/approve", h.RequireAuth(h.RequireRoles(model.RoleAdmin)(h.ApproveTrackHandler))).Methods(http.MethodPut)
	router.HandleFunc("/songs/{id}/reject", h.RequireAuth(h.RequireRoles(model.RoleAdmin)(h.RejectTrackHandler))).Methods(http.MethodPut)
	router.HandleFunc("/songs/{id}/feature", h.RequireAuth(h.RequireRoles(model.RoleAdmin)(h.FeatureTrackHandler))).Methods(http.MethodPut)

	// Users
	router.HandleFunc("/users/{id}", h.OptionalAuth(h.GetUserHandler)).Methods(http.MethodGet)
	router.HandleFunc("/users/{id}", h.RequireAuth(h.RequireOwnerOrAdmin(h.pathUser, h.UpdateUserHandler))).Methods(http.MethodPut)
	router.HandleFunc("/users/{id}/avatar", h.RequireAuth(h.RequireOwnerOrAdmin(h.pathUser, h.AvatarHandler))).Methods(http.MethodPost)
	router.HandleFunc("/users/{id}/role", h.RequireAuth(h.RequireRoles(model.RoleAdmin)(h.UpdateRoleHandler))).Methods(http.MethodPut)
	router.HandleFunc("/users/{id}/status", h.RequireAuth(h.RequireRoles(model.RoleAdmin)(h.UpdateStatusHandler))).Methods(http.MethodPut)
	router.HandleFunc("/users/{id}/stats", h.RequireAuth(h.RequireOwnerOrAdmin(h.pathUser, h.UserStatsHandler))).Methods(http.MethodGet)

	// Uploaded files, proxied from the object store when mirroring is on.
	if objects.Enabled() {
		router.PathPrefix("/uploads/").Handler(objects.StaticHandler("/uploads/"))
	} else {
		uploadsFileServer := http.FileServer(http.Dir(cfg.UploadDir))
		router.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", uploadsFileServer))
	}

	// The outer middlewares wrap the router itself so OPTIONS preflights and
	// unmatched paths still get CORS headers and a request ID.
	return requestIDMiddleware(corsMiddleware(recoverMiddleware(router)))
}
