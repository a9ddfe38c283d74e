package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"VibeQ/cache"
	"VibeQ/config"
	"VibeQ/core/hub"
	"VibeQ/core/nowplaying"
	"VibeQ/core/queue"
	"VibeQ/core/ratelimit"
	"VibeQ/db"
	"VibeQ/logger"
	"VibeQ/repository"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// corsMiddleware allows any origin; identities are soft and nothing is
// secret.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+IdentityHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter mounts every endpoint on a gorilla/mux router.
func NewRouter(h *APIHandler, metrics *Metrics, gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(metrics.Middleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tracks", h.ListTracksHandler).Methods(http.MethodGet)
	api.HandleFunc("/tracks", h.AppendTrackHandler).Methods(http.MethodPost)
	api.HandleFunc("/tracks/{id}", h.RemoveTrackHandler).Methods(http.MethodDelete)
	api.HandleFunc("/now-playing", h.GetNowPlayingHandler).Methods(http.MethodGet)
	api.HandleFunc("/now-playing", h.SetNowPlayingHandler).Methods(http.MethodPost)
	// preflight requests must match a route for the CORS middleware to run
	api.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	router.HandleFunc("/ws/events", h.EventsHandler).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return router
}

// App is a fully wired server.
type App struct {
	Handler http.Handler
	Hub     *hub.Hub

	stop []func()
}

// Close stops background workers started by NewApp.
func (a *App) Close() {
	for i := len(a.stop) - 1; i >= 0; i-- {
		a.stop[i]()
	}
}

// NewApp wires services on gdb. When redis is non-nil the queue listing is
// cached there, appends are locked there and events fan out through pub/sub;
// otherwise everything stays in process.
func NewApp(cfg *config.Config, gdb *gorm.DB, redisCache *cache.QueueCache, locker ratelimit.Locker, bus *cache.EventBus) (*App, error) {
	app := &App{Hub: hub.NewHub()}
	go app.Hub.Run()
	app.stop = append(app.stop, app.Hub.Stop)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(registry)

	tracks := repository.NewGormTrackRepository(gdb)
	identities := repository.NewGormIdentityRepository(gdb)
	pointer := repository.NewGormPointerRepository(gdb)

	var publisher queue.Publisher = app.Hub
	if bus != nil {
		ctx, cancel := context.WithCancel(context.Background())
		done, err := bus.Subscribe(ctx, app.Hub.Deliver)
		if err != nil {
			cancel()
			app.Close()
			return nil, err
		}
		app.stop = append(app.stop, func() {
			cancel()
			<-done
		})
		publisher = bus
	}

	opts := []queue.Option{queue.WithPublisher(publisher), queue.WithMetrics(metrics)}
	if redisCache != nil {
		opts = append(opts, queue.WithCache(redisCache))
	}
	if locker != nil {
		opts = append(opts, queue.WithLocker(locker))
	}
	policy := ratelimit.Policy{Window: cfg.RateLimitWindow, MaxAppends: cfg.RateLimitMaxAppends}
	queueSvc := queue.NewService(tracks, identities, policy, opts...)

	npSvc := nowplaying.NewService(pointer, tracks).
		WithPublisher(publisher).
		OnWrite(metrics.PointerWritten)

	app.Handler = NewRouter(NewAPIHandler(queueSvc, npSvc, app.Hub), metrics, registry)
	return app, nil
}

// Start connects storage, serves HTTP on cfg.HTTPAddr and shuts down
// gracefully on SIGINT or SIGTERM.
func Start(cfg *config.Config) {
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(db.GormDB); err != nil {
		logger.Fatal("failed to migrate database", logger.ErrorField(err))
	}

	var (
		queueCache *cache.QueueCache
		locker     ratelimit.Locker
		bus        *cache.EventBus
	)
	if cfg.RedisEnabled {
		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
		}
		defer cache.CloseRedis()
		queueCache = cache.NewQueueCache(cache.RedisClient, cfg.QueueCacheTTL)
		locker = cache.NewIdentityLocker(cache.RedisClient)
		bus = cache.NewEventBus(cache.RedisClient)
		logger.Info("Redis enabled",
			logger.String("host", cfg.RedisHost),
			logger.String("port", cfg.RedisPort))
	}

	app, err := NewApp(cfg, db.GormDB, queueCache, locker, bus)
	if err != nil {
		logger.Fatal("failed to build server", logger.ErrorField(err))
	}
	defer app.Close()

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      app.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("server stopped")
}
