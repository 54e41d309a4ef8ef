package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"syncfm/cache"
	"syncfm/config"
	"syncfm/core/musicapi"
	"syncfm/core/room"
	"syncfm/logger"
)

// Server wires the registry, hub, manager and music API into one HTTP
// surface and owns their lifecycles.
type Server struct {
	cfg      *config.Config
	registry *room.Registry
	hub      *room.Hub
	manager  *room.Manager
	music    *musicapi.Client
	resolver musicapi.Resolver
	rdb      *redis.Client
}

// New assembles a server from configuration. Redis being unreachable is not
// fatal: the stream URL cache degrades to direct resolution.
func New(cfg *config.Config) *Server {
	music := musicapi.NewClient(cfg.MusicAPIURL)

	var resolver musicapi.Resolver = music
	rdb, err := cache.Connect(cfg)
	if err != nil {
		logger.Warn("running without redis, stream urls are uncached", logger.ErrorField(err))
		rdb = nil
	} else {
		resolver = cache.NewStreamURLCache(rdb, music)
	}

	registry := room.NewRegistry(cfg.MainRoomID, cfg.MainRoomName, cfg.RoomCapacity)
	hub := room.NewHub()

	return &Server{
		cfg:      cfg,
		registry: registry,
		hub:      hub,
		manager:  room.NewManager(registry, hub),
		music:    music,
		resolver: resolver,
		rdb:      rdb,
	}
}

// Run serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Run() error {
	go s.hub.Run()

	router := mux.NewRouter()
	s.registerRoutes(router)

	httpServer := &http.Server{
		Addr:         s.cfg.HTTPAddr,
		Handler:      corsMiddleware(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", logger.String("addr", s.cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", logger.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", logger.ErrorField(err))
	}
	s.hub.Stop()
	s.registry.Close()
	if s.rdb != nil {
		s.rdb.Close()
	}

	logger.Info("server stopped")
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
