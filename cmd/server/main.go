package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classboard/internal/api"
	"classboard/internal/auth"
	"classboard/internal/config"
	"classboard/internal/data"
	"classboard/internal/db"
	"classboard/internal/hub"
	"classboard/internal/middleware"
	"classboard/internal/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// Initialize database
	dbClient, err := db.New(ctx, cfg.MongoURI, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	defer func() {
		_ = dbClient.Close(ctx)
	}()

	if err := dbClient.EnsureIndexes(ctx); err != nil {
		log.Fatalf("failed to create indexes: %v", err)
	}

	// Create stores
	usersStore := data.NewUsersStore(dbClient.UsersCollection())
	msgsStore := data.NewMessagesStore(dbClient.MessagesCollection(), dbClient.CountersCollection())
	notifsStore := data.NewNotificationsStore(dbClient.NotificationsCollection())

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL())

	// Limiter for the register/login endpoints (small burst to allow a
	// couple of quick retries).
	limiterStore := middleware.NewLimiterStore(cfg.RateLimitRPM, 3, 1*time.Minute)
	defer limiterStore.Stop()

	// Connection registry; lifecycle tied to process shutdown below.
	connHub := hub.New()

	origins := cfg.Origins()
	wsHandler := realtime.NewHandler(connHub, msgsStore, notifsStore, usersStore, jwtMgr, origins)
	restServer := api.NewServer(usersStore, msgsStore, notifsStore, jwtMgr, connHub, limiterStore, origins)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      restServer.Router(wsHandler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
	}

	go func() {
		log.Printf("server listening on %s (websocket at /chat)", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server exit: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	connHub.Close()
}
