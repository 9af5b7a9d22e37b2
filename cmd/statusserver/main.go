// cmd/statusserver — WebSocket status feed.
//
// Subscribes to the Redis Pub/Sub channels the engine's status publisher
// writes to and fans every deployment-status and advice event out to
// connected dashboard clients over WebSocket.
//
// Config (env vars):
//
//	STATUS_WS_ADDR — listen address        (default: ":8081")
//	REDIS_ADDR     — Redis server address  (default: "localhost:6379")
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"sdexalgo/config"
	"sdexalgo/internal/gateway"
	"sdexalgo/internal/logger"
	"sdexalgo/internal/status"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Dashboard origins are not enumerable here; access control is the
	// reverse proxy's job.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	cfg := config.Load()
	log := logger.Init("statusserver", slog.LevelInfo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
		os.Exit(1)
	}
	pingCancel()

	hub := gateway.NewHub(rdb, status.Channels(), log)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("ws upgrade failed", "err", err)
			return
		}
		hub.HandleWS(conn)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.StatusWSAddr, Handler: mux}
	go func() {
		log.Info("status feed listening", "addr", cfg.StatusWSAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("server error", "err", err)
		}
	}()

	<-sigCh
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}
