package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	deliveryhttp "mirror-backend/internal/delivery/http"
	deliveryws "mirror-backend/internal/delivery/websocket"
	"mirror-backend/internal/domain"
	"mirror-backend/internal/infrastructure/db"
	"mirror-backend/internal/infrastructure/fcm"
	"mirror-backend/internal/infrastructure/mt5"
	"mirror-backend/internal/repository"
	"mirror-backend/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// ---- Flags ----
	var addr string
	var intervalSec float64
	flag.StringVar(&addr, "addr", ":8080", "HTTP listen address")
	flag.Float64Var(&intervalSec, "interval", 1.0, "Poll interval in seconds")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---- MT5 bridge ----
	bridgeURL := getEnv("MT5_BRIDGE_URL", "http://127.0.0.1:8001")
	gateway := mt5.NewClient(bridgeURL)

	// ---- Repositories ----
	repo := repository.NewInMemoryMirrorRepository()
	tokenRepo := repository.NewTokenRepository()

	// Durable pair history is optional: no DATABASE_URL, no Postgres.
	var historian domain.MirrorHistorian
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.NewPool(ctx, dbURL, db.PoolConfigFromEnv())
		if err != nil {
			log.Fatalf("postgres connect: %v", err)
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatalf("postgres migrate: %v", err)
		}
		historian = repository.NewPostgresMirrorHistorian(pool)
		log.Println("Pair history persistence enabled")
	} else {
		log.Println("DATABASE_URL not set, pair history kept in memory only")
	}

	// ---- FCM ----
	fcmClient, err := fcm.NewClient()
	if err != nil {
		log.Printf("FCM init failed, notifications disabled: %v", err)
		fcmClient = nil
	}

	// ---- Mirror service ----
	service := usecase.NewMirrorService(gateway, repo, historian, fcmClient, tokenRepo)
	service.UpdateSettings(settingsFromEnv())

	go service.Run(ctx, time.Duration(intervalSec*float64(time.Second)))

	// ---- Delivery ----
	mirrorHandler := deliveryhttp.NewMirrorHandler(service)
	tokenHandler := deliveryhttp.NewTokenHandler(tokenRepo)
	wsHandler := deliveryws.NewHandler(repo)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/mirror/settings", mirrorHandler.HandleSettings)
	mux.HandleFunc("/api/mirror/active", mirrorHandler.GetActivePairs)
	mux.HandleFunc("/api/mirror/history", mirrorHandler.GetHistory)
	mux.HandleFunc("/api/tokens/register", tokenHandler.HandleRegisterToken)
	mux.HandleFunc("/api/tokens/unregister", tokenHandler.HandleUnregisterToken)
	mux.HandleFunc("/ws", wsHandler.Handle)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("Server executing on %s (bridge %s)", addr, bridgeURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}

// settingsFromEnv builds the loop settings from MIRROR_* overrides on top of
// the defaults.
func settingsFromEnv() *domain.MirrorSettings {
	settings := domain.DefaultMirrorSettings()

	if v := getEnv("MIRROR_ENABLED", ""); v != "" {
		settings.Enabled = v == "true" || v == "1" || v == "yes" || v == "on"
	}
	if v := getEnv("MIRROR_MAGIC", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n != 0 {
			settings.Magic = n
		}
	}
	if v := getEnv("MIRROR_DEVIATION_POINTS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			settings.DeviationPoints = n
		}
	}
	if v := getEnv("MIRROR_VOLUME_MULTIPLIER", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			settings.VolumeMultiplier = f
		}
	}
	if v := getEnv("MIRROR_COMMENT_PREFIX", ""); v != "" {
		settings.CommentPrefix = v
	}

	return settings
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
