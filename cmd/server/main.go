package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"

	webAdapter "distro-backoffice/internal/adapters/web"
	"distro-backoffice/internal/ai"
	"distro-backoffice/internal/app"
	"distro-backoffice/internal/core"
	"distro-backoffice/internal/db"
	"distro-backoffice/internal/tracking"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	userService := core.NewUserService(pool)
	productService := core.NewProductService(pool)
	orderService := core.NewOrderService(pool)
	allocationService := core.NewAllocationService(pool)
	locationService := core.NewLocationService(pool)

	var agent ai.AgentService
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Println("Warning: OPENAI_API_KEY is not set; assistant endpoints disabled")
	} else {
		agent = ai.NewAgent(apiKey)
	}

	metrics := tracking.NewMetrics()

	// LISTEN/NOTIFY change feed drives immediate dashboard refreshes; the
	// watcher's 30-second poll covers anything the feed misses.
	listener := tracking.NewListener(pool, tracking.SharingOnly, metrics)
	go listener.Run(ctx)

	depot := tracking.ReferencePoint{
		Latitude:  envFloat("DEPOT_LAT", 9.384489),
		Longitude: envFloat("DEPOT_LNG", 80.408737),
	}
	watcher := tracking.NewWatcher(locationService, listener.Events(), tracking.RealClock{}, metrics, depot, false)
	go watcher.Run(ctx)

	svc := app.NewAppService(pool, userService, productService, orderService,
		allocationService, locationService, watcher, agent)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	handler := webAdapter.NewHandler(svc, allowedOrigins, jwtSecret, metrics.Handler())

	log.Printf("server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Fatalf("%s: invalid value %q", key, raw)
	}
	return v
}
