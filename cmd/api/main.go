package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agencydesk/backend/internal/assistant"
	"github.com/agencydesk/backend/internal/config"
	"github.com/agencydesk/backend/internal/database"
	"github.com/agencydesk/backend/internal/events"
	"github.com/agencydesk/backend/internal/handlers"
	"github.com/agencydesk/backend/internal/infra"
	"github.com/agencydesk/backend/internal/llm"
	"github.com/agencydesk/backend/internal/middleware"
	"github.com/agencydesk/backend/internal/multitenancy"
)

func main() {
	// Local development: load .env if present (no-op in production)
	_ = godotenv.Load()

	// Get port from environment (Cloud Run requirement)
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080" // Default for local development
	}

	// Load config file, fall back to defaults when absent
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("Failed to load config %s: %v", cfgPath, err)
		}
		cfg = config.Default()
	}

	// Initialize Supabase client
	supabaseClient, err := database.NewSupabaseClient()
	if err != nil {
		log.Fatalf("Failed to initialize Supabase client: %v", err)
	}

	// Initialize Tenant Manager
	tenantManager := multitenancy.NewTenantManager(supabaseClient)

	// Initialize model client
	modelClient, err := llm.NewClient(cfg.Assistant.ModelEndpoint, cfg.Assistant.Model, os.Getenv("OPENAI_API_KEY"))
	if err != nil {
		log.Fatalf("Failed to initialize model client: %v", err)
	}

	// Tool registry is validated at startup; a malformed catalog is fatal
	registry, err := assistant.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to build tool registry: %v", err)
	}

	metrics := assistant.NewMetrics()

	// Event bus: Redis-backed when configured, local fallback otherwise
	var bus events.EventBus
	if cfg.Redis.Addr != "" {
		redisClient, err := infra.NewGoRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis unavailable (%v), using local event bus", err)
			bus = events.NewLocalEventBus()
		} else {
			bus = events.NewRedisEventBus(redisClient, "")
			log.Printf("📡 Redis event bus connected: %s", cfg.Redis.Addr)
		}
	} else {
		bus = events.NewLocalEventBus()
	}

	assistantHandler := handlers.NewAssistantHandler(
		supabaseClient,
		modelClient,
		registry,
		metrics,
		bus,
		cfg.Assistant.HistoryLimit,
	)

	// Create router
	router := mux.NewRouter()

	// Health check endpoint (required for Cloud Run)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		// Check Supabase connectivity
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		_, err := supabaseClient.GetTenant(ctx, "default-org")
		supabaseStatus := "connected"
		if err != nil {
			supabaseStatus = "error"
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":   "healthy",
			"service":  "agencydesk-api",
			"supabase": supabaseStatus,
		})
	}).Methods("GET")

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Tenant Middleware
	api.Use(middleware.TenantMiddleware(tenantManager))

	// Assistant endpoints. Command runs burn model tokens, so they carry a
	// per-tenant rate limit on top of the tenant middleware.
	commandLimiter := middleware.NewRateLimiter(10)
	api.Handle("/assistant/command",
		commandLimiter.Middleware(http.HandlerFunc(assistantHandler.HandleCommand))).Methods("POST")
	api.HandleFunc("/assistant/command/apply", assistantHandler.HandleApply).Methods("POST")
	api.HandleFunc("/assistant/command/rollback", assistantHandler.HandleRollback).Methods("POST")
	api.HandleFunc("/assistant/command/history", assistantHandler.HandleHistory).Methods("GET")

	// Website endpoints
	api.HandleFunc("/websites", listWebsites(supabaseClient)).Methods("GET")
	api.HandleFunc("/websites/{id}", getWebsite(supabaseClient)).Methods("GET")

	// CORS middleware for Cloud Run
	router.Use(corsMiddleware)

	// Logging middleware
	router.Use(loggingMiddleware)

	// Create server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // agent runs can take a while
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown (Cloud Run sends SIGTERM)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	log.Printf("🚀 AgencyDesk API starting on port %s", port)
	log.Printf("📊 Health check: http://localhost:%s/health", port)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}

	log.Println("Server stopped")
}

// Handler functions
func listWebsites(client *database.SupabaseClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := multitenancy.GetTenantID(r.Context())
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		sites, err := client.ListWebsites(r.Context(), tenantID, 100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sites)
	}
}

func getWebsite(client *database.SupabaseClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		websiteID := vars["id"]

		tenantID, err := multitenancy.GetTenantID(r.Context())
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		site, err := client.GetWebsite(r.Context(), tenantID, websiteID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if site == nil {
			http.Error(w, "Website not found", http.StatusNotFound)
			return
		}

		// Never expose stored credentials
		site.WPAppPass = ""

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(site)
	}
}

// Middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Tenant-ID, X-Operator-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		// Log in Cloud Run compatible format (JSON)
		log.Printf(`{"method":"%s","path":"%s","duration_ms":%d}`,
			r.Method,
			r.URL.Path,
			time.Since(start).Milliseconds(),
		)
	})
}
