package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"wahub/internal/api"
	"wahub/internal/auth"
	"wahub/internal/cache"
	"wahub/internal/config"
	"wahub/internal/manager"
	"wahub/internal/media"
	"wahub/internal/messaging"
	"wahub/internal/metrics"
	"wahub/internal/model"
	"wahub/internal/storage"
	"wahub/internal/tenant"
	"wahub/internal/twilio"
	"wahub/internal/webhook"
	"wahub/internal/whatsapp"
)

// @title WhatsApp Ingest Hub API
// @version 1.0
// @description Multi-tenant WhatsApp webhook ingestion with idempotent persistence and delivery-status tracking
// @host localhost:8080
// @BasePath /
// @schemes http

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	// Init Metrics
	metrics.Init()

	// Load Configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded")

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Failed to load timezone: %v", err)
	}

	// Setup JWT Secret
	auth.SetSecret(cfg.Auth.JWTSecret)

	// Init PostgreSQL
	db, err := storage.NewStorage(cfg.Database.URL, loc)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.DB.Close()
	if err := db.EnsureSchema(); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	log.Println("PostgreSQL connected")

	// Init RabbitMQ
	rabbitClient, err := messaging.NewRabbitClient(cfg.RabbitMQ.URL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rabbitClient.Close()
	log.Println("RabbitMQ connected")

	// Tenant resolution with its two injected caches
	defaults := model.Credentials{
		AccessToken:   cfg.WhatsApp.AccessToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		BusinessID:    cfg.WhatsApp.BusinessID,
		BaseURL:       cfg.WhatsApp.GraphBaseURL,
	}
	phoneCache := cache.New(30*time.Minute, 10000)
	credsCache := cache.New(30*time.Minute, 1000)
	resolver := tenant.NewResolver(db, defaults, phoneCache, credsCache)

	// Media pipeline over the Graph client and object storage
	graph := whatsapp.NewClient()
	bucket := media.NewBucket(cfg.Storage.BaseURL, cfg.Storage.Bucket, cfg.Storage.ServiceKey)
	pipeline := media.NewPipeline(bucket, graph)

	// Ingest pipeline: both webhook entry points feed the orchestrator
	publisher := webhook.NewEventPublisher(rabbitClient)
	orch := webhook.NewOrchestrator(db, resolver, pipeline, publisher)
	adapter := twilio.NewAdapter(cfg.Twilio.AuthToken, cfg.Twilio.PublicBaseURL)
	handler := webhook.NewHandler(orch, adapter, cfg.WhatsApp.VerifyToken)
	sender := webhook.NewSender(db, resolver, graph, pipeline)

	// Collaborator dispatch: envelopes are handed off to downstream
	// consumers; this process only logs the hand-off.
	dispatch := func(env messaging.Envelope) error {
		log.Printf("[Dispatch] tenant %s: %s (%s)", env.TenantID, env.Kind, env.MessageID)
		return nil
	}
	rabbitConn := rabbitClient.GetConnection()
	tm := manager.NewTenantManager(rabbitConn, rabbitClient, db, dispatch)

	// Start background loop for updating queue depth metrics
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for _, tenantID := range tm.ListTenantIDs() {
					rabbitClient.UpdateQueueDepth(tenantID)
				}
			}
		}
	}()

	// Recover Existing Tenants
	companies, err := db.ListCompanies()
	if err != nil {
		log.Fatalf("Failed to load companies: %v", err)
	}
	for _, c := range companies {
		if err := tm.EnsureTenant(c.ID, c.Concurrency); err != nil {
			log.Printf("⚠️ Failed to recover tenant %s: %v", c.ID, err)
			continue
		}
		log.Printf("🔁 Recovered tenant %s", c.ID)
	}

	// Init API
	apiHandler := api.NewAPI(tm, db, resolver, handler, sender, cfg)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: apiHandler.Router(),
	}

	// Graceful Shutdown Setup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("🚀 Starting API server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done() // Wait for interrupt signal
	log.Println("Shutdown initiated...")

	// Shutdown sequence
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Stop HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	// Stop all tenant dispatchers
	tm.ShutdownAll()

	log.Println("Graceful shutdown complete")
}
