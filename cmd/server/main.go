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

	"physiocore/clinic-media/internal/api"
	"physiocore/clinic-media/internal/config"
	"physiocore/clinic-media/internal/events"
	"physiocore/clinic-media/internal/queue"
	mongorepo "physiocore/clinic-media/internal/repository/mongo"
	"physiocore/clinic-media/internal/service"
	"physiocore/clinic-media/internal/staging"
	"physiocore/clinic-media/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("Starting Clinic Media Service...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	log.Println("Configuration loaded.")

	// --- Database Connection ---
	dbClient, err := mongorepo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to MongoDB: %v", err)
	}
	defer func() {
		log.Println("Disconnecting MongoDB...")
		if err := mongorepo.DisconnectDB(dbClient); err != nil {
			log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Println("Database connection established.")

	// --- Ensure Indexes ---
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		mongorepo.EnsureMediaIndexes(ctx, appDB.Collection("media_uploads"))
	}()

	// --- Initialize Storage ---
	log.Println("Initializing object storage...")
	objectStorage, err := storage.NewS3Storage(cfg.S3)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize S3 storage: %v", err)
	}
	cdnResolver := storage.NewCDNResolver(cfg.CDN.BaseURL)

	// --- Local Staging ---
	stagingStore, err := staging.NewStore(cfg.Queue.StagingDir)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize staging directory: %v", err)
	}

	// --- Job Pool ---
	retryPolicy := queue.DefaultRetryPolicy()
	if cfg.Queue.MaxAttempts > 0 {
		retryPolicy.MaxAttempts = cfg.Queue.MaxAttempts
	}
	if len(cfg.Queue.Backoff) > 0 {
		retryPolicy.Backoff = cfg.Queue.Backoff
	}
	if cfg.Queue.AttemptTimeout > 0 {
		retryPolicy.AttemptTimeout = cfg.Queue.AttemptTimeout
	}
	pool, err := queue.NewPool(cfg.Queue.Workers, cfg.Queue.BufferSize, retryPolicy)
	if err != nil {
		log.Fatalf("FATAL: Invalid queue configuration: %v", err)
	}
	pool.Start()

	// --- Event Publisher (optional) ---
	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				log.Printf("ERROR: Failed to close Kafka publisher: %v", err)
			}
		}()
		publisher = kafkaPublisher
		log.Printf("Kafka publisher initialized (topic %q).", cfg.Kafka.Topic)
	} else {
		log.Println("No Kafka brokers configured; event publishing disabled.")
	}

	// --- Initialize Repositories ---
	mediaRepo := mongorepo.NewMongoMediaRepository(appDB)

	// --- Initialize Services ---
	log.Println("Initializing services...")
	mediaService := service.NewMediaService(mediaRepo, objectStorage, cdnResolver, publisher)
	asyncUploader := service.NewAsyncUploader(mediaRepo, objectStorage, cdnResolver, stagingStore, pool, publisher)
	presignService := service.NewPresignService(mediaRepo, objectStorage, cdnResolver, cfg.Upload.Directory, cfg.Upload.PresignTTL)

	// --- Initialize Gin Engine ---
	// gin.SetMode(gin.ReleaseMode) // Uncomment for production
	router := gin.Default() // Includes Logger and Recovery middleware
	router.MaxMultipartMemory = 32 << 20

	// --- Setup Routes ---
	log.Println("Setting up API routes...")
	api.SetupRoutes(router, cfg.JWT.Secret, mediaService, asyncUploader, presignService, cfg.Upload)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Minute, // large multipart bodies
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.Server.Address)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Printf("ERROR: Server forced to shutdown: %v", err)
	}

	// Let queued uploads drain before the process exits; staged files for
	// unfinished jobs survive on disk either way.
	if err := pool.Shutdown(ctxShutdown); err != nil {
		log.Printf("ERROR: Job pool did not drain cleanly: %v", err)
	}

	log.Println("Server exiting.")
}
