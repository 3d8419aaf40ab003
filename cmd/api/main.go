//	@title			Imagestore API
//	@version		1.0
//	@description	Resilient multi-tier image persistence: remote object storage with endpoint failover, local filesystem fallback, original-URL pass-through.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/storypress/imagestore/internal/config"
	"github.com/storypress/imagestore/internal/db"
	appMiddleware "github.com/storypress/imagestore/internal/middleware"
	"github.com/storypress/imagestore/internal/storage"
	"github.com/storypress/imagestore/internal/upload"
	"github.com/storypress/imagestore/internal/uploadlog"

	_ "github.com/storypress/imagestore/docs/swagger"
)

func main() {
	cfg := config.Load()

	// The audit log is optional: the pipeline itself is stateless and works
	// without a database.
	var recorder upload.ResultRecorder
	var logRepo *uploadlog.Repository
	if cfg.DatabaseURL != "" {
		dbCtx, dbCancel := context.WithTimeout(context.Background(), 30*time.Second)
		pool, err := db.Open(dbCtx, cfg.DatabaseURL)
		dbCancel()
		if err != nil {
			log.Fatalf("database setup failed: %v", err)
		}
		defer pool.Close()

		logRepo = uploadlog.NewRepository(pool)
		recorder = logRepo
	} else {
		log.Println("no DATABASE_URL set, upload audit log disabled")
	}

	factory := storage.NewMinioFactory(storage.Options{
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Region:    cfg.StorageRegion,
		UseSSL:    cfg.StorageUseSSL,
	})

	if cfg.StorageEnsureBucket {
		ensureBucket(cfg, factory)
	}

	uploader := upload.NewUploader(upload.Config{
		Endpoints:       cfg.StorageEndpoints,
		Bucket:          cfg.StorageBucket,
		PublicBaseURL:   cfg.StoragePublicBase,
		ProbeTimeout:    cfg.UploadProbeTimeout,
		FetchTimeout:    cfg.UploadFetchTimeout,
		OverallTimeout:  cfg.UploadOverallTimeout,
		MaxAttempts:     cfg.UploadMaxAttempts,
		SignedURLExpiry: cfg.SignedURLExpiry,
		AlwaysReprobe:   true,
		LocalDir:        cfg.UploadDir,
	}, factory, recorder)

	uploadHandler := upload.NewHandler(uploader)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI, served at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Local-tier files must resolve at the paths SmartUpload returns.
	r.Handle("/uploads/*", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(cfg.UploadDir))))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/diagnostics/storage", uploadHandler.Diagnostics)

		r.Group(func(r chi.Router) {
			if cfg.JWTSecret != "" {
				r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))
			}
			r.Post("/uploads", uploadHandler.Upload)
			r.Get("/uploads/signed-url", uploadHandler.SignedURL)

			if logRepo != nil {
				r.Get("/uploads/degraded", uploadlog.NewHandler(logRepo).ListDegraded)
			}
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("server listening on :%s (env=%s)", cfg.Port, cfg.AppEnv)
		log.Printf("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	log.Println("server stopped")
}

// ensureBucket bootstraps the bucket on the first endpoint that answers.
// Failure is logged, not fatal: the bucket may already exist, or the
// endpoints may be down right now and recover later.
func ensureBucket(cfg *config.Config, factory storage.ClientFactory) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, endpoint := range cfg.StorageEndpoints {
		client, err := factory(endpoint)
		if err != nil {
			log.Printf("bucket bootstrap: %s: %v", endpoint, err)
			continue
		}
		mc, ok := client.(*storage.MinioClient)
		if !ok {
			return
		}
		if err := mc.EnsureBucket(ctx, cfg.StorageBucket); err != nil {
			log.Printf("bucket bootstrap: %s: %v", endpoint, err)
			continue
		}
		return
	}
	log.Println("bucket bootstrap skipped: no endpoint reachable at startup")
}
