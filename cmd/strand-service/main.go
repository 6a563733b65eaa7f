package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/strandapp/strand-service/internal/cache"
	"github.com/strandapp/strand-service/internal/config"
	"github.com/strandapp/strand-service/internal/events"
	mediaHandlers "github.com/strandapp/strand-service/internal/http/handlers/media"
	"github.com/strandapp/strand-service/internal/http/handlers/posts"
	wsHandler "github.com/strandapp/strand-service/internal/http/handlers/websocket"
	"github.com/strandapp/strand-service/internal/http/middleware"
	"github.com/strandapp/strand-service/internal/media"
	"github.com/strandapp/strand-service/internal/notify"
	"github.com/strandapp/strand-service/internal/post"
	"github.com/strandapp/strand-service/internal/ratelimit"
	"github.com/strandapp/strand-service/internal/services/objectstore"
	"github.com/strandapp/strand-service/internal/storage/postgres"
	"github.com/strandapp/strand-service/internal/submit"
	"github.com/strandapp/strand-service/internal/transport"
	"github.com/strandapp/strand-service/internal/upload"
	ws "github.com/strandapp/strand-service/internal/websocket"
)

func main() {
	// load config
	cfg := config.MustLoad()

	// database setup
	db, err := postgres.NewPostgres(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	slog.Info("Connected to Postgres database")

	// object storage
	store, err := objectstore.New(cfg)
	if err != nil {
		log.Fatal("Failed to initialize object storage:", err)
	}
	slog.Info("Connected to object storage", slog.String("bucket", cfg.MinIO.BucketName))

	// redis, shared by the membership cache and the rate limiter
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// realtime hub
	hub := ws.NewHub()
	go hub.Run()

	// submission pipeline
	classifier := media.NewClassifier(cfg.Media)
	compressor := media.NewCompressor(cfg.Media.ImageSoftLimitBytes)
	router := upload.NewRouter(cfg.Media.ProxyThresholdBytes)

	httpClient := transport.NewClient()
	transferOpts := transport.TransferOptions(cfg.Upload)

	proxied := upload.NewProxiedUploader(store, db, transferOpts)
	direct := upload.NewDirectUploader(store, db, httpClient, transferOpts)

	memberships := cache.NewMembershipCache(db, redisClient)
	guard := post.NewGuard(memberships)

	notifier := notify.NewNotifier(db, notify.NewHTTPSender(httpClient, cfg.Push))
	publisher := events.NewEventPublisher(hub, db)

	assembler := post.NewAssembler(db, guard, notifier, publisher)
	submitService := submit.NewService(classifier, compressor, router,
		proxied, direct, guard, assembler, cfg.Upload.MaxConcurrent)

	// middleware
	auth := middleware.AuthMiddleware(cfg.JWTSecret)
	rateLimits := middleware.NewRateLimitConfig(redisClient)

	protected := func(action string, h http.HandlerFunc) http.Handler {
		return auth(rateLimits.RateLimitMiddleware(action)(h))
	}

	// setup server
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.Handle("POST /posts", protected(ratelimit.ActionSubmitPost,
		posts.SubmitPost(submitService, cfg.HTTPServer.MaxBodyBytes)))
	mux.Handle("GET /posts/{id}", auth(posts.GetPost(db)))
	mux.Handle("DELETE /posts/{id}", auth(posts.DeletePost(db, publisher)))

	mux.Handle("POST /media/upload-url", protected(ratelimit.ActionMediaWrite,
		mediaHandlers.GenerateUploadURL(store, classifier)))
	mux.Handle("POST /media/confirm", protected(ratelimit.ActionMediaWrite,
		mediaHandlers.ConfirmUpload(store, classifier, db)))

	mux.HandleFunc("GET /ws", wsHandler.WebSocketHandler(hub, cfg.JWTSecret))

	server := http.Server{
		Addr:    cfg.HTTPServer.Address,
		Handler: mux,
	}

	log.Println("server started on", cfg.HTTPServer.Address)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %s", err)
		}
	}()

	<-done

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("failed to gracefully shutdown server", slog.String("error", err.Error()))
		return
	}

	slog.Info("Server stopped")
}
