package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/veriface/internal/api"
	"github.com/your-org/veriface/internal/api/ws"
	"github.com/your-org/veriface/internal/config"
	"github.com/your-org/veriface/internal/observability"
	"github.com/your-org/veriface/internal/queue"
	"github.com/your-org/veriface/internal/storage"
	"github.com/your-org/veriface/internal/verify"
	"github.com/your-org/veriface/internal/vision"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting verification service",
		"port", cfg.Server.Port,
		"environment", cfg.Server.Environment,
		"storage_backend", cfg.Storage.Backend,
		"frame_source", cfg.Vision.FrameSource)

	// Vector store
	var store storage.VectorStore
	var db *storage.PostgresStore

	switch cfg.Storage.Backend {
	case "postgres":
		db, err = storage.NewPostgresStore(cfg.Database)
		if err != nil {
			slog.Error("connect to postgres", "error", err)
			os.Exit(1)
		}
		store = db
	case "memory":
		store = storage.NewMemoryStore()
	default:
		fileStore, err := storage.NewEncryptedFileStore(cfg.Storage.Path, cfg.Storage.EncryptionSecret)
		if err != nil {
			slog.Error("open embedding store", "error", err)
			os.Exit(1)
		}
		store = fileStore
	}
	defer store.Close()

	// Snapshot archive (optional)
	var snapshots *storage.SnapshotArchive
	if cfg.Storage.Snapshots && cfg.MinIO.Endpoint != "" {
		snapshots, err = storage.NewSnapshotArchive(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := snapshots.EnsureBucket(context.Background()); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
	}

	// Result stream (optional)
	var producer *queue.Producer
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStream(context.Background()); err != nil {
			slog.Warn("ensure nats stream", "error", err)
		}
	}

	// ONNX Runtime: face detection + embedding models
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("onnx runtime init", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	backend, err := vision.NewONNXBackend(cfg.Vision.ModelsDir, float32(cfg.Vision.DetectionThreshold))
	if err != nil {
		slog.Error("load face models", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	if db != nil {
		if err := db.EnsureSchema(context.Background(), backend.Dim()); err != nil {
			slog.Error("ensure postgres schema", "error", err)
			os.Exit(1)
		}
	}

	// Frame source
	var frames vision.FrameSource
	if cfg.Vision.FrameSource == "synthetic" {
		slog.Warn("synthetic frame source enabled — uploads are NOT decoded as real video")
		frames = vision.NewSyntheticSource(0)
	} else {
		frames = vision.NewFFmpegSource(cfg.Vision.FrameFPS, cfg.Vision.FrameWidth, cfg.Vision.MaxFrames)
	}

	orch := verify.NewOrchestrator(verify.Config{
		Frames:              frames,
		Liveness:            vision.NewLivenessDetector(cfg.Vision.LivenessThreshold),
		Generator:           vision.NewGenerator(backend),
		Store:               store,
		Snapshots:           snapshots,
		SimilarityThreshold: cfg.Vision.SimilarityThreshold,
		FrameTimeout:        cfg.Limits.FrameTimeout,
		MergeTimeout:        cfg.Limits.MergeTimeout,
	})

	records := verify.NewRecordTracker(24*time.Hour, 10000)

	hub := ws.NewHub()
	go hub.Run()

	router := api.NewRouter(api.RouterConfig{
		APIKey:        cfg.Server.APIKey,
		Orchestrator:  orch,
		Records:       records,
		Hub:           hub,
		DB:            db,
		Snapshots:     snapshots,
		Producer:      producer,
		RatePerMinute: cfg.Limits.RatePerMinute,
		MaxConcurrent: cfg.Limits.MaxConcurrentRequests,
		Timeout:       cfg.Limits.ProcessingTimeout,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
