package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/veriface/internal/api/handlers"
	"github.com/your-org/veriface/internal/api/ws"
	"github.com/your-org/veriface/internal/auth"
	"github.com/your-org/veriface/internal/queue"
	"github.com/your-org/veriface/internal/storage"
	"github.com/your-org/veriface/internal/verify"
)

type RouterConfig struct {
	APIKey        string
	Orchestrator  *verify.Orchestrator
	Records       *verify.RecordTracker
	Hub           *ws.Hub
	DB            *storage.PostgresStore   // optional
	Snapshots     *storage.SnapshotArchive // optional
	Producer      *queue.Producer          // optional
	RatePerMinute int
	MaxConcurrent int
	Timeout       time.Duration
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth, no limits)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Snapshots, cfg.Producer)
	r.GET("/health", systemH.Health)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", cfg.Hub.HandleWS)

	// Biometric endpoints: rate-limited, concurrency-capped, keyed.
	verificationH := handlers.NewVerificationHandler(cfg.Orchestrator, cfg.Records, cfg.Hub, cfg.Producer, cfg.Timeout)

	biometric := r.Group("/")
	biometric.Use(RateLimitMiddleware(cfg.RatePerMinute))
	biometric.Use(ConcurrencyLimitMiddleware(cfg.MaxConcurrent))
	biometric.Use(auth.APIKeyMiddleware(cfg.APIKey))

	biometric.POST("/verify", verificationH.Verify)
	biometric.POST("/register", verificationH.Register)
	biometric.GET("/status/:id", verificationH.Status)

	enrollmentH := handlers.NewEnrollmentHandler(cfg.Snapshots)
	biometric.GET("/enrollments/:user_id/:id/snapshot", enrollmentH.Snapshot)

	return r
}
