package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mealcard/internal/auth"
	"mealcard/internal/config"
	"mealcard/internal/httpmiddleware"
	"mealcard/internal/mailbox"
	"mealcard/internal/metrics"
	"mealcard/internal/queue"
	"mealcard/internal/reader"
	"mealcard/internal/report"
	"mealcard/internal/store"
	"mealcard/internal/verify"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "mealcard:attempts")
	}

	repo := verify.NewRepository(db.Client)

	var ledger verify.Ledger
	var denials verify.DenialList
	var src report.Source
	if cfg.LedgerBackend == "memory" {
		mem := verify.NewMemoryLedger()
		ledger, src = mem, mem
		denials = verify.NewMemoryDenialList()
		log.Println("using in-memory ledger (dev mode)")
	} else {
		ledger, src, denials = repo, repo, repo
	}

	engine := verify.NewEngine(ledger, denials, queue.NewAuditPublisher(q),
		cfg.ReplayWindow, cfg.VerifyTimeout, cfg.Location())
	reporter := report.New(src)

	// Hardware reader ingest: one producer goroutine feeding the
	// single-slot mailbox.
	box := mailbox.New(cfg.ReaderPrefix)
	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()
	rd := reader.New(cfg.ReaderAddr, box)
	go rd.Run(ingestCtx)

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	// CORS middleware
	r.Use(corsMiddleware())

	// Security headers
	r.Use(securityHeaders())

	// Rate limiting
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status": "ok",
			"redis":  redisHealthy,
			"db":     dbHealthy,
			"reader": rd.Connected(),
		})
	})

	r.POST("/v1/terminals/register", func(c *gin.Context) {
		var req struct {
			TerminalID string `json:"terminal_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := repo.UpsertTerminal(c.Request.Context(), req.TerminalID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.TerminalID, "terminal", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		_ = repo.SaveRefreshToken(c.Request.Context(), req.TerminalID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.TerminalAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	// Polling read for the terminal UI: returns the latest scanned
	// token and clears the slot, so each physical scan is consumed
	// exactly once.
	authGroup.GET("/scan", func(c *gin.Context) {
		token, ok := box.TakeLatest()
		if ok {
			metrics.ScansConsumed.Inc()
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "present": ok})
	})

	authGroup.POST("/verifications", func(c *gin.Context) {
		var req struct {
			Payload  string `json:"payload" binding:"required"`
			MealType string `json:"meal_type" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		meal, err := verify.ParseMealType(req.MealType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		token, serviceDate, err := verify.DecodePayload(req.Payload)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if serviceDate != engine.Today() {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "payload service date is not today"})
			return
		}

		out, err := engine.Verify(c.Request.Context(), verify.Request{
			Token:       token,
			Meal:        meal,
			RequestedAt: time.Now(),
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		metrics.Verifications.WithLabelValues(out.Reason).Inc()

		status := http.StatusOK
		if out.Reason == verify.ReasonUnavailable {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"granted": out.Granted,
			"reason":  out.Reason,
			"message": out.Message,
		})
	})

	authGroup.GET("/reports/meals", func(c *gin.Context) {
		from := c.Query("from")
		to := c.Query("to")
		if from == "" || to == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from and to dates required"})
			return
		}
		counts, err := reporter.CountsByMeal(c.Request.Context(), from, to)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "counts": counts})
	})

	authGroup.GET("/reports/students/:token", func(c *gin.Context) {
		year, err := strconv.Atoi(c.Query("year"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year required"})
			return
		}
		month, err := strconv.Atoi(c.Query("month"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "month required"})
			return
		}
		grid, err := reporter.StudentGrid(c.Request.Context(), c.Param("token"), year, time.Month(month))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": c.Param("token"), "year": year, "month": month, "grid": grid})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	stopIngest()

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
