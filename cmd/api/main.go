package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/cloudinary"
	"rollcall/internal/config"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/metrics"
	"rollcall/internal/qrimage"
	"rollcall/internal/qrpayload"
	"rollcall/internal/queue"
	"rollcall/internal/roster"
	"rollcall/internal/scan"
	"rollcall/internal/store"
)

func main() {
	cfg := config.Load()

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
		return fmt.Errorf("db connect failed: %w", err)
	}
	defer func() { _ = db.Close() }()

	redisClient := store.NewRedis(cfg.RedisAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rosterRepo := roster.NewRepository(db.Client)
	rosterCache := roster.NewCache(rosterRepo)
	if err := rosterCache.Refresh(ctx); err != nil {
		log.Printf("warning: initial roster load failed: %v", err)
	}
	go rosterCache.Run(ctx, cfg.RosterRefresh)

	attRepo := attendance.NewRepository(db.Client)
	resolver := attendance.NewResolver()
	codec := qrpayload.NewCodec(cfg.QRBaseURL, cfg.QRAppMarker)

	var q queue.Queue
	var guard scan.Guard
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
		guard = scan.NewMemoryGuard(cfg.ScanCooldown)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:marks")
		guard = scan.NewRedisGuard(redisClient.Client, cfg.ScanCooldown)
	}

	sessionOpts := scan.Options{
		Codec:         codec,
		Resolver:      resolver,
		Roster:        rosterCache,
		Sink:          attRepo,
		Guard:         guard,
		MaxPayloadAge: cfg.ScanMaxPayloadAge,
	}
	sessions := scan.NewManager()
	defer sessions.CloseAll()

	// Default session for one-off manual-entry submissions that never
	// open a camera session.
	_, defaultSession := sessions.Open(sessionOpts)

	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/stations/register", func(c *gin.Context) {
		var req struct {
			StationID string `json:"station_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := attRepo.UpsertStation(c.Request.Context(), req.StationID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.StationID, "station", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		_ = attRepo.SaveRefreshToken(c.Request.Context(), req.StationID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.StationAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	handleScan := func(c *gin.Context, session *scan.Session) {
		var req struct {
			Payload string `json:"payload" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := session.Scan(c.Request.Context(), req.Payload)
		if err != nil {
			status, outcome := scanFailure(err)
			metrics.ScansTotal.WithLabelValues(outcome).Inc()
			c.JSON(status, gin.H{"error": err.Error(), "outcome": outcome})
			return
		}

		metrics.ScansTotal.WithLabelValues("ok").Inc()
		metrics.MarksTotal.WithLabelValues(string(result.Record.Kind), string(result.Record.Status)).Inc()
		if result.Person.FallbackMatch {
			metrics.FallbackMatchesTotal.Inc()
		}
		if err := q.Publish(ctx, queue.Message{Type: "mark", RecordID: result.Record.ID}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}

		c.JSON(http.StatusCreated, result)
	}

	authGroup.POST("/sessions", func(c *gin.Context) {
		id, _ := sessions.Open(sessionOpts)
		c.JSON(http.StatusCreated, gin.H{"session_id": id})
	})

	authGroup.DELETE("/sessions/:id", func(c *gin.Context) {
		if !sessions.Close(c.Param("id")) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	authGroup.POST("/sessions/:id/scans", func(c *gin.Context) {
		session, ok := sessions.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
			return
		}
		handleScan(c, session)
	})

	authGroup.POST("/scans", func(c *gin.Context) {
		handleScan(c, defaultSession)
	})

	authGroup.POST("/attendance", func(c *gin.Context) {
		var req struct {
			Kind        string `json:"kind" binding:"required"`
			PersonID    string `json:"person_id" binding:"required"`
			ContextID   string `json:"context_id"`
			Status      string `json:"status" binding:"required"`
			CustomLabel string `json:"custom_label"`
			Day         string `json:"day"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		day := attendance.DayOf(time.Now())
		if req.Day != "" {
			parsed, err := attendance.ParseDay(req.Day)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			day = parsed
		}

		rec, err := resolver.ManualMark(c.Request.Context(),
			qrpayload.Kind(req.Kind), req.PersonID, req.ContextID,
			attendance.Status(req.Status), req.CustomLabel, day, attRepo)
		if err != nil {
			status, _ := scanFailure(err)
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		metrics.MarksTotal.WithLabelValues(string(rec.Kind), string(rec.Status)).Inc()
		if err := q.Publish(ctx, queue.Message{Type: "mark", RecordID: rec.ID}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}

		c.JSON(http.StatusCreated, rec)
	})

	authGroup.GET("/attendance", func(c *gin.Context) {
		f := attendance.Filter{
			Kind:      qrpayload.Kind(c.Query("kind")),
			ContextID: c.Query("context_id"),
			PersonID:  c.Query("person_id"),
			Limit:     50,
		}
		if v := c.Query("day"); v != "" {
			day, err := attendance.ParseDay(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			f.Day = day
		}
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				f.Limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				f.Offset = parsed
			}
		}
		records, err := attRepo.ListRecords(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	authGroup.GET("/roster/students", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"students": rosterCache.Snapshot().Students})
	})

	authGroup.GET("/roster/staff", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"staff": rosterCache.Snapshot().Staff})
	})

	authGroup.GET("/qr/link", func(c *gin.Context) {
		payload, _, ok := buildPayload(c, codec, rosterCache.Snapshot())
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"payload": payload})
	})

	authGroup.GET("/qr/image", func(c *gin.Context) {
		payload, _, ok := buildPayload(c, codec, rosterCache.Snapshot())
		if !ok {
			return
		}
		size := qrimage.DefaultSize
		if v := c.Query("size"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				size = parsed
			}
		}
		png, err := qrimage.PNG(payload, size)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	authGroup.POST("/qr/publish", func(c *gin.Context) {
		if cdnClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image hosting not configured"})
			return
		}
		payload, personID, ok := buildPayload(c, codec, rosterCache.Snapshot())
		if !ok {
			return
		}
		png, err := qrimage.PNG(payload, qrimage.DefaultSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		result, err := cdnClient.UploadPNG(png, personID+".png")
		if err != nil {
			log.Printf("cloudinary upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"url":       result.SecureURL,
			"public_id": result.PublicID,
			"bytes":     result.Bytes,
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// buildPayload resolves the type/id query pair against the roster and
// encodes the canonical payload URL. Writes the error response itself
// when it returns ok=false.
func buildPayload(c *gin.Context, codec *qrpayload.Codec, snap roster.Snapshot) (payload, personID string, ok bool) {
	kind := qrpayload.Kind(c.Query("type"))
	id := c.Query("id")
	if !kind.Valid() || id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type (student|staff) and id query parameters are required"})
		return "", "", false
	}

	var name, label string
	found := false
	switch kind {
	case qrpayload.KindStudent:
		for _, s := range snap.Students {
			if s.ID == id {
				name, label, found = s.FullName(), s.ClassID, true
				break
			}
		}
	case qrpayload.KindStaff:
		for _, s := range snap.Staff {
			if s.ID == id {
				name, label, found = s.FullName(), s.Department, true
				break
			}
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no %s with id %q in the current roster", kind, id)})
		return "", "", false
	}

	payload, err := codec.Encode(kind, id, name, label)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	return payload, id, true
}

// scanFailure maps the attendance error taxonomy onto HTTP statuses and
// metric outcome labels.
func scanFailure(err error) (int, string) {
	var (
		decodeErr  *qrpayload.DecodeError
		notFound   *attendance.NotFoundError
		ambiguous  *attendance.AmbiguousNameError
		validation *attendance.ValidationError
		sinkErr    *attendance.SinkError
		staleErr   *scan.StaleError
	)
	switch {
	case errors.Is(err, scan.ErrDuplicateScan):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, scan.ErrSessionClosed):
		return http.StatusGone, "session_closed"
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity, "decode_error"
	case errors.As(err, &staleErr):
		return http.StatusGone, "stale"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &ambiguous):
		return http.StatusConflict, "ambiguous"
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation"
	case errors.As(err, &sinkErr):
		return http.StatusBadGateway, "sink_error"
	}
	return http.StatusInternalServerError, "error"
}

// corsMiddleware allows the browser scanning UI to call from any origin.
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

// securityHeaders sets conservative browser defaults.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
