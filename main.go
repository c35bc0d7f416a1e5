package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marine-scan-pipeline/aggregator"
	"marine-scan-pipeline/analyzer"
	"marine-scan-pipeline/config"
	"marine-scan-pipeline/database"
	"marine-scan-pipeline/handlers"
	"marine-scan-pipeline/imagery"
	"marine-scan-pipeline/metrics"
	"marine-scan-pipeline/openai"
	"marine-scan-pipeline/rabbitmq"
	"marine-scan-pipeline/scanner"
	"marine-scan-pipeline/scheduler"
	"marine-scan-pipeline/storage"
	"marine-scan-pipeline/stubimagery"
	"marine-scan-pipeline/stubvision"
	"marine-scan-pipeline/vision"
)

func main() {
	cfg := config.Load()

	if cfg.VisionProvider == "openai" && cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY is required with VISION_PROVIDER=openai")
	}
	if cfg.ImageryProvider == "sentinel" && (cfg.ImageryClientID == "" || cfg.ImageryClientSecret == "") {
		log.Fatal("IMAGERY_CLIENT_ID and IMAGERY_CLIENT_SECRET are required with IMAGERY_PROVIDER=sentinel")
	}

	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := database.InitSchema(db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	store := storage.NewMySQLStore(db.GetDB())

	var provider scanner.ImageryProvider
	if cfg.ImageryProvider == "stub" {
		log.Warn("Using stub imagery provider")
		provider = stubimagery.NewClient()
	} else {
		provider = imagery.NewSentinelClient(cfg.ImageryTokenURL, cfg.ImageryProcessURL,
			cfg.ImageryClientID, cfg.ImageryClientSecret, cfg.ExternalTimeout)
	}

	var visionClient vision.Analyzer
	if cfg.VisionProvider == "stub" {
		log.Warn("Using stub vision analyzer")
		visionClient = stubvision.NewClient()
	} else {
		visionClient = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.ExternalTimeout)
	}

	// Detection event publishing is best effort: run without it when
	// AMQP is unconfigured or unreachable.
	var publisher analyzer.Publisher
	if cfg.AMQPURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPDetectionRoute)
		if err != nil {
			log.Warnf("RabbitMQ unavailable, detection events disabled: %v", err)
		} else {
			defer p.Close()
			publisher = p
		}
	}

	metrics.Register()

	recencyWindow := time.Duration(cfg.ScanRecencyHours) * time.Hour
	orchestrator := scanner.New(db, provider, store, scanner.Options{
		RecencyWindow:   recencyWindow,
		AreaPacing:      cfg.AreaPacing,
		ExternalTimeout: cfg.ExternalTimeout,
	})
	runner := analyzer.New(db, store, visionClient, publisher, analyzer.Options{
		DefaultBatch:    cfg.AnalysisBatch,
		ImagePacing:     cfg.ImagePacing,
		ExternalTimeout: cfg.ExternalTimeout,
	})
	agg := aggregator.New(db, aggregator.DefaultWindow)

	handler := handlers.NewHandler(db, orchestrator, runner, agg, recencyWindow)

	router := gin.Default()
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.POST("/areas", handler.CreateArea)
	router.GET("/areas", handler.GetAreas)
	router.GET("/areas/:id/status", handler.GetAreaStatus)
	router.GET("/areas/:id/detections", handler.GetAreaDetections)
	router.POST("/trigger-scan", handler.TriggerScan)
	router.POST("/analyze", handler.TriggerAnalysis)
	router.GET("/detections", handler.GetDetections)
	router.GET("/aggregated", handler.GetAggregated)
	router.GET("/hotspots", handler.GetHotspots)
	router.GET("/health", handler.HealthCheck)
	router.GET("/version", handler.Version)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	sched := scheduler.New(orchestrator, runner, cfg.ScanInterval, cfg.AnalysisInterval)
	sched.Start(context.Background())

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}
