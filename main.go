package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"metamapa/app"
	"metamapa/apperr"
	"metamapa/config"
	"metamapa/models"
	"metamapa/services"
)

var ingestRunsCounter *prometheus.CounterVec

func init() {
	ingestRunsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metamapa_ingest_runs_total",
			Help: "Total number of ingestion runs by trigger and result.",
		},
		[]string{"trigger", "result"},
	)
	prometheus.MustRegister(ingestRunsCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	a, err := app.Build(context.Background(), cfg, logging)
	if err != nil {
		logging.Fatal("Failed to build application", zap.Error(err))
	}

	router := newRouter(a)

	// Setup Cron
	cronScheduler := cron.New()
	if _, err := cronScheduler.AddFunc(cfg.IngestCron, func() {
		logging.Info("Running scheduled ingestion job...")
		if err := runScheduledIngestion(context.Background(), a); err != nil {
			logging.Error("Scheduled refresh had failures", zap.Error(err))
		}
	}); err != nil {
		logging.Fatal("Invalid INGEST_CRON", zap.Error(err))
	}
	if _, err := cronScheduler.AddFunc(cfg.ConsensusCron, func() {
		logging.Info("Running scheduled consensus job...")
		if err := a.Aggregator.RefreshAll(context.Background()); err != nil {
			logging.Error("Consensus job had failures", zap.Error(err))
		}
	}); err != nil {
		logging.Fatal("Invalid CONSENSUS_CRON", zap.Error(err))
	}
	cronScheduler.Start()
	defer cronScheduler.Stop()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func newRouter(a *app.App) *gin.Engine {
	router := gin.Default()
	router.Use(apiKeyAuthMiddleware(a.Config))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	setupIngestRoutes(router, a)
	setupCollectionRoutes(router, a)
	setupFactRoutes(router, a)
	setupExportRoutes(router, a)
	return router
}

func runIngestion(ctx context.Context, a *app.App, trigger string) services.IngestResult {
	result, err := a.Orchestrator.IngestFromSources(ctx)
	if err != nil {
		ingestRunsCounter.WithLabelValues(trigger, "error").Inc()
		a.Logger.Error("Ingestion failed", zap.String("trigger", trigger), zap.String("run_id", result.RunID), zap.Error(err))
		return services.IngestResult{RunID: result.RunID}
	}
	ingestRunsCounter.WithLabelValues(trigger, "ok").Inc()
	return result
}

// runScheduledIngestion holt alle Quellen ab und aktualisiert danach die übrigen Colecciones.
// Die Ziel-Colección wird nur dann erneut berechnet, wenn die Ingesta sie nicht schon aktualisiert hat.
func runScheduledIngestion(ctx context.Context, a *app.App) error {
	result := runIngestion(ctx, a, "cron")
	var skip []uint
	if result.TargetRefreshed {
		skip = append(skip, a.Orchestrator.TargetCollection())
	}
	return a.Aggregator.RefreshAll(ctx, skip...)
}

func setupIngestRoutes(router *gin.Engine, a *app.App) {
	rg := router.Group("/ingest")
	rg.POST("/sources", func(c *gin.Context) {
		go runIngestion(context.Background(), a, "http")
		c.JSON(http.StatusAccepted, gin.H{"message": "Ingestion from all sources triggered."})
	})
	rg.POST("/batch", func(c *gin.Context) {
		var raws []models.RawFact
		if err := c.ShouldBindJSON(&raws); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		result, err := a.Orchestrator.IngestBatch(c.Request.Context(), raws)
		if err != nil {
			ingestRunsCounter.WithLabelValues("batch", "error").Inc()
			apperr.Respond(c, a.Logger, err)
			return
		}
		ingestRunsCounter.WithLabelValues("batch", "ok").Inc()
		c.JSON(http.StatusOK, result)
	})
}

func setupCollectionRoutes(router *gin.Engine, a *app.App) {
	rg := router.Group("/collections")
	rg.POST("", func(c *gin.Context) {
		var req services.CreateCollectionInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		col, err := a.Curation.Create(c.Request.Context(), req)
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusCreated, col)
	})
	rg.DELETE("/:id", func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		if err := a.Curation.Hide(c.Request.Context(), id); err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	rg.POST("/:id/refresh", func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		if err := a.Aggregator.Refresh(c.Request.Context(), id); err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"collection_id": id, "state": a.Aggregator.State(id)})
	})
	router.POST("/refresh", func(c *gin.Context) {
		go func() {
			if err := a.Aggregator.RefreshAll(context.Background()); err != nil {
				a.Logger.Error("Async refresh had failures", zap.Error(err))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Refresh of all collections triggered."})
	})
	rg.GET("/:id/facts", func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		mode, err := services.ParseNavigationMode(c.Query("mode"))
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		facts, err := a.Aggregator.Facts(c.Request.Context(), id, mode)
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, facts)
	})
}

func setupFactRoutes(router *gin.Engine, a *app.App) {
	listFacts := func(c *gin.Context) {
		facts, err := a.Facts.FindAll(c.Request.Context())
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, facts)
	}
	// Öffentlicher Endpunkt für föderierte Instanzen
	router.GET("/api/public/hechos", listFacts)

	rg := router.Group("/facts")
	rg.GET("", listFacts)
	rg.GET("/:id", func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		f, err := a.Facts.FindByID(c.Request.Context(), id)
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, f)
	})
	rg.POST("/:id/review", func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		var req struct {
			State      models.ReviewState `json:"state"`
			Suggestion string             `json:"suggestion"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		f, err := a.Moderation.Review(c.Request.Context(), id, req.State, req.Suggestion)
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, f)
	})
	rg.DELETE("/:id", func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		if err := a.Moderation.Delete(c.Request.Context(), id); err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func setupExportRoutes(router *gin.Engine, a *app.App) {
	router.POST("/export", func(c *gin.Context) {
		if a.Export == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export requires S3 configuration"})
			return
		}
		result, err := a.Export.Export(c.Request.Context())
		if err != nil {
			apperr.Respond(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.NewValidation("id", "must be a positive integer")
	}
	return uint(id), nil
}
