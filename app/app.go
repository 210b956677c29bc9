package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"metamapa/apperr"
	"metamapa/config"
	"metamapa/models"
	"metamapa/services"
	"metamapa/sources"
	"metamapa/sources/dynamic"
	"metamapa/sources/remote"
	"metamapa/sources/static"
	"metamapa/storage"
)

// App bündelt alle verdrahteten Komponenten; genutzt vom HTTP-Dienst und von metamapactl.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	DB           *gorm.DB
	Facts        storage.FactStore
	Collections  storage.CollectionStore
	Objects      *storage.ObjectStore
	Registry     *sources.Registry
	Normalizer   *services.Normalizer
	Dedup        *services.Deduplicator
	Aggregator   *services.Aggregator
	Orchestrator *services.Orchestrator
	Curation     *services.CollectionService
	Moderation   *services.ModerationService
	Export       *services.ExportService
}

// Build verdrahtet Speicher, Quellen und Services gemäß Konfiguration.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	switch cfg.StorageType {
	case "memory":
		a.Facts = storage.NewMemoryFactStore()
		a.Collections = storage.NewMemoryCollectionStore()
		logger.Info("Using in-memory storage")
	default:
		db, err := storage.OpenPostgres(cfg.DSN(), logger)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.DB = db
		a.Facts = storage.NewFactRepository(db)
		a.Collections = storage.NewCollectionRepository(db)
	}

	if cfg.S3Enabled() {
		client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		a.Objects = storage.NewObjectStore(client, cfg.S3Bucket, cfg.S3URL)
	}

	registry, err := buildRegistry(cfg, a.Objects, logger)
	if err != nil {
		return nil, err
	}
	a.Registry = registry

	categories, err := buildCategoryResolver(cfg)
	if err != nil {
		return nil, err
	}
	places := services.BoundingBoxResolver{}
	a.Normalizer = services.NewNormalizer(categories, places)
	a.Dedup = services.NewDeduplicator(a.Facts, services.NewFingerprinter(),
		services.ParseCorroborationMode(cfg.CorroborationMode), logger.With(zap.String("component", "dedup")))

	var partitions services.Partitioner = services.LiveSourcePartitions{Registry: registry, Normalizer: a.Normalizer, Logger: logger}
	if cfg.PartitionMode == "store" {
		partitions = services.StorePartitions{Facts: a.Facts}
	}
	a.Aggregator = services.NewAggregator(a.Collections, a.Facts, partitions, places,
		cfg.RefreshParallelism, logger.With(zap.String("component", "aggregator")))
	a.Orchestrator = services.NewOrchestrator(registry, a.Normalizer, a.Dedup, a.Aggregator,
		cfg.DefaultCollectionID, logger.With(zap.String("component", "orchestrator")))
	a.Curation = services.NewCollectionService(a.Collections, logger)
	a.Moderation = services.NewModerationService(a.Facts, logger)
	if a.Objects != nil {
		a.Export = services.NewExportService(a.Facts, a.Objects, cfg.S3ExportPrefix, cfg.KeepExports, logger)
	}

	if err := a.seedDefaultCollection(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func buildRegistry(cfg *config.Config, objects *storage.ObjectStore, logger *zap.Logger) (*sources.Registry, error) {
	registry, _ := sources.NewRegistry()
	for _, name := range cfg.Sources() {
		switch name {
		case dynamic.Type:
			if err := registry.Register(dynamic.New(dynamic.Type, cfg.DynamicSourceURL, logger)); err != nil {
				return nil, err
			}
		case static.Type:
			if objects == nil {
				return nil, fmt.Errorf("source %s requires S3", name)
			}
			if err := registry.Register(static.New(static.Type, objects, cfg.S3DatasetPrefix, logger)); err != nil {
				return nil, err
			}
		case remote.Type:
			for _, u := range cfg.RemoteURLs() {
				src, err := remote.New(u, logger)
				if err != nil {
					return nil, err
				}
				if err := registry.Register(src); err != nil {
					return nil, err
				}
			}
		default:
			logger.Warn("Unknown source in config", zap.String("source_name", name))
		}
	}
	logger.Info("Active sources loaded", zap.Strings("sources", registry.IDs()))
	return registry, nil
}

func buildCategoryResolver(cfg *config.Config) (services.CategoryResolver, error) {
	if cfg.TaxonomyProfile == "stub" {
		return services.PassThroughResolver{}, nil
	}
	r, err := services.LoadTaxonomyFile(cfg.TaxonomyFile)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}
	return r, nil
}

// seedDefaultCollection legt die Ziel-Colección der Ingesta an, falls sie fehlt.
func (a *App) seedDefaultCollection(ctx context.Context) error {
	id := a.Config.DefaultCollectionID
	_, err := a.Collections.Find(ctx, id)
	if err == nil {
		return nil
	}
	if !apperr.IsNotFound(err) {
		return err
	}
	c := &models.Collection{
		Handle:    "metamapa",
		Title:     "MetaMapa",
		Algorithm: models.AcceptAll,
	}
	for _, src := range a.Registry.IDs() {
		c.Sources = append(c.Sources, models.CollectionSource{SourceID: src})
	}
	if err := a.Collections.Create(ctx, c); err != nil {
		a.Logger.Warn("Failed to seed default collection", zap.Error(err))
		return nil
	}
	if c.ID != id {
		a.Logger.Warn("Seeded collection does not match DEFAULT_COLLECTION_ID",
			zap.Uint("seeded_id", c.ID), zap.Uint("configured_id", id))
		return nil
	}
	a.Logger.Info("Default collection seeded.", zap.Uint("collection_id", c.ID))
	return nil
}
