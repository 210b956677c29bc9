package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"metamapa/apperr"
	"metamapa/models"
	"metamapa/sources"
)

// IngestResult fasst einen Ingesta-Lauf zusammen.
type IngestResult struct {
	RunID    string     `json:"run_id"`
	Received int        `json:"received"`
	Rejected int        `json:"rejected"`
	Stats    DedupStats `json:"stats"`
	Universe int        `json:"universe"`

	// TargetRefreshed ist gesetzt, wenn die Ziel-Colección in diesem Lauf neu berechnet wurde.
	TargetRefreshed bool `json:"target_refreshed"`
}

// Orchestrator steuert die Pipeline Quellen → Normalizer → Dedup → Aggregator.
type Orchestrator struct {
	registry         *sources.Registry
	normalizer       *Normalizer
	dedup            *Deduplicator
	aggregator       *Aggregator
	targetCollection uint
	logger           *zap.Logger
}

func NewOrchestrator(registry *sources.Registry, normalizer *Normalizer, dedup *Deduplicator, aggregator *Aggregator, targetCollection uint, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		registry:         registry,
		normalizer:       normalizer,
		dedup:            dedup,
		aggregator:       aggregator,
		targetCollection: targetCollection,
		logger:           logger,
	}
}

// IngestFromSources holt alle registrierten Quellen ab. Fehler einer Quelle werden geloggt und übersprungen.
func (o *Orchestrator) IngestFromSources(ctx context.Context) (IngestResult, error) {
	runID := uuid.NewString()
	log := o.logger.With(zap.String("run_id", runID))

	var batch []models.RawFact
	for _, src := range o.registry.All() {
		raws, err := src.ListFacts(ctx)
		if err != nil {
			sourceErrorsCounter.WithLabelValues(src.ID()).Inc()
			log.Error("Source fetch failed", zap.String("source", src.ID()), zap.Error(err))
			continue
		}
		log.Info("Source delivered facts", zap.String("source", src.ID()), zap.Int("count", len(raws)))
		for _, raw := range raws {
			batch = append(batch, stamp(raw, src))
		}
	}
	return o.ingest(ctx, runID, batch)
}

// TargetCollection liefert die Colección, die nach jeder Ingesta neu berechnet wird.
func (o *Orchestrator) TargetCollection() uint { return o.targetCollection }

// IngestBatch verarbeitet bereits gelieferte Rohdaten.
func (o *Orchestrator) IngestBatch(ctx context.Context, raws []models.RawFact) (IngestResult, error) {
	return o.ingest(ctx, uuid.NewString(), raws)
}

func (o *Orchestrator) ingest(ctx context.Context, runID string, raws []models.RawFact) (IngestResult, error) {
	result := IngestResult{RunID: runID, Received: len(raws)}
	log := o.logger.With(zap.String("run_id", runID))
	if len(raws) == 0 {
		log.Info("Empty batch, nothing to ingest")
		return result, nil
	}

	normalized := make([]models.Fact, 0, len(raws))
	for i, raw := range raws {
		f, err := o.normalizer.Normalize(raw)
		if err != nil {
			result.Rejected++
			factsRejectedCounter.Inc()
			log.Warn("Skipping invalid fact", zap.Int("index", i), zap.String("title", raw.Title), zap.Error(err))
			continue
		}
		normalized = append(normalized, f)
	}
	if len(normalized) == 0 {
		log.Warn("No valid facts in batch", zap.Int("rejected", result.Rejected))
		return result, nil
	}

	universe, stats, err := o.dedup.Depurar(ctx, normalized)
	if err != nil {
		return result, err
	}
	result.Stats = stats
	result.Universe = len(universe)

	if err := o.aggregator.Refresh(ctx, o.targetCollection); err != nil {
		if !apperr.IsNotFound(err) {
			return result, err
		}
		log.Warn("Target collection missing, skipping refresh", zap.Uint("collection_id", o.targetCollection))
	} else {
		result.TargetRefreshed = true
	}

	log.Info("Ingestion completed",
		zap.Int("received", result.Received),
		zap.Int("rejected", result.Rejected),
		zap.Int("inserted", stats.Inserted),
		zap.Int("merged", stats.Merged))
	return result, nil
}

// stamp ergänzt die Quelle als Provenienz und ihren Typ als Herkunft.
func stamp(raw models.RawFact, src sources.Source) models.RawFact {
	raw.ExternalID = nil
	found := false
	for _, s := range raw.Sources {
		if s == src.ID() {
			found = true
			break
		}
	}
	if !found {
		raw.Sources = append(append([]string(nil), raw.Sources...), src.ID())
	}
	if raw.Origin == "" {
		raw.Origin = src.Type()
	}
	return raw
}
