package services

import (
	"context"

	"go.uber.org/zap"

	"metamapa/apperr"
	"metamapa/models"
	"metamapa/storage"
)

// CorroborationMode legt fest, wie der Zähler bei einem Merge wächst.
type CorroborationMode int

const (
	// CountMergeEvents: +1 pro Merge, der mindestens eine neue Quelle bringt.
	CountMergeEvents CorroborationMode = iota
	// CountDistinctSources: Zähler entspricht der Anzahl verschiedener Quellen.
	CountDistinctSources
)

func ParseCorroborationMode(s string) CorroborationMode {
	if s == "distinct_sources" {
		return CountDistinctSources
	}
	return CountMergeEvents
}

// DedupStats fasst einen Batch zusammen.
type DedupStats struct {
	Inserted int
	Merged   int
	Ignored  int
}

// Deduplicator führt neue Hechos mit bestehenden zusammen (depurar).
type Deduplicator struct {
	store       storage.FactStore
	fingerprint *Fingerprinter
	mode        CorroborationMode
	logger      *zap.Logger
}

func NewDeduplicator(store storage.FactStore, fp *Fingerprinter, mode CorroborationMode, logger *zap.Logger) *Deduplicator {
	if fp == nil {
		fp = NewFingerprinter()
	}
	return &Deduplicator{store: store, fingerprint: fp, mode: mode, logger: logger}
}

// Depurar verarbeitet einen Batch atomar und liefert danach alle nicht gelöschten Hechos.
func (d *Deduplicator) Depurar(ctx context.Context, batch []models.Fact) ([]models.Fact, DedupStats, error) {
	var stats DedupStats
	if len(batch) == 0 {
		universe, err := d.store.FindAll(ctx)
		return universe, stats, err
	}

	incoming := make([]models.Fact, len(batch))
	for i := range batch {
		incoming[i] = batch[i].Clone()
		d.resolveContributor(ctx, &incoming[i])
	}

	var universe []models.Fact
	err := d.store.Transaction(ctx, func(tx storage.FactStore) error {
		for i := range incoming {
			if err := d.merge(ctx, tx, &incoming[i], &stats); err != nil {
				return err
			}
		}
		var err error
		universe, err = tx.FindAll(ctx)
		return err
	})
	if err != nil {
		d.logger.Error("Dedup batch rolled back", zap.Int("batch_size", len(batch)), zap.Error(err))
		return nil, DedupStats{}, apperr.WrapStorage("depurar", err)
	}

	factsInsertedCounter.Add(float64(stats.Inserted))
	factsMergedCounter.Add(float64(stats.Merged))
	d.logger.Info("Dedup batch committed",
		zap.Int("batch_size", len(batch)),
		zap.Int("inserted", stats.Inserted),
		zap.Int("merged", stats.Merged),
		zap.Int("ignored", stats.Ignored),
		zap.Int("universe", len(universe)))
	return universe, stats, nil
}

// resolveContributor läuft außerhalb der Transaktion; ein Fehler hier darf den Batch nicht abbrechen.
func (d *Deduplicator) resolveContributor(ctx context.Context, f *models.Fact) {
	if f.ContributorID == nil {
		return
	}
	if f.Anonymous {
		f.ContributorID = nil
		return
	}
	id := *f.ContributorID
	exists, err := d.store.ContributorExists(ctx, id)
	if err != nil || !exists {
		d.logger.Warn("Contributor not resolvable, continuing without contributor",
			zap.Uint("contributor_id", id), zap.String("title", f.Title), zap.Error(err))
		f.ContributorID = nil
	}
}

func (d *Deduplicator) merge(ctx context.Context, tx storage.FactStore, f *models.Fact, stats *DedupStats) error {
	f.Fingerprint = d.fingerprint.Fingerprint(*f)

	existing, err := tx.FindByFingerprint(ctx, f.Fingerprint)
	if err != nil {
		return err
	}

	target := existing
	if existing != nil {
		added := 0
		for _, src := range f.SourceIDs() {
			if existing.AddSource(src) {
				added++
			}
		}
		if added > 0 {
			existing.Corroborations += d.increment(added)
			if err := tx.Save(ctx, existing); err != nil {
				return err
			}
			stats.Merged++
		} else {
			stats.Ignored++
		}
	} else {
		f.ID = 0
		f.Corroborations = d.initial(len(f.Sources))
		if err := tx.Save(ctx, f); err != nil {
			return err
		}
		target = f
		stats.Inserted++
	}

	if f.OriginFileID != nil {
		linked, err := tx.HasOriginFile(ctx, target.ID, *f.OriginFileID)
		if err != nil {
			return err
		}
		if !linked {
			if err := tx.LinkOriginFile(ctx, target.ID, *f.OriginFileID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Deduplicator) increment(added int) int {
	if d.mode == CountDistinctSources {
		return added
	}
	return 1
}

func (d *Deduplicator) initial(sources int) int {
	if d.mode == CountDistinctSources && sources > 1 {
		return sources
	}
	return 1
}
