package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"metamapa/apperr"
	"metamapa/models"
	"metamapa/sources"
	"metamapa/storage"
)

// RefreshState ist der Zustand einer Colección im Aggregator.
type RefreshState string

const (
	StateStale      RefreshState = "stale"
	StateRefreshing RefreshState = "refreshing"
	StateRefreshed  RefreshState = "refreshed"
)

// NavigationMode wählt die Lesesicht auf eine Colección.
type NavigationMode string

const (
	ModeCurated      NavigationMode = "curada"
	ModeUnrestricted NavigationMode = "irrestricta"
)

func ParseNavigationMode(s string) (NavigationMode, error) {
	switch s {
	case "", string(ModeUnrestricted), "unrestricted":
		return ModeUnrestricted, nil
	case string(ModeCurated), "curated":
		return ModeCurated, nil
	}
	return "", apperr.NewValidation("mode", "unknown navigation mode "+s)
}

// Partitioner liefert je konfigurierter Quelle einer Colección die Liste ihrer Hechos.
type Partitioner interface {
	Partitions(ctx context.Context, c *models.Collection) ([][]models.Fact, error)
}

// StorePartitions bildet die Partitionen aus der Provenienz im Fact Store.
type StorePartitions struct {
	Facts storage.FactStore
}

func (p StorePartitions) Partitions(ctx context.Context, c *models.Collection) ([][]models.Fact, error) {
	out := make([][]models.Fact, 0, len(c.Sources))
	for _, id := range c.SourceIDs() {
		facts, err := p.Facts.FindBySource(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, facts)
	}
	return out, nil
}

// LiveSourcePartitions fragt jede konfigurierte Quelle nach ihren aktuellen Hechos.
// Unbekannte oder fehlerhafte Quellen liefern eine leere Partition.
type LiveSourcePartitions struct {
	Registry   *sources.Registry
	Normalizer *Normalizer
	Logger     *zap.Logger
}

func (p LiveSourcePartitions) Partitions(ctx context.Context, c *models.Collection) ([][]models.Fact, error) {
	out := make([][]models.Fact, 0, len(c.Sources))
	for _, id := range c.SourceIDs() {
		var partition []models.Fact
		src, ok := p.Registry.Get(id)
		if !ok {
			p.Logger.Warn("Collection references unknown source", zap.Uint("collection_id", c.ID), zap.String("source", id))
			out = append(out, partition)
			continue
		}
		raws, err := src.ListFacts(ctx)
		if err != nil {
			sourceErrorsCounter.WithLabelValues(id).Inc()
			p.Logger.Warn("Source fetch failed during refresh", zap.String("source", id), zap.Error(err))
			out = append(out, partition)
			continue
		}
		for _, raw := range raws {
			f, err := p.Normalizer.Normalize(raw)
			if err != nil {
				continue
			}
			partition = append(partition, f)
		}
		out = append(out, partition)
	}
	return out, nil
}

// Aggregator berechnet die Mitgliedschaften der Colecciones neu.
// Refreshes derselben Colección laufen nie parallel, verschiedene Colecciones schon.
type Aggregator struct {
	collections storage.CollectionStore
	facts       storage.FactStore
	partitions  Partitioner
	places      PlaceResolver
	parallelism int
	logger      *zap.Logger
	now         func() time.Time

	mu     sync.Mutex
	locks  map[uint]*sync.Mutex
	states map[uint]RefreshState
}

func NewAggregator(collections storage.CollectionStore, facts storage.FactStore, partitions Partitioner, places PlaceResolver, parallelism int, logger *zap.Logger) *Aggregator {
	if partitions == nil {
		partitions = StorePartitions{Facts: facts}
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &Aggregator{
		collections: collections,
		facts:       facts,
		partitions:  partitions,
		places:      places,
		parallelism: parallelism,
		logger:      logger,
		now:         time.Now,
		locks:       make(map[uint]*sync.Mutex),
		states:      make(map[uint]RefreshState),
	}
}

// State liefert den Zustand einer Colección; unbekannte gelten als stale.
func (a *Aggregator) State(id uint) RefreshState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.states[id]; ok {
		return s
	}
	return StateStale
}

func (a *Aggregator) lockFor(id uint) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	return l
}

func (a *Aggregator) setState(id uint, s RefreshState) {
	a.mu.Lock()
	a.states[id] = s
	a.mu.Unlock()
}

// Refresh berechnet die Mitgliedschaft einer Colección neu und persistiert sie.
func (a *Aggregator) Refresh(ctx context.Context, id uint) error {
	lock := a.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	log := a.logger.With(zap.Uint("collection_id", id))
	a.setState(id, StateRefreshing)
	start := a.now()

	members, confirmed, err := a.refresh(ctx, id)
	refreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		a.setState(id, StateStale)
		refreshCounter.WithLabelValues("error").Inc()
		log.Error("Collection refresh failed", zap.Error(err))
		return err
	}

	a.setState(id, StateRefreshed)
	refreshCounter.WithLabelValues("ok").Inc()
	log.Info("Collection refreshed", zap.Int("members", members), zap.Int("confirmed", confirmed))
	return nil
}

func (a *Aggregator) refresh(ctx context.Context, id uint) (int, int, error) {
	c, err := a.collections.Find(ctx, id)
	if err != nil {
		return 0, 0, err
	}

	// Basis: bereits bestätigte Mitglieder bleiben erhalten.
	universe := make([]models.Fact, 0, len(c.Members))
	index := make(map[uint]struct{})
	for _, m := range c.Members {
		if !m.Confirmed {
			continue
		}
		f, err := a.memberFact(ctx, m)
		if err != nil {
			if apperr.IsNotFound(err) {
				continue
			}
			return 0, 0, err
		}
		if f.Deleted {
			continue
		}
		universe = append(universe, *f)
		index[f.ID] = struct{}{}
	}

	for _, srcID := range c.SourceIDs() {
		facts, err := a.facts.FindBySource(ctx, srcID)
		if err != nil {
			return 0, 0, err
		}
		for _, f := range facts {
			if f.Deleted {
				continue
			}
			if _, ok := index[f.ID]; ok {
				continue
			}
			if !MatchesCriteria(c.Criteria, f, a.places) {
				continue
			}
			universe = append(universe, f)
			index[f.ID] = struct{}{}
		}
	}

	partitions, err := a.partitions.Partitions(ctx, c)
	if err != nil {
		return 0, 0, err
	}
	confirmedIDs := make(map[uint]struct{})
	for _, f := range FilterConfirmed(c.Algorithm, universe, partitions) {
		confirmedIDs[f.ID] = struct{}{}
	}

	c.Members = make([]models.CollectionFact, 0, len(universe))
	for _, f := range universe {
		_, ok := confirmedIDs[f.ID]
		c.Members = append(c.Members, models.CollectionFact{CollectionID: c.ID, FactID: f.ID, Confirmed: ok})
	}
	now := a.now()
	c.LastRefreshedAt = &now

	if err := a.collections.Save(ctx, c); err != nil {
		return 0, 0, err
	}
	return len(universe), len(confirmedIDs), nil
}

func (a *Aggregator) memberFact(ctx context.Context, m models.CollectionFact) (*models.Fact, error) {
	if m.Fact != nil {
		return m.Fact, nil
	}
	return a.facts.FindByID(ctx, m.FactID)
}

// RefreshAll aktualisiert alle sichtbaren Colecciones außer skip parallel. Fehler einzelner
// Colecciones brechen die anderen nicht ab und werden gesammelt zurückgegeben.
func (a *Aggregator) RefreshAll(ctx context.Context, skip ...uint) error {
	visible, err := a.collections.FindVisible(ctx)
	if err != nil {
		return err
	}
	collections := make([]models.Collection, 0, len(visible))
	for _, c := range visible {
		if !slices.Contains(skip, c.ID) {
			collections = append(collections, c)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	semaphore := make(chan struct{}, a.parallelism)

	for _, c := range collections {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(id uint) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := a.Refresh(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("collection %d: %w", id, err))
				mu.Unlock()
			}
		}(c.ID)
	}

	wg.Wait()
	a.logger.Info("Refreshed all collections", zap.Int("collections", len(collections)), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// Facts liefert die Mitglieder einer Colección ohne Neuberechnung.
func (a *Aggregator) Facts(ctx context.Context, id uint, mode NavigationMode) ([]models.Fact, error) {
	c, err := a.collections.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]models.Fact, 0, len(c.Members))
	for _, m := range c.Members {
		if mode == ModeCurated && !m.Confirmed {
			continue
		}
		f, err := a.memberFact(ctx, m)
		if err != nil {
			if apperr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if f.Deleted {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}
