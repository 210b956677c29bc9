package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"metamapa/apperr"
	"metamapa/models"
	"metamapa/sources"
	"metamapa/storage"
)

type fakeSource struct {
	id   string
	typ  string
	raws []models.RawFact
	err  error

	mu    sync.Mutex
	calls int
}

func (s *fakeSource) ListFacts(ctx context.Context) ([]models.RawFact, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.raws, nil
}

func (s *fakeSource) ID() string { return s.id }

func (s *fakeSource) Type() string {
	if s.typ == "" {
		return "dinamica"
	}
	return s.typ
}

func seedFact(t *testing.T, store storage.FactStore, title string, srcs ...string) models.Fact {
	t.Helper()
	f := models.Fact{Title: title, Fingerprint: title, Corroborations: 1}
	for _, s := range srcs {
		f.AddSource(s)
	}
	require.NoError(t, store.Save(context.Background(), &f))
	return f
}

func seedCollection(t *testing.T, store storage.CollectionStore, alg models.ConsensusAlgorithm, srcs ...string) *models.Collection {
	t.Helper()
	c := &models.Collection{Handle: "c-" + string(alg), Title: "test", Algorithm: alg}
	for _, s := range srcs {
		c.Sources = append(c.Sources, models.CollectionSource{SourceID: s})
	}
	require.NoError(t, store.Create(context.Background(), c))
	return c
}

func memberIDs(t *testing.T, store storage.CollectionStore, id uint) (all, confirmed []uint) {
	t.Helper()
	c, err := store.Find(context.Background(), id)
	require.NoError(t, err)
	for _, m := range c.Members {
		all = append(all, m.FactID)
		if m.Confirmed {
			confirmed = append(confirmed, m.FactID)
		}
	}
	return all, confirmed
}

func TestRefreshSimpleMajority(t *testing.T) {
	ctx := context.Background()
	facts := storage.NewMemoryFactStore()
	collections := storage.NewMemoryCollectionStore()

	x := seedFact(t, facts, "x", "A", "B")
	y := seedFact(t, facts, "y", "C")
	z := seedFact(t, facts, "z", "A", "B", "C")
	seedFact(t, facts, "ajeno", "D")
	c := seedCollection(t, collections, models.SimpleMajority, "A", "B", "C")

	agg := NewAggregator(collections, facts, nil, BoundingBoxResolver{}, 2, zaptest.NewLogger(t))
	require.NoError(t, agg.Refresh(ctx, c.ID))
	assert.Equal(t, StateRefreshed, agg.State(c.ID))

	all, confirmed := memberIDs(t, collections, c.ID)
	assert.ElementsMatch(t, []uint{x.ID, y.ID, z.ID}, all)
	assert.ElementsMatch(t, []uint{x.ID, z.ID}, confirmed)

	stored, err := collections.Find(ctx, c.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastRefreshedAt)

	curated, err := agg.Facts(ctx, c.ID, ModeCurated)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "z"}, titles(curated))

	unrestricted, err := agg.Facts(ctx, c.ID, ModeUnrestricted)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y", "z"}, titles(unrestricted))
}

func TestRefreshKeepsConfirmedMembers(t *testing.T) {
	ctx := context.Background()
	facts := storage.NewMemoryFactStore()
	collections := storage.NewMemoryCollectionStore()

	x := seedFact(t, facts, "x", "A")
	seedFact(t, facts, "y", "B")
	c := seedCollection(t, collections, models.AcceptAll, "A")
	agg := NewAggregator(collections, facts, nil, nil, 1, zaptest.NewLogger(t))
	require.NoError(t, agg.Refresh(ctx, c.ID))

	stored, err := collections.Find(ctx, c.ID)
	require.NoError(t, err)
	stored.Sources = []models.CollectionSource{{SourceID: "B"}}
	require.NoError(t, collections.Save(ctx, stored))

	require.NoError(t, agg.Refresh(ctx, c.ID))
	all, confirmed := memberIDs(t, collections, c.ID)
	assert.Contains(t, all, x.ID)
	assert.Contains(t, confirmed, x.ID)
	assert.Len(t, all, 2)
}

func TestRefreshDropsDeletedFacts(t *testing.T) {
	ctx := context.Background()
	facts := storage.NewMemoryFactStore()
	collections := storage.NewMemoryCollectionStore()

	x := seedFact(t, facts, "x", "A")
	y := seedFact(t, facts, "y", "A")
	c := seedCollection(t, collections, models.AcceptAll, "A")
	agg := NewAggregator(collections, facts, nil, nil, 1, zaptest.NewLogger(t))
	require.NoError(t, agg.Refresh(ctx, c.ID))

	x.Deleted = true
	require.NoError(t, facts.Save(ctx, &x))

	out, err := agg.Facts(ctx, c.ID, ModeUnrestricted)
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, titles(out))

	require.NoError(t, agg.Refresh(ctx, c.ID))
	all, _ := memberIDs(t, collections, c.ID)
	assert.Equal(t, []uint{y.ID}, all)
}

func TestRefreshAppliesCriteriaToFreshFacts(t *testing.T) {
	ctx := context.Background()
	facts := storage.NewMemoryFactStore()
	collections := storage.NewMemoryCollectionStore()

	robo := seedFact(t, facts, "robo en palermo", "A")
	seedFact(t, facts, "incendio en palermo", "A")
	c := &models.Collection{
		Handle:    "robos",
		Title:     "Robos",
		Algorithm: models.AcceptAll,
		Sources:   []models.CollectionSource{{SourceID: "A"}},
		Criteria:  []models.CollectionCriterion{{Kind: models.CriterionTitle, Value: "robo"}},
	}
	require.NoError(t, collections.Create(ctx, c))

	agg := NewAggregator(collections, facts, nil, nil, 1, zaptest.NewLogger(t))
	require.NoError(t, agg.Refresh(ctx, c.ID))
	all, confirmed := memberIDs(t, collections, c.ID)
	assert.Equal(t, []uint{robo.ID}, all)
	assert.Equal(t, []uint{robo.ID}, confirmed)
}

func TestRefreshWithLivePartitions(t *testing.T) {
	ctx := context.Background()
	facts := storage.NewMemoryFactStore()
	collections := storage.NewMemoryCollectionStore()

	seedFact(t, facts, "x", "A")
	seedFact(t, facts, "y", "A")
	c := seedCollection(t, collections, models.Unanimous, "A", "B")

	registry, err := sources.NewRegistry(
		&fakeSource{id: "A", raws: []models.RawFact{{Title: "X"}, {Title: "y"}}},
		&fakeSource{id: "B", raws: []models.RawFact{{Title: " x "}}},
	)
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	live := LiveSourcePartitions{Registry: registry, Normalizer: NewNormalizer(nil, nil), Logger: logger}

	agg := NewAggregator(collections, facts, live, nil, 1, logger)
	require.NoError(t, agg.Refresh(ctx, c.ID))

	curated, err := agg.Facts(ctx, c.ID, ModeCurated)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, titles(curated))
}

func TestRefreshRevokesConfirmationWhenSourceStopsReporting(t *testing.T) {
	ctx := context.Background()
	facts := storage.NewMemoryFactStore()
	collections := storage.NewMemoryCollectionStore()

	x := seedFact(t, facts, "x", "A", "B")
	c := seedCollection(t, collections, models.Unanimous, "A", "B")

	a := &fakeSource{id: "A", raws: []models.RawFact{{Title: "x"}}}
	b := &fakeSource{id: "B", raws: []models.RawFact{{Title: "x"}}}
	registry, err := sources.NewRegistry(a, b)
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	live := LiveSourcePartitions{Registry: registry, Normalizer: NewNormalizer(nil, nil), Logger: logger}
	agg := NewAggregator(collections, facts, live, nil, 1, logger)

	require.NoError(t, agg.Refresh(ctx, c.ID))
	_, confirmed := memberIDs(t, collections, c.ID)
	assert.Equal(t, []uint{x.ID}, confirmed)

	// B meldet x nicht mehr, die Provenienz im Store bleibt aber {A,B}.
	b.mu.Lock()
	b.raws = nil
	callsBefore := b.calls
	b.mu.Unlock()

	require.NoError(t, agg.Refresh(ctx, c.ID))
	all, confirmed := memberIDs(t, collections, c.ID)
	assert.Equal(t, []uint{x.ID}, all)
	assert.Empty(t, confirmed)

	b.mu.Lock()
	assert.Greater(t, b.calls, callsBefore)
	b.mu.Unlock()

	curated, err := agg.Facts(ctx, c.ID, ModeCurated)
	require.NoError(t, err)
	assert.Empty(t, curated)
}

func TestLivePartitionsTolerateFailingSources(t *testing.T) {
	registry, err := sources.NewRegistry(
		&fakeSource{id: "A", raws: []models.RawFact{{Title: "x"}, {Title: ""}}},
		&fakeSource{id: "B", err: errors.New("connection refused")},
	)
	require.NoError(t, err)
	live := LiveSourcePartitions{Registry: registry, Normalizer: NewNormalizer(nil, nil), Logger: zaptest.NewLogger(t)}

	c := &models.Collection{ID: 1, Sources: []models.CollectionSource{{SourceID: "A"}, {SourceID: "B"}, {SourceID: "unbekannt"}}}
	parts, err := live.Partitions(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, []string{"x"}, titles(parts[0]))
	assert.Empty(t, parts[1])
	assert.Empty(t, parts[2])
}

// overlapPartitions zählt, wie viele Partitions-Aufrufe gleichzeitig laufen.
type overlapPartitions struct {
	inner  Partitioner
	active atomic.Int32
	max    atomic.Int32
}

func (p *overlapPartitions) Partitions(ctx context.Context, c *models.Collection) ([][]models.Fact, error) {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		m := p.max.Load()
		if n <= m || p.max.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return p.inner.Partitions(ctx, c)
}

func TestConcurrentRefreshOfSameCollectionIsSerialized(t *testing.T) {
	ctx := context.Background()
	facts := storage.NewMemoryFactStore()
	collections := storage.NewMemoryCollectionStore()
	seedFact(t, facts, "x", "A")
	c := seedCollection(t, collections, models.AcceptAll, "A")

	parts := &overlapPartitions{inner: StorePartitions{Facts: facts}}
	agg := NewAggregator(collections, facts, parts, nil, 8, zaptest.NewLogger(t))

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = agg.Refresh(ctx, c.ID)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errors.Join(errs...))
	assert.Equal(t, int32(1), parts.max.Load())
	assert.Equal(t, StateRefreshed, agg.State(c.ID))
}

func TestRefreshUnknownCollection(t *testing.T) {
	agg := NewAggregator(storage.NewMemoryCollectionStore(), storage.NewMemoryFactStore(), nil, nil, 1, zaptest.NewLogger(t))

	err := agg.Refresh(context.Background(), 99)
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, StateStale, agg.State(99))

	_, err = agg.Facts(context.Background(), 99, ModeCurated)
	assert.True(t, apperr.IsNotFound(err))
}

// failingCollections lässt das Speichern einer bestimmten Colección scheitern.
type failingCollections struct {
	*storage.MemoryCollectionStore
	failID uint
}

func (s *failingCollections) Save(ctx context.Context, c *models.Collection) error {
	if c.ID == s.failID {
		return errors.New("write conflict")
	}
	return s.MemoryCollectionStore.Save(ctx, c)
}

func TestRefreshAllIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	facts := storage.NewMemoryFactStore()
	seedFact(t, facts, "x", "A")

	collections := &failingCollections{MemoryCollectionStore: storage.NewMemoryCollectionStore()}
	ok := seedCollection(t, collections, models.AcceptAll, "A")
	broken := seedCollection(t, collections, models.MultipleMentions, "A")
	hidden := &models.Collection{Handle: "oculta", Title: "oculta", Hidden: true, Sources: []models.CollectionSource{{SourceID: "A"}}}
	require.NoError(t, collections.Create(ctx, hidden))
	collections.failID = broken.ID

	agg := NewAggregator(collections, facts, nil, nil, 4, zaptest.NewLogger(t))
	err := agg.RefreshAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write conflict")

	assert.Equal(t, StateRefreshed, agg.State(ok.ID))
	assert.Equal(t, StateStale, agg.State(broken.ID))
	assert.Equal(t, StateStale, agg.State(hidden.ID))

	all, _ := memberIDs(t, collections, ok.ID)
	assert.Len(t, all, 1)
}

func TestRefreshAllSkipsGivenCollections(t *testing.T) {
	ctx := context.Background()
	facts := storage.NewMemoryFactStore()
	seedFact(t, facts, "x", "A")
	collections := storage.NewMemoryCollectionStore()
	target := seedCollection(t, collections, models.AcceptAll, "A")
	other := seedCollection(t, collections, models.SimpleMajority, "A")

	agg := NewAggregator(collections, facts, nil, nil, 2, zaptest.NewLogger(t))
	require.NoError(t, agg.RefreshAll(ctx, target.ID))

	assert.Equal(t, StateStale, agg.State(target.ID))
	assert.Equal(t, StateRefreshed, agg.State(other.ID))
	all, _ := memberIDs(t, collections, target.ID)
	assert.Empty(t, all)
}

func TestParseNavigationMode(t *testing.T) {
	mode, err := ParseNavigationMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeUnrestricted, mode)

	mode, err = ParseNavigationMode("curada")
	require.NoError(t, err)
	assert.Equal(t, ModeCurated, mode)

	_, err = ParseNavigationMode("todo")
	assert.True(t, apperr.IsValidation(err))
}
