package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"metamapa/apperr"
	"metamapa/models"
)

// ErrDuplicateFingerprint entspricht der Unique-Verletzung auf facts.fingerprint.
var ErrDuplicateFingerprint = errors.New("duplicate fingerprint")

type originLink struct{ factID, fileID uint }

// MemoryFactStore hält Hechos im Speicher. Transaktionen werden serialisiert und bei Fehlern zurückgerollt.
type MemoryFactStore struct {
	mu            sync.RWMutex
	facts         map[uint]models.Fact
	byFingerprint map[string]uint
	links         map[originLink]struct{}
	contributors  map[uint]models.Contributor
	nextID        uint
	now           func() time.Time
}

func NewMemoryFactStore() *MemoryFactStore {
	return &MemoryFactStore{
		facts:         make(map[uint]models.Fact),
		byFingerprint: make(map[string]uint),
		links:         make(map[originLink]struct{}),
		contributors:  make(map[uint]models.Contributor),
		now:           time.Now,
	}
}

// AddContributor registriert einen Aufzeichner.
func (s *MemoryFactStore) AddContributor(c models.Contributor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contributors[c.ID] = c
}

func (s *MemoryFactStore) Transaction(ctx context.Context, fn func(tx FactStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotLocked()
	if err := fn(memFactTx{s: s}); err != nil {
		s.restoreLocked(snapshot)
		return err
	}
	return nil
}

func (s *MemoryFactStore) FindByFingerprint(ctx context.Context, fp string) (*models.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByFingerprintLocked(fp), nil
}

func (s *MemoryFactStore) FindByID(ctx context.Context, id uint) (*models.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByIDLocked(id)
}

func (s *MemoryFactStore) Save(ctx context.Context, f *models.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(f)
}

func (s *MemoryFactStore) FindBySource(ctx context.Context, sourceID string) ([]models.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(func(f *models.Fact) bool { return f.HasSource(sourceID) }), nil
}

func (s *MemoryFactStore) FindAll(ctx context.Context) ([]models.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(func(*models.Fact) bool { return true }), nil
}

func (s *MemoryFactStore) HasOriginFile(ctx context.Context, factID, fileID uint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.links[originLink{factID, fileID}]
	return ok, nil
}

func (s *MemoryFactStore) LinkOriginFile(ctx context.Context, factID, fileID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[originLink{factID, fileID}] = struct{}{}
	return nil
}

func (s *MemoryFactStore) ContributorExists(ctx context.Context, id uint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.contributors[id]
	return ok, nil
}

func (s *MemoryFactStore) findByFingerprintLocked(fp string) *models.Fact {
	id, ok := s.byFingerprint[fp]
	if !ok {
		return nil
	}
	f := s.facts[id].Clone()
	return &f
}

func (s *MemoryFactStore) findByIDLocked(id uint) (*models.Fact, error) {
	f, ok := s.facts[id]
	if !ok || f.Deleted {
		return nil, apperr.NewNotFound("fact", id)
	}
	out := f.Clone()
	return &out, nil
}

func (s *MemoryFactStore) saveLocked(f *models.Fact) error {
	if f.Fingerprint != "" {
		if other, ok := s.byFingerprint[f.Fingerprint]; ok && other != f.ID {
			return apperr.WrapStorage("save fact", ErrDuplicateFingerprint)
		}
	}
	now := s.now()
	if f.ID == 0 {
		s.nextID++
		f.ID = s.nextID
		f.CreatedAt = now
	} else if prev, ok := s.facts[f.ID]; ok {
		if prev.Fingerprint != f.Fingerprint {
			delete(s.byFingerprint, prev.Fingerprint)
		}
		f.CreatedAt = prev.CreatedAt
	}
	f.UpdatedAt = now
	for i := range f.Sources {
		f.Sources[i].FactID = f.ID
	}
	for i := range f.Tags {
		f.Tags[i].FactID = f.ID
	}
	stored := f.Clone()
	stored.OriginFileID = nil
	s.facts[f.ID] = stored
	if f.Fingerprint != "" {
		s.byFingerprint[f.Fingerprint] = f.ID
	}
	return nil
}

func (s *MemoryFactStore) filterLocked(keep func(*models.Fact) bool) []models.Fact {
	out := make([]models.Fact, 0, len(s.facts))
	for _, f := range s.facts {
		if f.Deleted || !keep(&f) {
			continue
		}
		out = append(out, f.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type factSnapshot struct {
	facts         map[uint]models.Fact
	byFingerprint map[string]uint
	links         map[originLink]struct{}
	nextID        uint
}

func (s *MemoryFactStore) snapshotLocked() factSnapshot {
	snap := factSnapshot{
		facts:         make(map[uint]models.Fact, len(s.facts)),
		byFingerprint: make(map[string]uint, len(s.byFingerprint)),
		links:         make(map[originLink]struct{}, len(s.links)),
		nextID:        s.nextID,
	}
	for k, v := range s.facts {
		snap.facts[k] = v.Clone()
	}
	for k, v := range s.byFingerprint {
		snap.byFingerprint[k] = v
	}
	for k := range s.links {
		snap.links[k] = struct{}{}
	}
	return snap
}

func (s *MemoryFactStore) restoreLocked(snap factSnapshot) {
	s.facts = snap.facts
	s.byFingerprint = snap.byFingerprint
	s.links = snap.links
	s.nextID = snap.nextID
}

// memFactTx arbeitet auf dem bereits gesperrten Store.
type memFactTx struct{ s *MemoryFactStore }

func (t memFactTx) Transaction(ctx context.Context, fn func(tx FactStore) error) error {
	return fn(t)
}

func (t memFactTx) FindByFingerprint(ctx context.Context, fp string) (*models.Fact, error) {
	return t.s.findByFingerprintLocked(fp), nil
}

func (t memFactTx) FindByID(ctx context.Context, id uint) (*models.Fact, error) {
	return t.s.findByIDLocked(id)
}

func (t memFactTx) Save(ctx context.Context, f *models.Fact) error {
	return t.s.saveLocked(f)
}

func (t memFactTx) FindBySource(ctx context.Context, sourceID string) ([]models.Fact, error) {
	return t.s.filterLocked(func(f *models.Fact) bool { return f.HasSource(sourceID) }), nil
}

func (t memFactTx) FindAll(ctx context.Context) ([]models.Fact, error) {
	return t.s.filterLocked(func(*models.Fact) bool { return true }), nil
}

func (t memFactTx) HasOriginFile(ctx context.Context, factID, fileID uint) (bool, error) {
	_, ok := t.s.links[originLink{factID, fileID}]
	return ok, nil
}

func (t memFactTx) LinkOriginFile(ctx context.Context, factID, fileID uint) error {
	t.s.links[originLink{factID, fileID}] = struct{}{}
	return nil
}

func (t memFactTx) ContributorExists(ctx context.Context, id uint) (bool, error) {
	_, ok := t.s.contributors[id]
	return ok, nil
}

// MemoryCollectionStore hält Colecciones im Speicher. Mitgliedschaften werden ohne Fact-Objekte gespeichert.
type MemoryCollectionStore struct {
	mu          sync.RWMutex
	collections map[uint]models.Collection
	nextID      uint
}

func NewMemoryCollectionStore() *MemoryCollectionStore {
	return &MemoryCollectionStore{collections: make(map[uint]models.Collection)}
}

func (s *MemoryCollectionStore) Find(ctx context.Context, id uint) (*models.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[id]
	if !ok {
		return nil, apperr.NewNotFound("collection", id)
	}
	out := c.Clone()
	return &out, nil
}

func (s *MemoryCollectionStore) FindVisible(ctx context.Context) ([]models.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Collection
	for _, c := range s.collections {
		if !c.Hidden {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryCollectionStore) Create(ctx context.Context, c *models.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.collections {
		if other.Handle == c.Handle {
			return apperr.WrapStorage("create collection", errors.New("duplicate handle "+c.Handle))
		}
	}
	if c.ID == 0 {
		s.nextID++
		c.ID = s.nextID
	} else if c.ID > s.nextID {
		s.nextID = c.ID
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.collections[c.ID] = s.stripped(c)
	return nil
}

func (s *MemoryCollectionStore) Save(ctx context.Context, c *models.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[c.ID]; !ok {
		return apperr.NewNotFound("collection", c.ID)
	}
	c.UpdatedAt = time.Now()
	s.collections[c.ID] = s.stripped(c)
	return nil
}

func (s *MemoryCollectionStore) HandleExists(ctx context.Context, handle string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.collections {
		if c.Handle == handle {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryCollectionStore) stripped(c *models.Collection) models.Collection {
	out := c.Clone()
	for i := range out.Members {
		out.Members[i].CollectionID = c.ID
		out.Members[i].Fact = nil
	}
	for i := range out.Sources {
		out.Sources[i].CollectionID = c.ID
	}
	for i := range out.Criteria {
		out.Criteria[i].CollectionID = c.ID
	}
	return out
}
