package services

import (
	"context"
	"encoding/csv"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"metamapa/models"
	"metamapa/storage"
)

type memTarget struct {
	mu      sync.Mutex
	objects map[string][]byte
	times   map[string]time.Time
	clock   time.Time
	putErr  error
}

func newMemTarget() *memTarget {
	return &memTarget{
		objects: make(map[string][]byte),
		times:   make(map[string]time.Time),
		clock:   time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memTarget) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	m.clock = m.clock.Add(time.Minute)
	m.objects[key] = append([]byte(nil), data...)
	m.times[key] = m.clock
	return "mem://" + key, nil
}

func (m *memTarget) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v)), LastModified: m.times[k]})
		}
	}
	return out, nil
}

func (m *memTarget) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.times, key)
	return nil
}

func (m *memTarget) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestExportWritesFactsAndCategories(t *testing.T) {
	ctx := context.Background()
	facts := storage.NewMemoryFactStore()
	for _, f := range []models.Fact{
		{Title: "incendio", Category: "incendio", Fingerprint: "1", EventDate: day(2024, time.May, 2), Latitude: ptr(-34.6), Longitude: ptr(-58.4)},
		{Title: "otro incendio", Category: "incendio", Fingerprint: "2"},
		{Title: "robo", Category: "robo", Fingerprint: "3"},
		{Title: "borrado", Category: "robo", Fingerprint: "4", Deleted: true},
	} {
		f := f
		f.AddSource("dinamica")
		require.NoError(t, facts.Save(ctx, &f))
	}

	target := newMemTarget()
	svc := NewExportService(facts, target, "exports/", 4, zaptest.NewLogger(t))
	svc.now = func() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }

	result, err := svc.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Facts)
	assert.Equal(t, "mem://exports/hechos-2024-06-01T12-00-00Z.csv", result.FactsLink)
	assert.Equal(t, "mem://exports/categorias-2024-06-01T12-00-00Z.csv", result.CategoriesLink)

	rows, err := csv.NewReader(strings.NewReader(string(target.objects["exports/hechos-2024-06-01T12-00-00Z.csv"]))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Titulo", rows[0][1])
	assert.Equal(t, []string{"1", "incendio", "incendio", "2024-05-02", "-34.60000", "-58.40000"}, rows[1][:6])
	assert.Equal(t, "dinamica", rows[1][9])

	cats, err := csv.NewReader(strings.NewReader(string(target.objects["exports/categorias-2024-06-01T12-00-00Z.csv"]))).ReadAll()
	require.NoError(t, err)
	require.Len(t, cats, 3)
	assert.Equal(t, []string{"incendio", "2", "66.67"}, cats[1][:3])
	assert.Equal(t, []string{"robo", "1", "33.33"}, cats[2][:3])
}

func TestExportRotatesOldSnapshots(t *testing.T) {
	ctx := context.Background()
	target := newMemTarget()
	svc := NewExportService(storage.NewMemoryFactStore(), target, "exports/", 2, zaptest.NewLogger(t))

	base := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return ts }
		_, err := svc.Export(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"exports/categorias-2024-06-01T02-00-00Z.csv",
		"exports/categorias-2024-06-01T03-00-00Z.csv",
		"exports/hechos-2024-06-01T02-00-00Z.csv",
		"exports/hechos-2024-06-01T03-00-00Z.csv",
	}, target.keys())
}

func TestExportUploadFailure(t *testing.T) {
	target := newMemTarget()
	target.putErr = errors.New("access denied")
	svc := NewExportService(storage.NewMemoryFactStore(), target, "exports/", 2, zaptest.NewLogger(t))

	_, err := svc.Export(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
