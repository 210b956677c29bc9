package storage

import (
	"context"
	"time"

	"metamapa/models"
)

// FactStore ist die Persistenz der kanonischen Hechos.
type FactStore interface {
	// Transaction führt fn atomar aus; ein Fehler verwirft alle Änderungen.
	Transaction(ctx context.Context, fn func(tx FactStore) error) error
	// FindByFingerprint liefert nil, wenn kein Hecho existiert. Gelöschte Hechos werden mitgeliefert.
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.Fact, error)
	FindByID(ctx context.Context, id uint) (*models.Fact, error)
	Save(ctx context.Context, f *models.Fact) error
	FindBySource(ctx context.Context, sourceID string) ([]models.Fact, error)
	FindAll(ctx context.Context) ([]models.Fact, error)
	HasOriginFile(ctx context.Context, factID, fileID uint) (bool, error)
	LinkOriginFile(ctx context.Context, factID, fileID uint) error
	ContributorExists(ctx context.Context, id uint) (bool, error)
}

// CollectionStore ist die Persistenz der Colecciones inklusive Mitgliedschaften.
type CollectionStore interface {
	Find(ctx context.Context, id uint) (*models.Collection, error)
	FindVisible(ctx context.Context) ([]models.Collection, error)
	Create(ctx context.Context, c *models.Collection) error
	// Save ersetzt die persistierten Mitgliedschaften vollständig durch c.Members.
	Save(ctx context.Context, c *models.Collection) error
	HandleExists(ctx context.Context, handle string) (bool, error)
}

// ObjectInfo beschreibt ein Objekt im Bucket.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}
