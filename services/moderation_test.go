package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"metamapa/apperr"
	"metamapa/models"
	"metamapa/storage"
)

func TestModerationReview(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryFactStore()
	f := seedFact(t, store, "x", "A")
	m := NewModerationService(store, zaptest.NewLogger(t))

	reviewed, err := m.Review(ctx, f.ID, models.ReviewAcceptedSuggestions, "precisar la ubicacion")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewAcceptedSuggestions, reviewed.ReviewState)

	stored, err := store.FindByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "precisar la ubicacion", stored.SuggestedChange)
	assert.Equal(t, 1, stored.Corroborations)

	_, err = m.Review(ctx, f.ID, "VISTO", "")
	assert.True(t, apperr.IsValidation(err))

	_, err = m.Review(ctx, 404, models.ReviewAccepted, "")
	assert.True(t, apperr.IsNotFound(err))
}

func TestModerationDelete(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryFactStore()
	f := seedFact(t, store, "x", "A")
	m := NewModerationService(store, zaptest.NewLogger(t))

	require.NoError(t, m.Delete(ctx, f.ID))

	all, err := store.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// gelöschte Hechos bleiben über den Fingerprint erreichbar
	found, err := store.FindByFingerprint(ctx, "x")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Deleted)

	assert.True(t, apperr.IsNotFound(m.Delete(ctx, f.ID)))
}
