package services

import (
	"context"

	"go.uber.org/zap"

	"metamapa/models"
	"metamapa/storage"
)

// ModerationService setzt Revisionsstatus und löscht Hechos logisch.
// Unabhängig vom Konsens: bestätigt wird über Quellen, moderiert über Personen.
type ModerationService struct {
	facts  storage.FactStore
	logger *zap.Logger
}

func NewModerationService(facts storage.FactStore, logger *zap.Logger) *ModerationService {
	return &ModerationService{facts: facts, logger: logger}
}

func (m *ModerationService) Review(ctx context.Context, id uint, state models.ReviewState, suggestion string) (*models.Fact, error) {
	f, err := m.facts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := f.Review(state, suggestion); err != nil {
		return nil, err
	}
	if err := m.facts.Save(ctx, f); err != nil {
		return nil, err
	}
	m.logger.Info("Fact reviewed", zap.Uint("fact_id", id), zap.String("state", string(state)))
	return f, nil
}

// Delete markiert einen Hecho als gelöscht; er verschwindet aus allen Lesepfaden.
func (m *ModerationService) Delete(ctx context.Context, id uint) error {
	f, err := m.facts.FindByID(ctx, id)
	if err != nil {
		return err
	}
	f.Deleted = true
	if err := m.facts.Save(ctx, f); err != nil {
		return err
	}
	m.logger.Info("Fact deleted", zap.Uint("fact_id", id))
	return nil
}
