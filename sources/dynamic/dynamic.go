package dynamic

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"metamapa/models"
	"metamapa/sources"
)

const Type = "dinamica"

// Source liest die von Nutzern eingereichten Hechos über die HTTP-API der dynamischen Quelle.
type Source struct {
	id     string
	url    string
	logger *zap.Logger
}

func New(id, url string, logger *zap.Logger) *Source {
	return &Source{id: id, url: url, logger: logger.With(zap.String("source", id))}
}

func (s *Source) ID() string   { return s.id }
func (s *Source) Type() string { return Type }

func (s *Source) ListFacts(ctx context.Context) ([]models.RawFact, error) {
	var facts []models.RawFact
	if err := sources.GetJSON(ctx, s.url, &facts); err != nil {
		return nil, fmt.Errorf("fetch dynamic facts: %w", err)
	}
	s.logger.Debug("Dynamic source returned facts", zap.Int("count", len(facts)))
	return facts, nil
}
