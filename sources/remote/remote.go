package remote

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"metamapa/models"
	"metamapa/sources"
)

const Type = "proxy"

const publicFactsPath = "/api/public/hechos"

// Source liest die öffentlichen Hechos einer föderierten MetaMapa-Instanz.
type Source struct {
	id      string
	baseURL string
	logger  *zap.Logger
}

// New leitet die ID aus dem Host der Instanz ab ("proxy:<host>").
func New(baseURL string, logger *zap.Logger) (*Source, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid remote instance url %q", baseURL)
	}
	id := Type + ":" + u.Host
	return &Source{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With(zap.String("source", id)),
	}, nil
}

func (s *Source) ID() string   { return s.id }
func (s *Source) Type() string { return Type }

// ListFacts übernimmt Inhalt und Ort; Provenienz und Aufzeichner der fremden Instanz werden verworfen.
func (s *Source) ListFacts(ctx context.Context) ([]models.RawFact, error) {
	var facts []models.Fact
	if err := sources.GetJSON(ctx, s.baseURL+publicFactsPath, &facts); err != nil {
		return nil, fmt.Errorf("fetch remote facts: %w", err)
	}
	out := make([]models.RawFact, 0, len(facts))
	for _, f := range facts {
		if f.Deleted {
			continue
		}
		raw := f.ToRaw()
		raw.Sources = nil
		raw.ContributorID = nil
		raw.Origin = ""
		out = append(out, raw)
	}
	s.logger.Debug("Remote instance returned facts", zap.Int("count", len(out)))
	return out, nil
}
