package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"metamapa/apperr"
	"metamapa/models"
	"metamapa/storage"
)

// CreateCollectionInput sind die Angaben einer administrativen Anlage.
type CreateCollectionInput struct {
	Title       string                       `json:"title"`
	Description string                       `json:"description"`
	Algorithm   string                       `json:"algorithm"`
	AdminID     *uint                        `json:"admin_id"`
	Sources     []string                     `json:"sources"`
	Criteria    []models.CollectionCriterion `json:"criteria"`
}

// CollectionService legt Colecciones an und blendet sie aus.
type CollectionService struct {
	store  storage.CollectionStore
	logger *zap.Logger
}

func NewCollectionService(store storage.CollectionStore, logger *zap.Logger) *CollectionService {
	return &CollectionService{store: store, logger: logger}
}

func (s *CollectionService) Create(ctx context.Context, in CreateCollectionInput) (*models.Collection, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.NewValidation("title", "is required")
	}

	alg, known := models.LookupAlgorithm(in.Algorithm)
	if !known && strings.TrimSpace(in.Algorithm) != "" {
		s.logger.Warn("Unknown consensus algorithm, falling back to default",
			zap.String("algorithm", in.Algorithm), zap.String("fallback", string(alg)))
	}

	handle, err := s.uniqueHandle(ctx, title)
	if err != nil {
		return nil, err
	}

	c := &models.Collection{
		Handle:      handle,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		AdminID:     in.AdminID,
		Algorithm:   alg,
	}
	for _, src := range uniqueTrimmed(in.Sources) {
		c.Sources = append(c.Sources, models.CollectionSource{SourceID: src})
	}
	for _, crit := range in.Criteria {
		crit.ID = 0
		crit.Kind = models.CriterionKind(strings.ToUpper(strings.TrimSpace(string(crit.Kind))))
		c.Criteria = append(c.Criteria, crit)
	}

	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("Collection created", zap.Uint("collection_id", c.ID), zap.String("handle", c.Handle), zap.String("algorithm", string(c.Algorithm)))
	return c, nil
}

// Hide blendet eine Colección aus (soft delete).
func (s *CollectionService) Hide(ctx context.Context, id uint) error {
	c, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	c.Hidden = true
	return s.store.Save(ctx, c)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug leitet einen Handle aus einem Titel ab.
func Slug(title string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(NormalizeText(title), "-"), "-")
	if slug == "" {
		return "coleccion"
	}
	return slug
}

func (s *CollectionService) uniqueHandle(ctx context.Context, title string) (string, error) {
	handle := Slug(title)
	exists, err := s.store.HandleExists(ctx, handle)
	if err != nil {
		return "", err
	}
	if !exists {
		return handle, nil
	}
	return handle + "-" + uuid.NewString()[:8], nil
}
