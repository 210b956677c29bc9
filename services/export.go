package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"metamapa/storage"
)

// ExportTarget ist der Ausschnitt des Objektspeichers, den der Export benötigt.
type ExportTarget interface {
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (string, error)
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ExportService schreibt CSV-Snapshots der Hechos in den Bucket und rotiert alte Snapshots.
type ExportService struct {
	facts  storage.FactStore
	target ExportTarget
	prefix string
	keep   int
	logger *zap.Logger
	now    func() time.Time
}

func NewExportService(facts storage.FactStore, target ExportTarget, prefix string, keep int, logger *zap.Logger) *ExportService {
	return &ExportService{facts: facts, target: target, prefix: prefix, keep: keep, logger: logger, now: time.Now}
}

// ExportResult enthält die Links der hochgeladenen Dateien.
type ExportResult struct {
	FactsLink      string `json:"facts_link"`
	CategoriesLink string `json:"categories_link"`
	Facts          int    `json:"facts"`
}

func (e *ExportService) Export(ctx context.Context) (ExportResult, error) {
	facts, err := e.facts.FindAll(ctx)
	if err != nil {
		return ExportResult{}, err
	}
	ts := e.now().UTC()
	stamp := ts.Format("2006-01-02T15-04-05Z")

	var factsBuf bytes.Buffer
	w := csv.NewWriter(&factsBuf)
	_ = w.Write([]string{"ID", "Titulo", "Categoria", "Fecha_Hecho", "Latitud", "Longitud", "Provincia", "Municipio", "Corroboraciones", "Fuentes"})
	counts := make(map[string]int)
	for _, f := range facts {
		date := ""
		if f.EventDate != nil {
			date = f.EventDate.Format("2006-01-02")
		}
		_ = w.Write([]string{
			strconv.FormatUint(uint64(f.ID), 10),
			f.Title,
			f.Category,
			date,
			formatCoordinate(f.Latitude),
			formatCoordinate(f.Longitude),
			f.Province,
			f.Municipality,
			strconv.Itoa(f.Corroborations),
			strings.Join(f.SourceIDs(), ";"),
		})
		counts[f.Category]++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return ExportResult{}, err
	}

	catBuf, err := categoryCSV(counts, len(facts), ts)
	if err != nil {
		return ExportResult{}, err
	}

	meta := map[string]string{"generated-at": ts.Format(time.RFC3339)}
	factsLink, err := e.target.Put(ctx, e.prefix+"hechos-"+stamp+".csv", factsBuf.Bytes(), "text/csv", meta)
	if err != nil {
		return ExportResult{}, fmt.Errorf("upload facts export: %w", err)
	}
	catLink, err := e.target.Put(ctx, e.prefix+"categorias-"+stamp+".csv", catBuf, "text/csv", meta)
	if err != nil {
		return ExportResult{}, fmt.Errorf("upload category export: %w", err)
	}
	e.logger.Info("Export uploaded", zap.String("facts_link", factsLink), zap.Int("facts", len(facts)))

	for _, kind := range []string{"hechos-", "categorias-"} {
		if err := rotateObjects(ctx, e.target, e.prefix+kind, e.keep, e.logger); err != nil {
			e.logger.Error("Export rotation failed", zap.String("prefix", e.prefix+kind), zap.Error(err))
		}
	}
	return ExportResult{FactsLink: factsLink, CategoriesLink: catLink, Facts: len(facts)}, nil
}

func categoryCSV(counts map[string]int, total int, ts time.Time) ([]byte, error) {
	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if counts[categories[i]] != counts[categories[j]] {
			return counts[categories[i]] > counts[categories[j]]
		}
		return categories[i] < categories[j]
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Categoria", "Cantidad_Hechos", "Porcentaje", "Fecha_Calculo"})
	for _, c := range categories {
		pct := 0.0
		if total > 0 {
			pct = float64(counts[c]) * 100 / float64(total)
		}
		_ = w.Write([]string{c, strconv.Itoa(counts[c]), strconv.FormatFloat(pct, 'f', 2, 64), ts.Format(time.RFC3339)})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// rotateObjects behält die neuesten keep Objekte unter prefix und löscht den Rest.
func rotateObjects(ctx context.Context, target ExportTarget, prefix string, keep int, logger *zap.Logger) error {
	objects, err := target.List(ctx, prefix)
	if err != nil {
		return err
	}
	if keep <= 0 || len(objects) <= keep {
		return nil
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	for _, obj := range objects[keep:] {
		logger.Info("Deleting old object", zap.String("key", obj.Key))
		if err := target.Delete(ctx, obj.Key); err != nil {
			logger.Error("Failed to delete old object", zap.String("key", obj.Key), zap.Error(err))
		}
	}
	return nil
}
