package static

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"metamapa/models"
	"metamapa/storage"
)

const Type = "estatica"

// DatasetIDKey ist der Metadaten-Schlüssel, unter dem die Datei-ID eines Datasets abgelegt ist.
const DatasetIDKey = "dataset-id"

// ObjectReader ist der Ausschnitt des Objektspeichers, den die Quelle benötigt.
type ObjectReader interface {
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, map[string]string, error)
}

// Source liest CSV-Datasets aus einem Bucket.
// Erwartetes Format: Titulo,Descripcion,Categoria,Latitud,Longitud,Fecha del hecho (DD/MM/YYYY).
type Source struct {
	id     string
	store  ObjectReader
	prefix string
	logger *zap.Logger
}

func New(id string, store ObjectReader, prefix string, logger *zap.Logger) *Source {
	return &Source{id: id, store: store, prefix: prefix, logger: logger.With(zap.String("source", id))}
}

func (s *Source) ID() string   { return s.id }
func (s *Source) Type() string { return Type }

func (s *Source) ListFacts(ctx context.Context) ([]models.RawFact, error) {
	objects, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}

	var facts []models.RawFact
	for _, obj := range objects {
		if !strings.HasSuffix(strings.ToLower(obj.Key), ".csv") {
			continue
		}
		log := s.logger.With(zap.String("key", obj.Key))

		data, meta, err := s.store.Get(ctx, obj.Key)
		if err != nil {
			log.Error("Failed to read dataset", zap.Error(err))
			continue
		}
		fileID := datasetID(meta)

		parsed, skipped, err := ParseCSV(bytes.NewReader(data))
		if err != nil {
			log.Error("Failed to parse dataset", zap.Error(err))
			continue
		}
		if skipped > 0 {
			log.Warn("Skipped invalid dataset rows", zap.Int("skipped", skipped))
		}
		for i := range parsed {
			parsed[i].OriginFileID = fileID
		}
		facts = append(facts, parsed...)
	}
	return facts, nil
}

// ParseCSV liest ein Dataset. Die erste Zeile ist die Kopfzeile; Zeilen mit zu wenig Feldern
// oder ungültigen Koordinaten werden gezählt und übersprungen.
func ParseCSV(r io.Reader) ([]models.RawFact, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, 0, err
	}
	if len(rows) <= 1 {
		return nil, 0, nil
	}

	var facts []models.RawFact
	skipped := 0
	for _, row := range rows[1:] {
		if len(row) < 6 || strings.TrimSpace(row[0]) == "" {
			skipped++
			continue
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(row[4]), 64)
		if errLat != nil || errLon != nil || !finite(lat) || !finite(lon) {
			skipped++
			continue
		}
		facts = append(facts, models.RawFact{
			Title:       strings.TrimSpace(row[0]),
			Description: strings.TrimSpace(row[1]),
			Category:    strings.TrimSpace(row[2]),
			Latitude:    &lat,
			Longitude:   &lon,
			EventDate:   models.RawDate(strings.TrimSpace(row[5])),
		})
	}
	return facts, skipped, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func datasetID(meta map[string]string) *uint {
	for k, v := range meta {
		if !strings.EqualFold(k, DatasetIDKey) {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil
		}
		u := uint(id)
		return &u
	}
	return nil
}
