package services

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"metamapa/apperr"
	"metamapa/models"
)

// Normalizer bringt rohe Hechos in ihre kanonische Form. Normalize ist rein und idempotent.
type Normalizer struct {
	categories CategoryResolver
	places     PlaceResolver
}

func NewNormalizer(categories CategoryResolver, places PlaceResolver) *Normalizer {
	if categories == nil {
		categories = PassThroughResolver{}
	}
	if places == nil {
		places = BoundingBoxResolver{}
	}
	return &Normalizer{categories: categories, places: places}
}

// Normalize liefert einen noch nicht persistierten Hecho. Fehler sind immer *apperr.ValidationError.
func (n *Normalizer) Normalize(raw models.RawFact) (models.Fact, error) {
	title := NormalizeText(raw.Title)
	if title == "" {
		return models.Fact{}, apperr.NewValidation("title", "is required")
	}

	f := models.Fact{
		Title:         title,
		Description:   NormalizeText(raw.Description),
		Origin:        strings.TrimSpace(raw.Origin),
		Anonymous:     raw.Anonymous,
		ContributorID: raw.ContributorID,
		OriginFileID:  raw.OriginFileID,
		Country:       strings.TrimSpace(raw.Country),
		Province:      strings.TrimSpace(raw.Province),
		Municipality:  strings.TrimSpace(raw.Municipality),
	}
	f.Category = n.categories.Classify(f.Title, f.Description, raw.Category)

	date, err := ParseEventDate(string(raw.EventDate))
	if err != nil {
		return models.Fact{}, apperr.NewValidationWrap("event_date", "cannot parse "+strconv.Quote(string(raw.EventDate)), err)
	}
	f.EventDate = date

	if raw.Latitude != nil && raw.Longitude != nil && finite(*raw.Latitude) && finite(*raw.Longitude) {
		lat, lon := RoundCoordinate(*raw.Latitude), RoundCoordinate(*raw.Longitude)
		f.Latitude, f.Longitude = &lat, &lon
		if f.Country == "" && f.Province == "" && f.Municipality == "" && validCoordinates(lat, lon) {
			p := n.places.Resolve(lat, lon)
			f.Country, f.Province, f.Municipality = p.Country, p.Province, p.Municipality
		}
	}

	for _, tag := range uniqueTrimmed(raw.Tags) {
		f.Tags = append(f.Tags, models.FactTag{Name: tag})
	}
	for _, src := range uniqueTrimmed(raw.Sources) {
		f.AddSource(src)
	}
	return f, nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText: Kleinschreibung, Diakritika entfernen, Whitespace zusammenfassen.
func NormalizeText(s string) string {
	stripped, _, err := transform.String(stripMarks, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// RoundCoordinate rundet kaufmännisch (half-up) auf 5 Nachkommastellen.
func RoundCoordinate(v float64) float64 {
	return math.Floor(v*1e5+0.5) / 1e5
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

var dateLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"2/1/2006",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2/1/2006 15:04",
}

// YYYYMMDD hat Vorrang vor Epoch-Sekunden gleicher Länge.
const compactDateLayout = "20060102"

// ParseEventDate akzeptiert die historischen Datumsformate und liefert Mitternacht UTC.
// Ein leerer Wert ist gültig und ergibt nil.
func ParseEventDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if len(s) == len(compactDateLayout) {
		if t, err := time.Parse(compactDateLayout, s); err == nil {
			return midnight(t), nil
		}
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		var t time.Time
		if epoch > 1e11 || epoch < -1e11 {
			t = time.UnixMilli(epoch)
		} else {
			t = time.Unix(epoch, 0)
		}
		return midnight(t.UTC()), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return midnight(t), nil
		}
	}
	return nil, apperr.ErrInvalidDateFormat
}

func midnight(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func uniqueTrimmed(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
