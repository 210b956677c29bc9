package services

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"strconv"
	"strings"

	"metamapa/models"
)

// Fingerprinter berechnet den Dedup-Schlüssel eines normalisierten Hechos.
type Fingerprinter struct {
	digest func([]byte) string
}

// NewFingerprinter nutzt SHA-256 (hex, 64 Zeichen).
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{digest: func(b []byte) string {
		sum := sha256.Sum256(b)
		return hex.EncodeToString(sum[:])
	}}
}

// NewWeakFingerprinter nutzt FNV-64a. Kollisionen sind deutlich wahrscheinlicher als mit SHA-256;
// nur für Umgebungen gedacht, in denen der kryptographische Digest nicht verfügbar ist.
// Fingerprints sind Dedup-Schlüssel, kein Sicherheitsmerkmal.
func NewWeakFingerprinter() *Fingerprinter {
	return &Fingerprinter{digest: func(b []byte) string {
		h := fnv.New64a()
		_, _ = h.Write(b)
		return strconv.FormatUint(h.Sum64(), 16)
	}}
}

func (fp *Fingerprinter) Fingerprint(f models.Fact) string {
	return fp.digest([]byte(CanonicalString(f)))
}

// CanonicalString: titel|beschreibung|kategorie|lat|lon|datum, fehlende Felder als Leerstring.
func CanonicalString(f models.Fact) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(f.Title)),
		strings.ToLower(strings.TrimSpace(f.Description)),
		f.Category,
		formatCoordinate(f.Latitude),
		formatCoordinate(f.Longitude),
		"",
	}
	if f.EventDate != nil {
		parts[5] = f.EventDate.UTC().Format("2006-01-02T15:04:05")
	}
	return strings.Join(parts, "|")
}

func formatCoordinate(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 5, 64)
}
