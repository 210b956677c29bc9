package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	// postgres | memory
	StorageType string `envconfig:"STORAGE_TYPE" default:"postgres"`

	DBHost     string `envconfig:"DB_HOST"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	IngestCron    string `envconfig:"INGEST_CRON" default:"@every 1h"`
	ConsensusCron string `envconfig:"CONSENSUS_CRON" default:"0 2 * * *"`

	// Colección, die nach jeder Ingesta aktualisiert wird
	DefaultCollectionID uint `envconfig:"DEFAULT_COLLECTION_ID" default:"1"`

	// taxonomy | stub
	TaxonomyProfile string `envconfig:"TAXONOMY_PROFILE" default:"taxonomy"`
	TaxonomyFile    string `envconfig:"TAXONOMY_FILE"`

	// merge_events | distinct_sources
	CorroborationMode string `envconfig:"CORROBORATION_MODE" default:"merge_events"`
	// live | store
	PartitionMode      string `envconfig:"PARTITION_MODE" default:"live"`
	RefreshParallelism int    `envconfig:"REFRESH_PARALLELISM" default:"5"`

	// Quellen-Konfiguration
	EnabledSources   string `envconfig:"ENABLED_SOURCES" default:"dinamica,estatica,proxy"`
	DynamicSourceURL string `envconfig:"DYNAMIC_SOURCE_URL" default:"http://localhost:8081/api/hechos"`
	RemoteSourceURLs string `envconfig:"REMOTE_SOURCE_URLS"`

	S3URL           string `envconfig:"S3_URL"`
	S3Region        string `envconfig:"S3_REGION" default:"eu-central-1"`
	S3Key           string `envconfig:"S3_KEY"`
	S3Secret        string `envconfig:"S3_SECRET"`
	S3Bucket        string `envconfig:"S3_BUCKET"`
	S3DatasetPrefix string `envconfig:"S3_DATASET_PREFIX" default:"datasets/"`
	S3ExportPrefix  string `envconfig:"S3_EXPORT_PREFIX" default:"exports/"`
	KeepExports     int    `envconfig:"KEEP_EXPORTS" default:"4"`
	S3BackupPrefix  string `envconfig:"S3_BACKUP_PREFIX" default:"backups/"`
	KeepBackups     int    `envconfig:"KEEP_BACKUPS" default:"4"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Sources liefert die aktivierten Quelltypen in konfigurierter Reihenfolge.
func (c *Config) Sources() []string {
	return splitList(c.EnabledSources)
}

// RemoteURLs liefert die Basis-URLs der föderierten MetaMapa-Instanzen.
func (c *Config) RemoteURLs() []string {
	return splitList(c.RemoteSourceURLs)
}

// S3Enabled meldet, ob ein Objektspeicher konfiguriert ist.
func (c *Config) S3Enabled() bool {
	return c.S3URL != "" && c.S3Bucket != ""
}

// Validate prüft feldübergreifende Abhängigkeiten, die envconfig nicht ausdrücken kann.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageType {
	case "postgres":
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			errs = append(errs, errors.New("STORAGE_TYPE=postgres requires DB_HOST, DB_USER and DB_NAME"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType))
	}
	switch c.TaxonomyProfile {
	case "taxonomy", "stub":
	default:
		errs = append(errs, fmt.Errorf("unknown TAXONOMY_PROFILE %q", c.TaxonomyProfile))
	}
	switch c.CorroborationMode {
	case "merge_events", "distinct_sources":
	default:
		errs = append(errs, fmt.Errorf("unknown CORROBORATION_MODE %q", c.CorroborationMode))
	}
	switch c.PartitionMode {
	case "live", "store":
	default:
		errs = append(errs, fmt.Errorf("unknown PARTITION_MODE %q", c.PartitionMode))
	}
	if c.RefreshParallelism < 1 {
		errs = append(errs, errors.New("REFRESH_PARALLELISM must be at least 1"))
	}
	for _, s := range c.Sources() {
		if s == "estatica" && !c.S3Enabled() {
			errs = append(errs, errors.New("source estatica requires S3_URL and S3_BUCKET"))
		}
	}
	return errors.Join(errs...)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return &c, err
	}
	return &c, c.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
