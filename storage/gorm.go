package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"metamapa/apperr"
	"metamapa/models"
)

// OpenPostgres öffnet die Datenbank und migriert das Schema.
func OpenPostgres(dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	log.Info("Successfully connected to database.")
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate legt alle Tabellen an bzw. aktualisiert sie.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Contributor{},
		&models.Fact{},
		&models.FactSource{},
		&models.FactTag{},
		&models.FactOriginFile{},
		&models.Collection{},
		&models.CollectionSource{},
		&models.CollectionCriterion{},
		&models.CollectionFact{},
	)
}

// FactRepository implementiert FactStore auf PostgreSQL.
type FactRepository struct {
	db *gorm.DB
}

func NewFactRepository(db *gorm.DB) *FactRepository {
	return &FactRepository{db: db}
}

// factTxLockKey serialisiert Fact-Transaktionen über pg_advisory_xact_lock.
const factTxLockKey = 0x4d4d4150

func (r *FactRepository) Transaction(ctx context.Context, fn func(tx FactStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", factTxLockKey).Error; err != nil {
			return apperr.WrapStorage("lock fact transaction", err)
		}
		return fn(&FactRepository{db: tx})
	})
}

func (r *FactRepository) withFacts(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Sources").Preload("Tags")
}

func (r *FactRepository) FindByFingerprint(ctx context.Context, fp string) (*models.Fact, error) {
	var f models.Fact
	err := r.withFacts(ctx).Where("fingerprint = ?", fp).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.WrapStorage("find fact by fingerprint", err)
	}
	return &f, nil
}

func (r *FactRepository) FindByID(ctx context.Context, id uint) (*models.Fact, error) {
	var f models.Fact
	err := r.withFacts(ctx).Where("id = ? AND deleted = ?", id, false).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewNotFound("fact", id)
	}
	if err != nil {
		return nil, apperr.WrapStorage("find fact", err)
	}
	return &f, nil
}

// Save schreibt den Hecho und ergänzt neue Quellen/Etiquetas; bestehende Zeilen bleiben unberührt.
func (r *FactRepository) Save(ctx context.Context, f *models.Fact) error {
	db := r.db.WithContext(ctx)
	var err error
	if f.ID == 0 {
		err = db.Omit(clause.Associations).Create(f).Error
	} else {
		err = db.Omit(clause.Associations).Save(f).Error
	}
	if err != nil {
		return apperr.WrapStorage("save fact", err)
	}

	for i := range f.Sources {
		f.Sources[i].FactID = f.ID
	}
	for i := range f.Tags {
		f.Tags[i].FactID = f.ID
	}
	if len(f.Sources) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&f.Sources).Error; err != nil {
			return apperr.WrapStorage("save fact sources", err)
		}
	}
	if len(f.Tags) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&f.Tags).Error; err != nil {
			return apperr.WrapStorage("save fact tags", err)
		}
	}
	return nil
}

func (r *FactRepository) FindBySource(ctx context.Context, sourceID string) ([]models.Fact, error) {
	var facts []models.Fact
	sub := r.db.WithContext(ctx).Model(&models.FactSource{}).Select("fact_id").Where("source_id = ?", sourceID)
	err := r.withFacts(ctx).Where("deleted = ? AND id IN (?)", false, sub).Order("id").Find(&facts).Error
	if err != nil {
		return nil, apperr.WrapStorage("find facts by source", err)
	}
	return facts, nil
}

func (r *FactRepository) FindAll(ctx context.Context) ([]models.Fact, error) {
	var facts []models.Fact
	if err := r.withFacts(ctx).Where("deleted = ?", false).Order("id").Find(&facts).Error; err != nil {
		return nil, apperr.WrapStorage("find facts", err)
	}
	return facts, nil
}

func (r *FactRepository) HasOriginFile(ctx context.Context, factID, fileID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.FactOriginFile{}).
		Where("fact_id = ? AND file_id = ?", factID, fileID).Count(&count).Error
	if err != nil {
		return false, apperr.WrapStorage("check origin file", err)
	}
	return count > 0, nil
}

func (r *FactRepository) LinkOriginFile(ctx context.Context, factID, fileID uint) error {
	link := models.FactOriginFile{FactID: factID, FileID: fileID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
	return apperr.WrapStorage("link origin file", err)
}

func (r *FactRepository) ContributorExists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Contributor{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, apperr.WrapStorage("check contributor", err)
	}
	return count > 0, nil
}

// CollectionRepository implementiert CollectionStore auf PostgreSQL.
type CollectionRepository struct {
	db *gorm.DB
}

func NewCollectionRepository(db *gorm.DB) *CollectionRepository {
	return &CollectionRepository{db: db}
}

func (r *CollectionRepository) Find(ctx context.Context, id uint) (*models.Collection, error) {
	var c models.Collection
	err := r.db.WithContext(ctx).
		Preload("Sources").
		Preload("Criteria").
		Preload("Members").
		Preload("Members.Fact").
		Preload("Members.Fact.Sources").
		Preload("Members.Fact.Tags").
		First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewNotFound("collection", id)
	}
	if err != nil {
		return nil, apperr.WrapStorage("find collection", err)
	}
	return &c, nil
}

func (r *CollectionRepository) FindVisible(ctx context.Context) ([]models.Collection, error) {
	var cs []models.Collection
	err := r.db.WithContext(ctx).Preload("Sources").Preload("Criteria").
		Where("hidden = ?", false).Order("id").Find(&cs).Error
	if err != nil {
		return nil, apperr.WrapStorage("find visible collections", err)
	}
	return cs, nil
}

func (r *CollectionRepository) Create(ctx context.Context, c *models.Collection) error {
	err := r.db.WithContext(ctx).Omit("Members").Create(c).Error
	return apperr.WrapStorage("create collection", err)
}

func (r *CollectionRepository) Save(ctx context.Context, c *models.Collection) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(c).Error; err != nil {
			return err
		}
		if err := tx.Where("collection_id = ?", c.ID).Delete(&models.CollectionFact{}).Error; err != nil {
			return err
		}
		if len(c.Members) == 0 {
			return nil
		}
		for i := range c.Members {
			c.Members[i].CollectionID = c.ID
		}
		return tx.Omit("Fact").Create(&c.Members).Error
	})
	return apperr.WrapStorage("save collection", err)
}

func (r *CollectionRepository) HandleExists(ctx context.Context, handle string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Collection{}).Where("handle = ?", handle).Count(&count).Error; err != nil {
		return false, apperr.WrapStorage("check handle", err)
	}
	return count > 0, nil
}
