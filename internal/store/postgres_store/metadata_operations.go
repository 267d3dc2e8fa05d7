package postgres_store

import (
	"context"
	"fmt"

	"github.com/driftdata/driftsync/internal/store/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetVersion returns the persisted platform version, or "" when the config
// server has not run migrations yet.
func (ps PostgresDbStore) GetVersion(ctx context.Context) (string, error) {
	var meta models.Metadata
	err := db.WithContext(ctx).Where("key = ?", models.MetadataVersionKey).First(&meta).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return meta.Value, nil
}

// SetVersion upserts the platform version
func (ps PostgresDbStore) SetVersion(ctx context.Context, version string) error {
	meta := models.Metadata{Key: models.MetadataVersionKey, Value: version}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&meta).Error
	if err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	return nil
}
