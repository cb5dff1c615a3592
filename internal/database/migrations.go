package database

import (
	"audio-tagging/internal/database/versions/migration_0"
	"log/slog"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:      "0",
			Migrate: migration_0.Migration,
		},
	})

	migrator.InitSchema(func(txn *gorm.DB) error {
		// Runs instead of the migration list when the database is empty, so a
		// fresh database goes straight to the latest schema.
		slog.Info("clean database detected, running full schema initialization")

		return txn.AutoMigrate(&BatchRun{}, &FileResult{}, &RunError{})
	})

	return migrator
}
