package database

import (
	"tabletally/internal/logger"
	"tabletally/internal/models"
)

// MigrateModels runs GORM AutoMigrate for all models
func (db *DB) MigrateModels() error {
	log := logger.New("database").Function("MigrateModels")
	log.Info("Starting database migration")

	modelsToMigrate := []interface{}{
		&models.User{},
		&models.Group{},
		&models.BoardGame{},
		&models.Play{},
		&models.PlayParticipant{},
		&models.BGGCredential{},
		&models.SyncRun{},
	}

	for _, model := range modelsToMigrate {
		if err := db.SQL.AutoMigrate(model); err != nil {
			return log.Err("failed to migrate model", err, "model", model)
		}
	}

	log.Info("Database migration completed successfully")
	return nil
}

// CreateIndexes creates composite indexes that GORM doesn't create
// automatically. The grouping-key index keeps duplicate-candidate lookup
// proportional to plays sharing the key, not all plays.
func (db *DB) CreateIndexes() error {
	log := logger.New("database").Function("CreateIndexes")
	log.Info("Creating additional database indexes")

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_plays_grouping_leading ON plays(board_game_id, play_date, group_id) WHERE is_excluded = false AND deleted_at IS NULL",
		"CREATE INDEX IF NOT EXISTS idx_plays_source_user_date ON plays(created_by_id, source, play_date)",
		"CREATE INDEX IF NOT EXISTS idx_plays_outbound_pending ON plays(request_outbound_sync) WHERE request_outbound_sync = true",
		"CREATE INDEX IF NOT EXISTS idx_board_games_stale ON board_games(last_synced_at) WHERE is_expansion = false",
	}

	for _, index := range indexes {
		if err := db.SQL.Exec(index).Error; err != nil {
			return log.Err("failed to create index", err, "index", index)
		}
	}

	log.Info("Additional indexes created successfully")
	return nil
}
