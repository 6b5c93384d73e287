package app

import (
	"context"

	"github.com/fiffu/substore/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase opens the SQLite database holding the reconciliation ledger, and the
// subscription tables when the sqlite driver is selected.
func NewDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(cfg.Store.SQLitePath), &gorm.Config{})
	if err != nil {
		log.Sugar().Panicw("failed to connect database", "path", cfg.Store.SQLitePath, "err", err)
	}
	log.Sugar().Infow("Database started", "path", cfg.Store.SQLitePath)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db
}
