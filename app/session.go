package app

import (
	"context"
	"fmt"

	"github.com/fiffu/substore/config"
	"github.com/fiffu/substore/lib/cassandra"
	"github.com/fiffu/substore/lib/sqlstore"
	"github.com/fiffu/substore/lib/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewSession picks the storage backend named by STORE_DRIVER.
func NewSession(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, db *gorm.DB) (store.Session, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		log.Info("Subscriptions are stored in SQLite")
		return sqlstore.NewSession(db, cfg.Store.DefaultFetchSize)

	case config.DriverCassandra:
		sess, err := cassandra.NewSession(cfg, log)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				sess.Close()
				return nil
			},
		})
		return sess, nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
}
