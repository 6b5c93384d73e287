package cassandra

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fiffu/substore/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.cql
var migrations embed.FS

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies the embedded schema migrations in the given direction, creating the
// keyspace first when needed.
func Migrate(cfg *config.Config, log *zap.Logger, dir Direction) error {
	if err := ensureKeyspace(cfg); err != nil {
		return err
	}

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL(cfg))
	if err != nil {
		return fmt.Errorf("failed to init migrate: %w", err)
	}
	defer m.Close()

	switch dir {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return fmt.Errorf("unknown migration direction %q", dir)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Sugar().Infow("Schema already current", "direction", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, _ := m.Version()
	log.Sugar().Infow("Migrations applied", "direction", dir, "version", version, "dirty", dirty)
	return nil
}

func databaseURL(cfg *config.Config) string {
	q := url.Values{}
	q.Set("x-multi-statement", "true")
	q.Set("consistency", "LOCAL_QUORUM")
	q.Set("timeout", cfg.CassandraTimeout().String())
	if cfg.Cassandra.Username != "" {
		q.Set("username", cfg.Cassandra.Username)
		q.Set("password", cfg.Cassandra.Password)
	}
	host := cfg.Cassandra.Hosts[0] + ":" + strconv.Itoa(cfg.Cassandra.Port)
	u := url.URL{Scheme: "cassandra", Host: host, Path: "/" + cfg.Cassandra.Keyspace, RawQuery: q.Encode()}
	return u.String()
}

func ensureKeyspace(cfg *config.Config) error {
	cluster := NewCluster(cfg)
	cluster.Keyspace = ""
	sess, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("connecting to cassandra: %w", err)
	}
	defer sess.Close()

	stmt := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		cfg.Cassandra.Keyspace, cfg.Cassandra.ReplicationFactor,
	)
	return sess.Query(stmt).Exec()
}
