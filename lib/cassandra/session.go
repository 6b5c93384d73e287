// Package cassandra runs the subscription store against a Cassandra cluster.
package cassandra

import (
	"context"
	"fmt"

	"github.com/fiffu/substore/config"
	"github.com/fiffu/substore/lib/store"
	"github.com/gocql/gocql"
	"go.uber.org/zap"
)

type Session struct {
	session          *gocql.Session
	log              *zap.Logger
	defaultFetchSize int
}

var _ store.Session = (*Session)(nil)

func NewCluster(cfg *config.Config) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Cassandra.Hosts...)
	cluster.Port = cfg.Cassandra.Port
	cluster.Keyspace = cfg.Cassandra.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = cfg.CassandraTimeout()
	if cfg.Cassandra.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Cassandra.Username,
			Password: cfg.Cassandra.Password,
		}
	}
	return cluster
}

func NewSession(cfg *config.Config, log *zap.Logger) (*Session, error) {
	sess, err := NewCluster(cfg).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connecting to cassandra: %w", err)
	}
	log.Sugar().Infow("Cassandra session started", "hosts", cfg.Cassandra.Hosts, "keyspace", cfg.Cassandra.Keyspace)
	return &Session{sess, log, cfg.Store.DefaultFetchSize}, nil
}

func (s *Session) Close() {
	s.session.Close()
}

func (s *Session) Execute(ctx context.Context, stmt store.Statement) ([]store.Row, error) {
	iter := s.session.Query(stmt.Query, stmt.Args...).WithContext(ctx).Iter()
	maps, err := iter.SliceMap()
	if err != nil {
		return nil, err
	}
	rows := make([]store.Row, len(maps))
	for i, m := range maps {
		rows[i] = store.Row(m)
	}
	return rows, nil
}

// Batch runs the statements as one logged batch.
func (s *Session) Batch(ctx context.Context, stmts []store.Statement) error {
	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, stmt := range stmts {
		b.Query(stmt.Query, stmt.Args...)
	}
	return s.session.ExecuteBatch(b)
}

// Paginate fetches a single page. Setting the page state, even to nil, turns off the
// driver's automatic paging, so the iterator never crosses into the next page.
func (s *Session) Paginate(ctx context.Context, stmt store.Statement, pageState []byte, fetchSize int, fn func(store.Row) error) ([]byte, error) {
	if fetchSize <= 0 {
		fetchSize = s.defaultFetchSize
	}
	iter := s.session.Query(stmt.Query, stmt.Args...).
		WithContext(ctx).
		PageSize(fetchSize).
		PageState(pageState).
		Iter()
	next := iter.PageState()

	for n := 0; n < fetchSize; n++ {
		row := map[string]any{}
		if !iter.MapScan(row) {
			break
		}
		if err := fn(store.Row(row)); err != nil {
			iter.Close()
			return nil, err
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	if len(next) == 0 {
		return nil, nil
	}
	return next, nil
}
