package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fiffu/substore/lib/models"
	"go.uber.org/zap"
)

// Store keeps the subscriptions table and its user_subscriptions projection consistent.
// Every write that touches one table touches the other in the same batch, except the
// chunked cascade delete.
type Store struct {
	log     *zap.Logger
	session Session
	now     func() time.Time
}

func NewStore(log *zap.Logger, session Session) *Store {
	return &Store{
		log:     log,
		session: session,
		now:     func() time.Time { return storeTime(time.Now()) },
	}
}

func (s *Store) execute(ctx context.Context, stmt Statement) ([]Row, error) {
	rows, err := s.session.Execute(ctx, stmt)
	if err != nil {
		s.log.Sugar().Errorw("Statement failed", "stmt", stmt.Name, "err", err)
		return nil, fmt.Errorf("%w: %s: %w", models.ErrStoreUnavailable, stmt.Name, err)
	}
	return rows, nil
}

func (s *Store) batch(ctx context.Context, stmts []Statement) error {
	s.log.Sugar().Debugw("Executing batch", "stmts", statementNames(stmts))
	if err := s.session.Batch(ctx, stmts); err != nil {
		s.log.Sugar().Errorw("Batch failed", "stmts", statementNames(stmts), "err", err)
		return fmt.Errorf("%w: batch: %w", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) paginate(ctx context.Context, stmt Statement, pageState string, fetchSize int) (Page, error) {
	page, err := paginate(ctx, s.session, stmt, pageState, fetchSize)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			return Page{}, err
		}
		s.log.Sugar().Errorw("Paginate failed", "stmt", stmt.Name, "err", err)
		return Page{}, fmt.Errorf("%w: %s: %w", models.ErrStoreUnavailable, stmt.Name, err)
	}
	return page, nil
}
