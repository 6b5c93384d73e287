package reconcile

import (
	"context"
	"time"

	"github.com/fiffu/substore/lib/models"
	"github.com/fiffu/substore/lib/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PendingCascade is a cascade delete chunk that still holds rows in at least one table.
// ArtifactIDs[i] pairs with UserIDs[i].
type PendingCascade struct {
	ID          string              `gorm:"primaryKey"`
	AppID       string              `gorm:"index"`
	ArtifactIDs []models.ArtifactID `gorm:"serializer:json"`
	UserIDs     []string            `gorm:"serializer:json"`
	States      []models.State      `gorm:"serializer:json"`
	Attempts    int
	Abandoned   bool `gorm:"index"`
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Ledger struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewLedger(db *gorm.DB, log *zap.Logger) (*Ledger, error) {
	if err := db.AutoMigrate(&PendingCascade{}); err != nil {
		return nil, err
	}
	return &Ledger{db, log}, nil
}

// Record stores one entry per incomplete chunk.
func (l *Ledger) Record(ctx context.Context, appID string, states []models.State, chunks []store.CascadeChunk, cause error) ([]PendingCascade, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	var lastError string
	if cause != nil {
		lastError = cause.Error()
	}

	recs := make([]PendingCascade, len(chunks))
	for i, c := range chunks {
		recs[i] = PendingCascade{
			ID:          uuid.NewString(),
			AppID:       appID,
			ArtifactIDs: c.ArtifactIDs,
			UserIDs:     c.UserIDs,
			States:      states,
			LastError:   lastError,
		}
	}
	if err := l.db.WithContext(ctx).Create(&recs).Error; err != nil {
		l.log.Sugar().Errorw("Failed to record incomplete cascade", "appId", appID, "chunks", len(chunks), "err", err)
		return nil, err
	}
	l.log.Sugar().Warnw("Recorded incomplete cascade", "appId", appID, "chunks", len(chunks))
	return recs, nil
}

// Pending returns records still being retried, oldest first.
func (l *Ledger) Pending(ctx context.Context) ([]PendingCascade, error) {
	var recs []PendingCascade
	tx := l.db.WithContext(ctx).Where("abandoned = ?", false).Order("created_at").Find(&recs)
	return recs, tx.Error
}

// EachPending visits records still being retried, batchSize at a time in key order.
func (l *Ledger) EachPending(ctx context.Context, batchSize int, fn func(*PendingCascade)) error {
	var batch []PendingCascade
	tx := l.db.WithContext(ctx).
		Where("abandoned = ?", false).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, n int) error {
			for i := range batch {
				fn(&batch[i])
			}
			return nil
		})
	return tx.Error
}

func (l *Ledger) Abandoned(ctx context.Context) ([]PendingCascade, error) {
	var recs []PendingCascade
	tx := l.db.WithContext(ctx).Where("abandoned = ?", true).Order("created_at").Find(&recs)
	return recs, tx.Error
}

func (l *Ledger) Resolve(ctx context.Context, rec *PendingCascade) error {
	return l.db.WithContext(ctx).Delete(rec).Error
}

// Fail counts a failed attempt and abandons the record once maxAttempts is reached.
func (l *Ledger) Fail(ctx context.Context, rec *PendingCascade, cause error, maxAttempts int) error {
	rec.Attempts++
	rec.LastError = cause.Error()
	rec.Abandoned = rec.Attempts >= maxAttempts
	return l.db.WithContext(ctx).
		Model(rec).
		Select("attempts", "last_error", "abandoned").
		Updates(rec).Error
}
