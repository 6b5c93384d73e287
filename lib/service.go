package lib

import (
	"context"
	"fmt"

	"github.com/fiffu/substore/config"
	"github.com/fiffu/substore/lib/auth"
	"github.com/fiffu/substore/lib/events"
	"github.com/fiffu/substore/lib/models"
	"github.com/fiffu/substore/lib/reconcile"
	"github.com/fiffu/substore/lib/store"
	"go.uber.org/zap"
)

// Service applies authorization and input rules in front of the store, and announces
// changes as events.
type Service struct {
	*subscribe
	*deleteArtifact
	*query
}

type base struct {
	cfg    *config.Config
	log    *zap.Logger
	store  *store.Store
	gate   auth.Gate
	events events.Publisher
}

// Reconciler is woken when a cascade leaves chunks for it to retry.
type Reconciler interface {
	Nudge()
}

func NewService(cfg *config.Config, log *zap.Logger, st *store.Store, gate auth.Gate, publisher events.Publisher, ledger *reconcile.Ledger, reconciler Reconciler) *Service {
	b := &base{cfg, log, st, gate, publisher}
	return &Service{
		&subscribe{b},
		&deleteArtifact{b, ledger, reconciler},
		&query{b},
	}
}

// authorize resolves the user an operation acts on. An empty userID means the actor
// itself, which only user actors may omit.
func (b *base) authorize(ctx context.Context, userID string) (string, error) {
	actor, ok := auth.ActorFrom(ctx)
	if !ok {
		return "", models.ErrUnauthenticated
	}

	target := userID
	if target == "" {
		if actor.IsService() {
			return "", fmt.Errorf("%w: userId is required", models.ErrBadRequest)
		}
		target = actor.ID
	}

	allowed, err := b.gate.IsAuthorizedActor(ctx, actor, target)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrForbidden, err)
	}
	if !allowed {
		b.log.Sugar().Infow("Actor not authorized", "actor", actor.ID, "target", target)
		return "", fmt.Errorf("%w: not authorized to act for user %s", models.ErrForbidden, target)
	}
	return target, nil
}

// publish never fails the caller.
func (b *base) publish(ctx context.Context, evt events.Event) {
	if actor, ok := auth.ActorFrom(ctx); ok {
		evt.Actor = actor.ID
	}
	if err := b.events.Publish(ctx, evt); err != nil {
		b.log.Sugar().Warnw("Event dropped", "type", evt.Type, "appId", evt.AppID, "err", err)
	}
}

func validateArtifactInput(appID string, artifact models.Artifact) error {
	if err := models.ValidateAppID(appID); err != nil {
		return err
	}
	return models.ValidateArtifactDates(artifact)
}

func subscriptionIDs(subs models.Subscriptions) []models.SubscriptionID {
	ids := make([]models.SubscriptionID, len(subs))
	for i, s := range subs {
		ids[i] = s.ID()
	}
	return ids
}
