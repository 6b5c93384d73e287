package lib

import (
	"context"
	"fmt"

	"github.com/fiffu/substore/lib/auth"
	"github.com/fiffu/substore/lib/models"
)

type query struct {
	*base
}

// Subscriptions lists subscriptions to the given artifacts. User actors only see their
// own; applications see every user's unless userID is set.
func (svc *query) Subscriptions(ctx context.Context, appID string, artifactIDs []models.ArtifactID, states []models.State, userID string) (models.Subscriptions, error) {
	if err := models.ValidateAppID(appID); err != nil {
		return nil, err
	}
	userID, err := svc.narrow(ctx, userID)
	if err != nil {
		return nil, err
	}
	return svc.store.GetSubscriptionByIDs(ctx, appID, states, artifactIDs, userID)
}

// UserSubscriptions lists a user's ACTIVE subscriptions, optionally narrowed by role,
// app and artifact.
func (svc *query) UserSubscriptions(ctx context.Context, userID string, role models.Role, appID string, artifactID *models.ArtifactID) (models.Subscriptions, error) {
	if err := models.ValidateAppID(appID); err != nil {
		return nil, err
	}
	target, err := svc.authorize(ctx, userID)
	if err != nil {
		return nil, err
	}
	return svc.store.UserSubscriptions(ctx, target, []models.State{models.StateActive}, role, appID, artifactID)
}

// FetchSubscriptions reads one page. A fetchSize of zero or less takes the configured
// default, and any size is capped at the configured maximum.
func (svc *query) FetchSubscriptions(ctx context.Context, appID string, artifactIDs []models.ArtifactID, states []models.State, userID, pageState string, fetchSize int) (models.QueryResults, error) {
	if err := models.ValidateAppID(appID); err != nil {
		return models.QueryResults{}, err
	}
	userID, err := svc.narrow(ctx, userID)
	if err != nil {
		return models.QueryResults{}, err
	}
	if len(states) == 0 {
		states = []models.State{models.StateActive}
	}
	if fetchSize <= 0 {
		fetchSize = svc.cfg.Store.DefaultFetchSize
	}
	fetchSize = min(fetchSize, svc.cfg.Store.MaxPaginatedResults)

	return svc.store.GetPaginationResults(ctx, appID, states, artifactIDs, userID, pageState, fetchSize)
}

// narrow restricts user actors to themselves. Applications pass through unchanged.
func (svc *query) narrow(ctx context.Context, userID string) (string, error) {
	actor, ok := auth.ActorFrom(ctx)
	if !ok {
		return "", models.ErrUnauthenticated
	}
	if actor.IsService() {
		return userID, nil
	}
	if userID == "" {
		return actor.ID, nil
	}
	target, err := svc.authorize(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("%w: cannot read subscriptions of another user", models.ErrForbidden)
	}
	return target, nil
}
