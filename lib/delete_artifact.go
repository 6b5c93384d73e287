package lib

import (
	"context"
	"fmt"

	"github.com/fiffu/substore/lib/events"
	"github.com/fiffu/substore/lib/models"
	"github.com/fiffu/substore/lib/reconcile"
	"github.com/fiffu/substore/lib/store"
)

// CascadeRoundSize bounds the pairs read and deleted per cascade round.
const CascadeRoundSize = 5000

var deletableStates = []models.State{models.StateActive, models.StateInactive}

type deleteArtifact struct {
	*base
	ledger     *reconcile.Ledger
	reconciler Reconciler
}

// DeleteArtifact deletes every subscription of an artifact. The target user must hold
// an ACTIVE AUTHOR subscription to it.
func (svc *deleteArtifact) DeleteArtifact(ctx context.Context, appID string, artifactID models.ArtifactID, userID string) (string, error) {
	if err := models.ValidateAppID(appID); err != nil {
		return "", err
	}
	target, err := svc.authorize(ctx, userID)
	if err != nil {
		return "", err
	}

	subs, err := svc.store.GetSubscriptionByIDs(ctx, appID, []models.State{models.StateActive}, []models.ArtifactID{artifactID}, target)
	if err != nil {
		return "", err
	}
	if len(subs) == 0 {
		return "", fmt.Errorf("%w: no active subscription for user %s", models.ErrNotFound, target)
	}
	if subs[0].Role != models.RoleAuthor {
		return "", fmt.Errorf("%w: user %s is not an author of the artifact", models.ErrForbidden, target)
	}

	status, err := svc.store.Delete(ctx, appID, artifactID, deletableStates)
	if err != nil {
		return status, err
	}

	evt := events.New(events.SubscriptionDeleted, subs[0].AppID)
	evt.ArtifactID = &artifactID
	evt.Status = status
	svc.publish(ctx, evt)
	return status, nil
}

type CascadeSummary struct {
	Status  string `json:"status"`
	Deleted int    `json:"deleted"`
	Rounds  int    `json:"rounds"`
}

// DeleteArtifactCascade deletes every subscription whose artifact id contains the given
// one, in rounds of at most CascadeRoundSize pairs. Chunks left incomplete are handed to
// reconciliation and the call fails.
func (svc *deleteArtifact) DeleteArtifactCascade(ctx context.Context, appID string, artifactID models.ArtifactID, userID string) (CascadeSummary, error) {
	if err := models.ValidateAppID(appID); err != nil {
		return CascadeSummary{}, err
	}
	target, err := svc.authorize(ctx, userID)
	if err != nil {
		return CascadeSummary{}, err
	}

	count, err := svc.store.GetAllArtifactIDCount(ctx, appID, artifactID, target)
	if err != nil {
		return CascadeSummary{}, err
	}
	if count.CountOfRows == 0 {
		return CascadeSummary{}, fmt.Errorf("%w: no subscriptions for the artifact", models.ErrNotFound)
	}
	if !count.UserIDMatch {
		return CascadeSummary{}, fmt.Errorf("%w: user %s is not an author of the artifact", models.ErrForbidden, target)
	}

	// Rows in states we do not delete would be returned forever, so rounds are capped.
	maxRounds := int(count.CountOfRows)/CascadeRoundSize + 1
	summary := CascadeSummary{}
	for summary.Rounds < maxRounds {
		pairs, err := svc.store.GetAllArtifactID(ctx, appID, artifactID, CascadeRoundSize)
		if err != nil {
			return summary, err
		}
		if len(pairs.UserIDs) == 0 {
			break
		}
		summary.Rounds++

		result, err := svc.store.DeleteCascade(ctx, appID, pairs.ArtifactIDs, pairs.UserIDs, deletableStates)
		if err != nil || !result.Complete() {
			return summary, svc.handOff(ctx, appID, artifactID, result, err)
		}
		summary.Deleted += len(pairs.UserIDs)

		if len(pairs.UserIDs) < CascadeRoundSize {
			break
		}
	}

	summary.Status = store.StatusDeleted
	evt := events.New(events.SubscriptionDeleted, appID)
	evt.ArtifactID = &artifactID
	evt.Status = summary.Status
	svc.publish(ctx, evt)
	return summary, nil
}

func (svc *deleteArtifact) handOff(ctx context.Context, appID string, artifactID models.ArtifactID, result store.CascadeResult, cause error) error {
	incomplete := result.Incomplete()
	if _, err := svc.ledger.Record(ctx, appID, deletableStates, incomplete, cause); err != nil {
		svc.log.Sugar().Errorw("Incomplete cascade was not recorded", "appId", appID, "chunks", len(incomplete), "err", err)
	} else {
		svc.reconciler.Nudge()
	}

	evt := events.New(events.CascadeIncomplete, appID)
	evt.ArtifactID = &artifactID
	evt.Status = store.StatusDeleteFailed
	svc.publish(ctx, evt)

	if cause == nil {
		cause = models.ErrStoreUnavailable
	}
	return fmt.Errorf("%s: %d chunks pending reconciliation: %w", store.StatusDeleteFailed, len(incomplete), cause)
}
