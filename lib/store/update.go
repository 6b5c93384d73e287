package store

import (
	"context"
	"fmt"

	"github.com/fiffu/substore/lib/models"
)

// UpdateSubscriptions rewrites the content fields of existing ACTIVE rows. Every row is
// read before anything is written; a missing row fails the whole call with ErrNotFound.
func (s *Store) UpdateSubscriptions(ctx context.Context, inputs []models.SubscriptionInput) (models.Subscriptions, error) {
	if len(inputs) == 0 {
		return models.Subscriptions{}, nil
	}

	for _, in := range inputs {
		if err := validateUpdate(in); err != nil {
			return nil, err
		}
	}

	now := s.now()
	stmts := make([]Statement, 0, len(inputs))
	updated := make(models.Subscriptions, 0, len(inputs))
	for _, in := range inputs {
		key := keyOfInput(in)
		rows, err := s.execute(ctx, selectSubscription(key))
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: app %s artifact %v user %s", models.ErrNotFound, key.AppID, key.ArtifactIDs, key.UserID)
		}
		sub, err := fromRow(rows[0])
		if err != nil {
			return nil, err
		}

		sub = merge(sub, in)
		sub.UpdatedDate = now
		sub = normalize(sub)
		stmts = append(stmts, updateSubscription(toRow(sub)))
		updated = append(updated, sub)
	}

	if err := s.batch(ctx, stmts); err != nil {
		return nil, err
	}
	s.log.Sugar().Infow("Updated subscriptions", "count", len(updated))
	return updated, nil
}

// validateUpdate checks the fields merge would write. Empty role and settings are
// allowed and keep the stored values.
func validateUpdate(in models.SubscriptionInput) error {
	if in.Role != "" {
		if err := models.ValidateRole(in.Role); err != nil {
			return err
		}
	}
	if in.ChannelSettings == (models.ChannelSettings{}) {
		return nil
	}
	return in.ChannelSettings.Validate()
}

// merge copies the mutable fields of in onto sub. Key fields never change.
func merge(sub models.Subscription, in models.SubscriptionInput) models.Subscription {
	details := make([]models.ArtifactElement, len(sub.Artifact.Elements))
	for i, e := range sub.Artifact.Elements {
		if i < len(in.Artifact.Elements) {
			e.Title = in.Artifact.Elements[i].Title
			e.ArtifactDate = in.Artifact.Elements[i].ArtifactDate
		}
		details[i] = e
	}
	sub.Artifact = models.Artifact{Elements: details}
	if in.ChannelSettings != (models.ChannelSettings{}) {
		sub.ChannelSettings = in.ChannelSettings
	}
	if in.Role != "" {
		sub.Role = in.Role
	}
	if in.SubscriptionType != "" {
		sub.SubscriptionType = in.SubscriptionType
	}
	return sub
}

// Unsubscribe moves an ACTIVE subscription to INACTIVE in both tables. State is part
// of the key, so the rows are deleted and reinserted rather than updated.
func (s *Store) Unsubscribe(ctx context.Context, id models.SubscriptionID) (models.SubscriptionID, error) {
	if id.State != models.StateActive {
		return models.SubscriptionID{}, fmt.Errorf("%w: only an active subscription can be unsubscribed", models.ErrBadRequest)
	}
	key := keyOfID(id)

	subRows, err := s.execute(ctx, selectSubscriptionJSON(key))
	if err != nil {
		return models.SubscriptionID{}, err
	}
	userRows, err := s.execute(ctx, selectUserSubscriptionJSON(key))
	if err != nil {
		return models.SubscriptionID{}, err
	}
	if len(subRows) == 0 || len(userRows) == 0 {
		return models.SubscriptionID{}, fmt.Errorf("%w: app %s artifact %v user %s", models.ErrNotFound, key.AppID, key.ArtifactIDs, key.UserID)
	}

	subDoc, err := jsonDocFromRow(subRows[0])
	if err != nil {
		return models.SubscriptionID{}, err
	}
	userDoc, err := jsonDocFromRow(userRows[0])
	if err != nil {
		return models.SubscriptionID{}, err
	}
	subDoc = subDoc.withState(models.StateInactive)
	userDoc = userDoc.withState(models.StateInactive)

	flipped, err := subDoc.key()
	if err != nil {
		return models.SubscriptionID{}, err
	}

	subJSON, err := subDoc.encode()
	if err != nil {
		return models.SubscriptionID{}, err
	}
	userJSON, err := userDoc.encode()
	if err != nil {
		return models.SubscriptionID{}, err
	}

	stmts := append(deleteBoth(key), insertSubscriptionJSON(subJSON), insertUserSubscriptionJSON(userJSON))
	if err := s.batch(ctx, stmts); err != nil {
		return models.SubscriptionID{}, err
	}
	s.log.Sugar().Infow("Unsubscribed", "appId", key.AppID, "artifactId", key.ArtifactIDs, "userId", key.UserID)
	return flipped.ID(), nil
}
