package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/fiffu/substore/lib/models"
)

var activeOrInactive = []models.State{models.StateActive, models.StateInactive}

// derive builds the candidate ACTIVE entity for a user. Failures are malformed input.
func (s *Store) derive(appID string, artifact models.Artifact, settings models.ChannelSettings, role models.Role, subType, userID string) (models.Subscription, error) {
	switch {
	case appID == "":
		return models.Subscription{}, fmt.Errorf("%w: appId is required", models.ErrBadRequest)
	case userID == "":
		return models.Subscription{}, fmt.Errorf("%w: userId is required", models.ErrBadRequest)
	case len(artifact.Elements) == 0:
		return models.Subscription{}, fmt.Errorf("%w: artifact has no elements", models.ErrBadRequest)
	}
	if err := models.ValidateRole(role); err != nil {
		return models.Subscription{}, err
	}
	if err := settings.Validate(); err != nil {
		return models.Subscription{}, err
	}
	for _, e := range artifact.Elements {
		if e.ArtifactIDElement.ID == "" {
			return models.Subscription{}, fmt.Errorf("%w: artifact element without id", models.ErrBadRequest)
		}
	}

	now := s.now()
	return normalize(models.Subscription{
		AppID:            appID,
		Artifact:         artifact,
		ChannelSettings:  settings,
		UserID:           userID,
		Role:             role,
		State:            models.StateActive,
		CreatedDate:      now,
		UpdatedDate:      now,
		SubscriptionType: subType,
	}), nil
}

// supersede plans the writes that make candidate the only ACTIVE row among existing.
// An existing ACTIVE row wins and nothing is written.
func supersede(candidate models.Subscription, existing models.Subscriptions) ([]Statement, models.Subscription) {
	ids := candidate.Artifact.ID().IDs()

	var stmts []Statement
	for _, sub := range existing {
		if !slices.Equal(sub.Artifact.ID().IDs(), ids) {
			continue
		}
		if sub.State == models.StateActive {
			return nil, sub
		}
	}
	for _, sub := range existing {
		if sub.State == models.StateInactive && slices.Equal(sub.Artifact.ID().IDs(), ids) {
			stmts = append(stmts, deleteBoth(keyOf(sub))...)
		}
	}
	return append(stmts, insertBoth(toRow(candidate))...), candidate
}

// Subscribe makes userID an ACTIVE subscriber of the input's artifact. Subscribing
// twice returns the existing row without writing.
func (s *Store) Subscribe(ctx context.Context, in models.SubscriptionInput, userID string) (models.Subscription, error) {
	sub, err := s.derive(in.AppID, in.Artifact, in.ChannelSettings, in.Role, in.SubscriptionType, userID)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("%w: %w", models.ErrSubscribeFailed, err)
	}

	rows, err := s.execute(ctx, selectByIDsForUser(sub.AppID, activeOrInactive, []models.ArtifactID{sub.Artifact.ID()}, sub.UserID))
	if err != nil {
		return models.Subscription{}, fmt.Errorf("%w: %w", models.ErrSubscribeFailed, err)
	}
	existing, err := fromRows(rows)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("%w: %w", models.ErrSubscribeFailed, err)
	}

	stmts, result := supersede(sub, existing)
	if len(stmts) == 0 {
		s.log.Sugar().Debugw("Already subscribed", "appId", sub.AppID, "userId", sub.UserID)
		return result, nil
	}
	if err := s.batch(ctx, stmts); err != nil {
		return models.Subscription{}, fmt.Errorf("%w: %w", models.ErrSubscribeFailed, err)
	}
	s.log.Sugar().Infow("Subscribed", "appId", sub.AppID, "artifactId", sub.Artifact.ID().IDs(), "userId", sub.UserID)
	return result, nil
}

// SubscribeUsers subscribes every user with the same settings.
func (s *Store) SubscribeUsers(ctx context.Context, in models.SubscriptionUsersInput) (models.Subscriptions, error) {
	candidates := make(models.Subscriptions, 0, len(in.UserIDs))
	for _, userID := range in.UserIDs {
		sub, err := s.derive(in.AppID, in.Artifact, in.ChannelSettings, in.Role, in.SubscriptionType, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrSubscribeFailed, err)
		}
		candidates = append(candidates, sub)
	}
	return s.subscribeMany(ctx, in.AppID, in.Artifact, candidates)
}

// SubscribeUsersWithSettings subscribes every user with their own settings.
func (s *Store) SubscribeUsersWithSettings(ctx context.Context, in models.SubscriptionUsersWithSettingsInput) (models.Subscriptions, error) {
	candidates := make(models.Subscriptions, 0, len(in.UsersWithSettings))
	for _, u := range in.UsersWithSettings {
		sub, err := s.derive(in.AppID, in.Artifact, u.ChannelSettings, u.Role, u.SubscriptionType, u.UserID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrSubscribeFailed, err)
		}
		candidates = append(candidates, sub)
	}
	return s.subscribeMany(ctx, in.AppID, in.Artifact, candidates)
}

// subscribeMany reads the existing rows of all candidates in one lookup and writes
// every supersede plan in one batch. A user listed twice is subscribed once.
func (s *Store) subscribeMany(ctx context.Context, appID string, artifact models.Artifact, candidates models.Subscriptions) (models.Subscriptions, error) {
	if len(candidates) == 0 {
		return models.Subscriptions{}, nil
	}

	seen := make(map[string]bool, len(candidates))
	unique := candidates[:0:0]
	userIDs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.UserID] {
			continue
		}
		seen[c.UserID] = true
		unique = append(unique, c)
		userIDs = append(userIDs, c.UserID)
	}

	rows, err := s.execute(ctx, selectByIDsForUsers(appID, activeOrInactive, []models.ArtifactID{artifact.ID()}, userIDs))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSubscribeFailed, err)
	}
	existing, err := fromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSubscribeFailed, err)
	}
	byUser := make(map[string]models.Subscriptions, len(existing))
	for _, sub := range existing {
		byUser[sub.UserID] = append(byUser[sub.UserID], sub)
	}

	var stmts []Statement
	results := make(models.Subscriptions, 0, len(unique))
	for _, c := range unique {
		planned, result := supersede(c, byUser[c.UserID])
		stmts = append(stmts, planned...)
		results = append(results, result)
	}

	if len(stmts) > 0 {
		if err := s.batch(ctx, stmts); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrSubscribeFailed, err)
		}
	}
	s.log.Sugar().Infow("Subscribed users", "appId", normalizeAppID(appID), "artifactId", artifact.ID().IDs(), "users", len(results))
	return results, nil
}
