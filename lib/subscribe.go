package lib

import (
	"context"
	"fmt"

	"github.com/fiffu/substore/lib/events"
	"github.com/fiffu/substore/lib/models"
)

type subscribe struct {
	*base
}

func (svc *subscribe) Subscribe(ctx context.Context, in models.SubscriptionInput) (models.Subscription, error) {
	if err := validateArtifactInput(in.AppID, in.Artifact); err != nil {
		return models.Subscription{}, err
	}
	userID, err := svc.authorize(ctx, in.UserID)
	if err != nil {
		return models.Subscription{}, err
	}

	sub, err := svc.store.Subscribe(ctx, in, userID)
	if err != nil {
		return models.Subscription{}, err
	}
	svc.publishCreated(ctx, models.Subscriptions{sub})
	return sub, nil
}

func (svc *subscribe) SubscribeUsers(ctx context.Context, in models.SubscriptionUsersInput) (models.Subscriptions, error) {
	if err := validateArtifactInput(in.AppID, in.Artifact); err != nil {
		return nil, err
	}
	if err := checkBulkSize(len(in.UserIDs)); err != nil {
		return nil, err
	}
	for _, userID := range in.UserIDs {
		if _, err := svc.authorize(ctx, userID); err != nil {
			return nil, err
		}
	}

	subs, err := svc.store.SubscribeUsers(ctx, in)
	if err != nil {
		return nil, err
	}
	svc.publishCreated(ctx, subs)
	return subs, nil
}

func (svc *subscribe) SubscribeUsersWithSettings(ctx context.Context, in models.SubscriptionUsersWithSettingsInput) (models.Subscriptions, error) {
	if err := validateArtifactInput(in.AppID, in.Artifact); err != nil {
		return nil, err
	}
	if err := checkBulkSize(len(in.UsersWithSettings)); err != nil {
		return nil, err
	}
	for _, u := range in.UsersWithSettings {
		if _, err := svc.authorize(ctx, u.UserID); err != nil {
			return nil, err
		}
	}

	subs, err := svc.store.SubscribeUsersWithSettings(ctx, in)
	if err != nil {
		return nil, err
	}
	svc.publishCreated(ctx, subs)
	return subs, nil
}

func (svc *subscribe) UpdateSubscriptions(ctx context.Context, inputs []models.SubscriptionInput) (models.Subscriptions, error) {
	for i := range inputs {
		if err := validateArtifactInput(inputs[i].AppID, inputs[i].Artifact); err != nil {
			return nil, err
		}
		userID, err := svc.authorize(ctx, inputs[i].UserID)
		if err != nil {
			return nil, err
		}
		inputs[i].UserID = userID
	}
	return svc.store.UpdateSubscriptions(ctx, inputs)
}

// Unsubscribe moves an ACTIVE subscription to INACTIVE and returns the new id.
func (svc *subscribe) Unsubscribe(ctx context.Context, id models.SubscriptionID) (models.SubscriptionID, error) {
	if err := models.ValidateAppID(id.AppID); err != nil {
		return models.SubscriptionID{}, err
	}
	userID, err := svc.authorize(ctx, id.UserID)
	if err != nil {
		return models.SubscriptionID{}, err
	}
	id.UserID = userID

	out, err := svc.store.Unsubscribe(ctx, id)
	if err != nil {
		return models.SubscriptionID{}, err
	}

	evt := events.New(events.SubscriptionUnsubscribed, out.AppID)
	evt.IDs = []models.SubscriptionID{out}
	svc.publish(ctx, evt)
	return out, nil
}

func (svc *subscribe) publishCreated(ctx context.Context, subs models.Subscriptions) {
	if len(subs) == 0 {
		return
	}
	evt := events.New(events.SubscriptionCreated, subs[0].AppID)
	evt.IDs = subscriptionIDs(subs)
	svc.publish(ctx, evt)
}

func checkBulkSize(n int) error {
	if n > models.MaxBulkUsers {
		return fmt.Errorf("%w: at most %d users per request, got %d", models.ErrBadRequest, models.MaxBulkUsers, n)
	}
	return nil
}
