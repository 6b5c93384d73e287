// Package events publishes subscription lifecycle events.
package events

import (
	"context"
	"time"

	"github.com/fiffu/substore/lib/models"
	"github.com/google/uuid"
)

type Type string

const (
	SubscriptionCreated      Type = "subscription.created"
	SubscriptionUnsubscribed Type = "subscription.unsubscribed"
	SubscriptionDeleted      Type = "subscription.deleted"
	CascadeIncomplete        Type = "subscription.cascade_incomplete"
)

type Event struct {
	ID         string                  `json:"id"`
	Type       Type                    `json:"type"`
	AppID      string                  `json:"appId"`
	OccurredAt time.Time               `json:"occurredAt"`
	Actor      string                  `json:"actor,omitempty"`
	IDs        []models.SubscriptionID `json:"subscriptionIds,omitempty"`
	ArtifactID *models.ArtifactID      `json:"artifactId,omitempty"`
	Status     string                  `json:"status,omitempty"`
}

func New(typ Type, appID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		AppID:      appID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events. Callers treat delivery as best effort.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Noop drops every event. It stands in when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
