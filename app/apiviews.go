package app

import (
	"time"

	"github.com/fiffu/substore/lib/models"
)

// SubscriptionView renders dates as ISO-8601 strings in UTC.
type SubscriptionView struct {
	AppID            string                 `json:"appId"`
	Artifact         models.Artifact        `json:"artifact"`
	ChannelSettings  models.ChannelSettings `json:"channelSettings"`
	UserID           string                 `json:"userId"`
	Role             models.Role            `json:"role"`
	State            models.State           `json:"state"`
	CreatedDate      *string                `json:"createdDate"`
	UpdatedDate      *string                `json:"updatedDate"`
	SubscriptionType string                 `json:"subscriptionType,omitempty"`
}

func (view SubscriptionView) From(entity models.Subscription) SubscriptionView {
	return SubscriptionView{
		AppID:            entity.AppID,
		Artifact:         entity.Artifact,
		ChannelSettings:  entity.ChannelSettings,
		UserID:           entity.UserID,
		Role:             entity.Role,
		State:            entity.State,
		CreatedDate:      isoformat(entity.CreatedDate),
		UpdatedDate:      isoformat(entity.UpdatedDate),
		SubscriptionType: entity.SubscriptionType,
	}
}

type QueryResultsView struct {
	PageState     string             `json:"pageState,omitempty"`
	Subscriptions []SubscriptionView `json:"subscriptions"`
}

func (view QueryResultsView) From(entity models.QueryResults) QueryResultsView {
	return QueryResultsView{
		PageState:     entity.PageState,
		Subscriptions: FromMany[models.Subscription, SubscriptionView](entity.Subscriptions),
	}
}

type ErrorView struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i, t := range elems {
		var u U
		out[i] = u.From(t)
	}
	return out
}

func isoformat(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	return &s
}
