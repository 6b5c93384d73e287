package models

import (
	"strings"
	"time"
)

type ArtifactIDElement struct {
	ID string `json:"id"`
}

type ArtifactID struct {
	Elements []ArtifactIDElement `json:"elements"`
}

// IDs returns the element ids in order, lower-cased.
func (a ArtifactID) IDs() []string {
	ids := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		ids[i] = strings.ToLower(e.ID)
	}
	return ids
}

type ArtifactElement struct {
	ArtifactIDElement ArtifactIDElement `json:"artifactIdElement"`
	Title             string            `json:"title"`
	ArtifactDate      string            `json:"artifactDate"`
}

type Artifact struct {
	Elements []ArtifactElement `json:"elements"`
}

// ID projects the artifact onto its identity: the ordered element ids.
func (a Artifact) ID() ArtifactID {
	elems := make([]ArtifactIDElement, len(a.Elements))
	for i, e := range a.Elements {
		elems[i] = ArtifactIDElement{ID: strings.ToLower(e.ArtifactIDElement.ID)}
	}
	return ArtifactID{Elements: elems}
}

type SingleChannelSettings struct {
	Frequency ChannelFrequency `json:"frequency"`
}

type InstantChannelSettings struct {
	Frequency InstantChannelFrequency `json:"frequency"`
}

type ChannelSettings struct {
	Email      SingleChannelSettings   `json:"email"`
	WebBell    *SingleChannelSettings  `json:"webBell,omitempty"`
	MobilePush *InstantChannelSettings `json:"mobilePush,omitempty"`
}

type Subscription struct {
	AppID            string          `json:"appId"`
	Artifact         Artifact        `json:"artifact"`
	ChannelSettings  ChannelSettings `json:"channelSettings"`
	UserID           string          `json:"userId"`
	Role             Role            `json:"role"`
	State            State           `json:"state"`
	CreatedDate      time.Time       `json:"createdDate"`
	UpdatedDate      time.Time       `json:"updatedDate"`
	SubscriptionType string          `json:"subscriptionType"`
}

func (s Subscription) ID() SubscriptionID {
	return SubscriptionID{
		AppID:      s.AppID,
		ArtifactID: s.Artifact.ID(),
		UserID:     s.UserID,
		State:      s.State,
	}
}

// SubscriptionID is the identity key of a subscription. State is part of the key.
type SubscriptionID struct {
	AppID      string     `json:"appId"`
	ArtifactID ArtifactID `json:"artifactId"`
	UserID     string     `json:"userId"`
	State      State      `json:"state"`
}

type Subscriptions []Subscription

// FilterRole keeps the subscriptions held with the given role. An empty role keeps all.
func (subs Subscriptions) FilterRole(role Role) Subscriptions {
	if role == "" {
		return subs
	}
	out := make(Subscriptions, 0, len(subs))
	for _, s := range subs {
		if s.Role == role {
			out = append(out, s)
		}
	}
	return out
}

type QueryResults struct {
	PageState     string        `json:"pageState,omitempty"`
	Subscriptions Subscriptions `json:"subscriptions"`
}
