package models

import (
	"fmt"
	"time"
)

const (
	MaxAppIDLength = 50
	MaxBulkUsers   = 50
)

type SubscriptionInput struct {
	AppID            string          `json:"appId"`
	Artifact         Artifact        `json:"artifact"`
	ChannelSettings  ChannelSettings `json:"channelSettings"`
	Role             Role            `json:"role"`
	UserID           string          `json:"userId"`
	SubscriptionType string          `json:"subscriptionType"`
}

type SubscriptionUsersInput struct {
	AppID            string          `json:"appId"`
	Artifact         Artifact        `json:"artifact"`
	ChannelSettings  ChannelSettings `json:"channelSettings"`
	Role             Role            `json:"role"`
	UserIDs          []string        `json:"userIds"`
	SubscriptionType string          `json:"subscriptionType"`
}

type SubscriptionUserWithSettings struct {
	UserID           string          `json:"userId"`
	ChannelSettings  ChannelSettings `json:"channelSettings"`
	Role             Role            `json:"role"`
	SubscriptionType string          `json:"subscriptionType"`
}

type SubscriptionUsersWithSettingsInput struct {
	AppID             string                         `json:"appId"`
	Artifact          Artifact                       `json:"artifact"`
	UsersWithSettings []SubscriptionUserWithSettings `json:"usersWithSettings"`
}

func ValidateAppID(appID string) error {
	if len(appID) > MaxAppIDLength {
		return fmt.Errorf("%w: invalid application id", ErrBadRequest)
	}
	return nil
}

var artifactDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// ValidateArtifactDates requires every element date to be ISO-8601.
func ValidateArtifactDates(a Artifact) error {
	for _, e := range a.Elements {
		if !isISODate(e.ArtifactDate) {
			return fmt.Errorf("%w: invalid ISO artifactDate format: %s", ErrBadRequest, e.ArtifactDate)
		}
	}
	return nil
}

func isISODate(s string) bool {
	for _, layout := range artifactDateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func ValidateRole(r Role) error {
	if !r.Valid() {
		return fmt.Errorf("%w: invalid role %q", ErrBadRequest, r)
	}
	return nil
}

// Validate requires a known email frequency. Optional channels must be known when set.
func (cs ChannelSettings) Validate() error {
	if cs.Email.Frequency == "" {
		return fmt.Errorf("%w: email frequency is required", ErrBadRequest)
	}
	if !cs.Email.Frequency.Valid() {
		return fmt.Errorf("%w: invalid %s frequency %q", ErrBadRequest, ChannelEmail, cs.Email.Frequency)
	}
	if cs.WebBell != nil && !cs.WebBell.Frequency.Valid() {
		return fmt.Errorf("%w: invalid %s frequency %q", ErrBadRequest, ChannelWebBell, cs.WebBell.Frequency)
	}
	if cs.MobilePush != nil && !cs.MobilePush.Frequency.Valid() {
		return fmt.Errorf("%w: invalid %s frequency %q", ErrBadRequest, ChannelMobilePush, cs.MobilePush.Frequency)
	}
	return nil
}
