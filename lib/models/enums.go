package models

import (
	"fmt"
	"strings"
)

type State int

const (
	StateActive   State = 1
	StateInactive State = 2
	// StateHidden has no transitions into or out of it yet.
	StateHidden State = 3
)

func (s State) Valid() bool {
	return s >= StateActive && s <= StateHidden
}

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateInactive:
		return "INACTIVE"
	case StateHidden:
		return "HIDDEN"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState accepts either the numeric form ("1") or the name ("active").
func ParseState(s string) (State, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "ACTIVE":
		return StateActive, nil
	case "2", "INACTIVE":
		return StateInactive, nil
	case "3", "HIDDEN":
		return StateHidden, nil
	}
	return 0, fmt.Errorf("%w: unknown state %q", ErrBadRequest, s)
}

type Role string

const (
	RoleAuthor     Role = "AUTHOR"
	RoleSubscriber Role = "SUBSCRIBER"
)

func (r Role) Valid() bool {
	return r == RoleAuthor || r == RoleSubscriber
}

type ChannelFrequency string

const (
	FrequencyInstantly ChannelFrequency = "INSTANTLY"
	FrequencyDaily     ChannelFrequency = "DAILY"
	FrequencyWeekly    ChannelFrequency = "WEEKLY"
	FrequencyNA        ChannelFrequency = "NA"
)

func (f ChannelFrequency) Valid() bool {
	switch f {
	case FrequencyInstantly, FrequencyDaily, FrequencyWeekly, FrequencyNA:
		return true
	}
	return false
}

// InstantChannelFrequency is the narrower set allowed on push channels.
type InstantChannelFrequency string

const (
	InstantFrequencyInstantly InstantChannelFrequency = "INSTANTLY"
	InstantFrequencyNA        InstantChannelFrequency = "NA"
)

func (f InstantChannelFrequency) Valid() bool {
	return f == InstantFrequencyInstantly || f == InstantFrequencyNA
}

const (
	ChannelEmail      = "email"
	ChannelWebBell    = "webBell"
	ChannelMobilePush = "mobilePush"
)
