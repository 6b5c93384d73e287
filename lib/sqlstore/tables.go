package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fiffu/substore/lib/store"
)

// cqlTimestamp is how SELECT JSON renders a timestamp column.
const cqlTimestamp = "2006-01-02 15:04:05.000Z"

// subscriptionRow mirrors the subscriptions table. The frozen artifact_id list is kept
// as a JSON array of ids so it can take part in the primary key.
type subscriptionRow struct {
	AppID            string `gorm:"primaryKey"`
	State            int    `gorm:"primaryKey"`
	ArtifactID       string `gorm:"primaryKey"`
	UserID           string `gorm:"primaryKey"`
	Artifact         string
	ChannelSettings  string `gorm:"column:channelsettings"`
	Role             string
	CreatedDate      time.Time
	UpdatedDate      time.Time
	SubscriptionType string `gorm:"column:subscriptiontype"`
}

func (subscriptionRow) TableName() string { return store.SubscriptionsTable }

// userSubscriptionRow mirrors the user_subscriptions projection.
type userSubscriptionRow struct {
	UserID     string `gorm:"primaryKey"`
	State      int    `gorm:"primaryKey"`
	AppID      string `gorm:"primaryKey"`
	ArtifactID string `gorm:"primaryKey"`
}

func (userSubscriptionRow) TableName() string { return store.UserSubscriptionsTable }

func (r subscriptionRow) row() (store.Row, error) {
	ids, err := decodeIDs(r.ArtifactID)
	if err != nil {
		return nil, err
	}
	var artifact []map[string]any
	if err := json.Unmarshal([]byte(r.Artifact), &artifact); err != nil {
		return nil, fmt.Errorf("artifact: %w", err)
	}
	var settings map[string]map[string]any
	if err := json.Unmarshal([]byte(r.ChannelSettings), &settings); err != nil {
		return nil, fmt.Errorf("channelsettings: %w", err)
	}
	return store.Row{
		"app_id":           r.AppID,
		"artifact_id":      ids,
		"user_id":          r.UserID,
		"state":            r.State,
		"artifact":         artifact,
		"channelsettings":  settings,
		"role":             r.Role,
		"created_date":     r.CreatedDate.UTC(),
		"updated_date":     r.UpdatedDate.UTC(),
		"subscriptiontype": r.SubscriptionType,
	}, nil
}

func (r userSubscriptionRow) row() (store.Row, error) {
	ids, err := decodeIDs(r.ArtifactID)
	if err != nil {
		return nil, err
	}
	return store.Row{
		"app_id":      r.AppID,
		"artifact_id": ids,
		"user_id":     r.UserID,
		"state":       r.State,
	}, nil
}

// jsonRow renders a row the way SELECT JSON does: one "[json]" column.
func jsonRow(r store.Row) (store.Row, error) {
	doc := make(map[string]any, len(r))
	for k, v := range r {
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(cqlTimestamp)
		}
		doc[k] = v
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return store.Row{"[json]": string(b)}, nil
}

// encodeIDs turns a bound artifact_id list into its stored key form.
func encodeIDs(v any) (string, error) {
	elems, ok := v.([]map[string]any)
	if !ok {
		return "", fmt.Errorf("artifact_id: unexpected %T", v)
	}
	ids := make([]string, len(elems))
	for i, e := range elems {
		id, ok := e["id"].(string)
		if !ok {
			return "", fmt.Errorf("artifact_id: element %d has no id", i)
		}
		ids[i] = id
	}
	b, err := json.Marshal(ids)
	return string(b), err
}

func decodeIDs(s string) ([]map[string]any, error) {
	var ids []string
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("artifact_id: %w", err)
	}
	out := make([]map[string]any, len(ids))
	for i, id := range ids {
		out[i] = map[string]any{"id": id}
	}
	return out, nil
}

// jsonDoc is the decoded argument of an INSERT ... JSON statement.
type jsonDoc map[string]any

func (d jsonDoc) str(col string) string {
	s, _ := d[col].(string)
	return s
}

func (d jsonDoc) int(col string) (int, error) {
	switch v := d[col].(type) {
	case json.Number:
		n, err := v.Int64()
		return int(n), err
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("%s: unexpected %T", col, d[col])
}

func (d jsonDoc) ids() (string, error) {
	raw, ok := d["artifact_id"].([]any)
	if !ok {
		return "", fmt.Errorf("artifact_id: unexpected %T", d["artifact_id"])
	}
	elems := make([]map[string]any, len(raw))
	for i, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			return "", fmt.Errorf("artifact_id: element %d is %T", i, e)
		}
		elems[i] = m
	}
	return encodeIDs(elems)
}

func (d jsonDoc) raw(col string) (string, error) {
	b, err := json.Marshal(d[col])
	return string(b), err
}

func (d jsonDoc) time(col string) (time.Time, error) {
	s := d.str(col)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{cqlTimestamp, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: unparseable timestamp %q", col, s)
}

func (d jsonDoc) subscriptionRow() (subscriptionRow, error) {
	var r subscriptionRow
	var err error
	r.AppID, r.UserID = d.str("app_id"), d.str("user_id")
	r.Role, r.SubscriptionType = d.str("role"), d.str("subscriptiontype")
	if r.State, err = d.int("state"); err != nil {
		return r, err
	}
	if r.ArtifactID, err = d.ids(); err != nil {
		return r, err
	}
	if r.Artifact, err = d.raw("artifact"); err != nil {
		return r, err
	}
	if r.ChannelSettings, err = d.raw("channelsettings"); err != nil {
		return r, err
	}
	if r.CreatedDate, err = d.time("created_date"); err != nil {
		return r, err
	}
	r.UpdatedDate, err = d.time("updated_date")
	return r, err
}

func (d jsonDoc) userSubscriptionRow() (userSubscriptionRow, error) {
	var r userSubscriptionRow
	var err error
	r.AppID, r.UserID = d.str("app_id"), d.str("user_id")
	if r.State, err = d.int("state"); err != nil {
		return r, err
	}
	r.ArtifactID, err = d.ids()
	return r, err
}
