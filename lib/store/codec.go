package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fiffu/substore/lib/models"
)

// Column names shared by both tables and the JSON form of their rows.
const (
	colAppID            = "app_id"
	colArtifactID       = "artifact_id"
	colUserID           = "user_id"
	colState            = "state"
	colArtifact         = "artifact"
	colChannelSettings  = "channelsettings"
	colRole             = "role"
	colCreatedDate      = "created_date"
	colUpdatedDate      = "updated_date"
	colSubscriptionType = "subscriptiontype"
	colCount            = "count"
	colJSON             = "[json]"

	udtID           = "id"
	udtTitle        = "title"
	udtArtifactDate = "artifactdate"
	udtFrequency    = "frequency"
)

// RowKey is the normalized primary key shared by both tables.
type RowKey struct {
	AppID       string
	ArtifactIDs []string
	UserID      string
	State       models.State
}

func (k RowKey) args() []any {
	return []any{k.AppID, artifactIDParam(k.ArtifactIDs), k.UserID, int(k.State)}
}

func (k RowKey) ID() models.SubscriptionID {
	elems := make([]models.ArtifactIDElement, len(k.ArtifactIDs))
	for i, id := range k.ArtifactIDs {
		elems[i] = models.ArtifactIDElement{ID: id}
	}
	return models.SubscriptionID{
		AppID:      k.AppID,
		ArtifactID: models.ArtifactID{Elements: elems},
		UserID:     k.UserID,
		State:      k.State,
	}
}

func normalizeAppID(appID string) string   { return strings.ToLower(appID) }
func normalizeUserID(userID string) string { return strings.ToUpper(userID) }

func keyOf(sub models.Subscription) RowKey {
	return RowKey{
		AppID:       normalizeAppID(sub.AppID),
		ArtifactIDs: sub.Artifact.ID().IDs(),
		UserID:      normalizeUserID(sub.UserID),
		State:       sub.State,
	}
}

func keyOfID(id models.SubscriptionID) RowKey {
	return RowKey{
		AppID:       normalizeAppID(id.AppID),
		ArtifactIDs: id.ArtifactID.IDs(),
		UserID:      normalizeUserID(id.UserID),
		State:       id.State,
	}
}

// keyOfInput addresses the ACTIVE row an input refers to.
func keyOfInput(in models.SubscriptionInput) RowKey {
	return RowKey{
		AppID:       normalizeAppID(in.AppID),
		ArtifactIDs: in.Artifact.ID().IDs(),
		UserID:      normalizeUserID(in.UserID),
		State:       models.StateActive,
	}
}

func artifactIDParam(ids []string) []map[string]any {
	out := make([]map[string]any, len(ids))
	for i, id := range ids {
		out[i] = map[string]any{udtID: id}
	}
	return out
}

func artifactIDsParam(artifactIDs []models.ArtifactID) [][]map[string]any {
	out := make([][]map[string]any, len(artifactIDs))
	for i, a := range artifactIDs {
		out[i] = artifactIDParam(a.IDs())
	}
	return out
}

func statesParam(states []models.State) []int {
	out := make([]int, len(states))
	for i, s := range states {
		out[i] = int(s)
	}
	return out
}

func userIDsParam(userIDs []string) []string {
	out := make([]string, len(userIDs))
	for i, u := range userIDs {
		out[i] = normalizeUserID(u)
	}
	return out
}

// rowParams is a subscription flattened into the column values of the subscriptions table.
type rowParams struct {
	key              RowKey
	artifact         []map[string]any
	channelSettings  map[string]map[string]any
	role             string
	createdDate      time.Time
	updatedDate      time.Time
	subscriptionType string
}

func toRow(sub models.Subscription) rowParams {
	artifact := make([]map[string]any, len(sub.Artifact.Elements))
	for i, e := range sub.Artifact.Elements {
		artifact[i] = map[string]any{udtTitle: e.Title, udtArtifactDate: e.ArtifactDate}
	}
	return rowParams{
		key:              keyOf(sub),
		artifact:         artifact,
		channelSettings:  channelSettingsParam(sub.ChannelSettings),
		role:             string(sub.Role),
		createdDate:      sub.CreatedDate,
		updatedDate:      sub.UpdatedDate,
		subscriptionType: sub.SubscriptionType,
	}
}

// channelSettingsParam omits absent optional channels so they are never written as nulls.
func channelSettingsParam(cs models.ChannelSettings) map[string]map[string]any {
	out := map[string]map[string]any{
		models.ChannelEmail: {udtFrequency: string(cs.Email.Frequency)},
	}
	if cs.WebBell != nil {
		out[models.ChannelWebBell] = map[string]any{udtFrequency: string(cs.WebBell.Frequency)}
	}
	if cs.MobilePush != nil {
		out[models.ChannelMobilePush] = map[string]any{udtFrequency: string(cs.MobilePush.Frequency)}
	}
	return out
}

// normalize returns the subscription as it is persisted: case-normalized identifiers
// and millisecond UTC timestamps.
func normalize(sub models.Subscription) models.Subscription {
	sub.AppID = normalizeAppID(sub.AppID)
	sub.UserID = normalizeUserID(sub.UserID)
	elems := make([]models.ArtifactElement, len(sub.Artifact.Elements))
	for i, e := range sub.Artifact.Elements {
		e.ArtifactIDElement.ID = strings.ToLower(e.ArtifactIDElement.ID)
		elems[i] = e
	}
	sub.Artifact = models.Artifact{Elements: elems}
	sub.CreatedDate = storeTime(sub.CreatedDate)
	sub.UpdatedDate = storeTime(sub.UpdatedDate)
	return sub
}

func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func malformed(field string, v any) error {
	return fmt.Errorf("%w: column %s has unexpected value %#v", models.ErrMalformedRecord, field, v)
}

// fromRow decodes a subscriptions-table row. Artifact ids and details are zipped
// positionally and must be of equal length.
func fromRow(row Row) (models.Subscription, error) {
	key, err := keyFromRow(row)
	if err != nil {
		return models.Subscription{}, err
	}

	details, err := udtList(row, colArtifact)
	if err != nil {
		return models.Subscription{}, err
	}
	if len(details) != len(key.ArtifactIDs) {
		return models.Subscription{}, fmt.Errorf("%w: %d artifact ids but %d artifact details",
			models.ErrMalformedRecord, len(key.ArtifactIDs), len(details))
	}
	elems := make([]models.ArtifactElement, len(details))
	for i, d := range details {
		title, _ := d[udtTitle].(string)
		date, _ := d[udtArtifactDate].(string)
		elems[i] = models.ArtifactElement{
			ArtifactIDElement: models.ArtifactIDElement{ID: key.ArtifactIDs[i]},
			Title:             title,
			ArtifactDate:      date,
		}
	}

	settings, err := channelSettingsFromRow(row)
	if err != nil {
		return models.Subscription{}, err
	}
	role, err := requiredString(row, colRole)
	if err != nil {
		return models.Subscription{}, err
	}
	created, err := optionalTime(row, colCreatedDate)
	if err != nil {
		return models.Subscription{}, err
	}
	updated, err := optionalTime(row, colUpdatedDate)
	if err != nil {
		return models.Subscription{}, err
	}
	subType, _ := row[colSubscriptionType].(string)

	return models.Subscription{
		AppID:            key.AppID,
		Artifact:         models.Artifact{Elements: elems},
		ChannelSettings:  settings,
		UserID:           key.UserID,
		Role:             models.Role(role),
		State:            key.State,
		CreatedDate:      created,
		UpdatedDate:      updated,
		SubscriptionType: subType,
	}, nil
}

func fromRows(rows []Row) (models.Subscriptions, error) {
	subs := make(models.Subscriptions, 0, len(rows))
	for _, row := range rows {
		sub, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// keyFromRow decodes the primary key columns, present in rows of either table.
func keyFromRow(row Row) (RowKey, error) {
	appID, err := requiredString(row, colAppID)
	if err != nil {
		return RowKey{}, err
	}
	userID, err := requiredString(row, colUserID)
	if err != nil {
		return RowKey{}, err
	}
	state, err := requiredInt(row, colState)
	if err != nil {
		return RowKey{}, err
	}
	if !models.State(state).Valid() {
		return RowKey{}, malformed(colState, state)
	}
	ids, err := udtList(row, colArtifactID)
	if err != nil {
		return RowKey{}, err
	}
	if len(ids) == 0 {
		return RowKey{}, malformed(colArtifactID, row[colArtifactID])
	}
	artifactIDs := make([]string, len(ids))
	for i, e := range ids {
		id, ok := e[udtID].(string)
		if !ok || id == "" {
			return RowKey{}, malformed(colArtifactID, row[colArtifactID])
		}
		artifactIDs[i] = id
	}
	return RowKey{AppID: appID, ArtifactIDs: artifactIDs, UserID: userID, State: models.State(state)}, nil
}

func channelSettingsFromRow(row Row) (models.ChannelSettings, error) {
	raw, err := udtMap(row, colChannelSettings)
	if err != nil {
		return models.ChannelSettings{}, err
	}
	email, ok := raw[models.ChannelEmail][udtFrequency].(string)
	if !ok {
		return models.ChannelSettings{}, malformed(colChannelSettings, row[colChannelSettings])
	}
	cs := models.ChannelSettings{Email: models.SingleChannelSettings{Frequency: models.ChannelFrequency(email)}}
	if f, ok := raw[models.ChannelWebBell][udtFrequency].(string); ok {
		cs.WebBell = &models.SingleChannelSettings{Frequency: models.ChannelFrequency(f)}
	}
	if f, ok := raw[models.ChannelMobilePush][udtFrequency].(string); ok {
		cs.MobilePush = &models.InstantChannelSettings{Frequency: models.InstantChannelFrequency(f)}
	}
	return cs, nil
}

func requiredString(row Row, col string) (string, error) {
	s, ok := row[col].(string)
	if !ok || s == "" {
		return "", malformed(col, row[col])
	}
	return s, nil
}

func requiredInt(row Row, col string) (int, error) {
	switch v := row[col].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), nil
		}
	}
	return 0, malformed(col, row[col])
}

func optionalTime(row Row, col string) (time.Time, error) {
	switch v := row[col].(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v.UTC(), nil
	}
	return time.Time{}, malformed(col, row[col])
}

func udtList(row Row, col string) ([]map[string]any, error) {
	switch v := row[col].(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, len(v))
		for i, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, malformed(col, v)
			}
			out[i] = m
		}
		return out, nil
	}
	return nil, malformed(col, row[col])
}

func udtMap(row Row, col string) (map[string]map[string]any, error) {
	switch v := row[col].(type) {
	case map[string]map[string]any:
		return v, nil
	case map[string]any:
		out := make(map[string]map[string]any, len(v))
		for k, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, malformed(col, v)
			}
			out[k] = m
		}
		return out, nil
	}
	return nil, malformed(col, row[col])
}

// jsonDoc is the JSON form of a row as returned by SELECT JSON.
type jsonDoc map[string]any

func jsonDocFromRow(row Row) (jsonDoc, error) {
	s, ok := row[colJSON].(string)
	if !ok {
		return nil, malformed(colJSON, row[colJSON])
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var doc jsonDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrMalformedRecord, err)
	}
	return doc, nil
}

func (doc jsonDoc) withState(state models.State) jsonDoc {
	out := make(jsonDoc, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	out[colState] = int(state)
	return out
}

func (doc jsonDoc) key() (RowKey, error) {
	return keyFromRow(Row(doc))
}

func (doc jsonDoc) encode() (string, error) {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(doc)); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrMalformedRecord, err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
