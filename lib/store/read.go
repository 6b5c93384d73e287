package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/fiffu/substore/lib/models"
	"golang.org/x/sync/errgroup"
)

// GetSubscriptionByIDs returns the subscriptions of an app for the given artifacts and
// states, narrowed to userID when it is not empty. Row order is store-defined.
func (s *Store) GetSubscriptionByIDs(ctx context.Context, appID string, states []models.State, artifactIDs []models.ArtifactID, userID string) (models.Subscriptions, error) {
	if len(states) == 0 || len(artifactIDs) == 0 {
		return models.Subscriptions{}, nil
	}

	rows, err := s.execute(ctx, byIDs(appID, states, artifactIDs, userID))
	if err != nil {
		return nil, err
	}
	return fromRows(rows)
}

func byIDs(appID string, states []models.State, artifactIDs []models.ArtifactID, userID string) Statement {
	if userID != "" {
		return selectByIDsForUser(appID, states, artifactIDs, userID)
	}
	return selectByIDs(appID, states, artifactIDs)
}

// GetPaginationResults is GetSubscriptionByIDs streamed in pages of at most fetchSize.
// The returned page state resumes the same query and must be passed back unchanged.
func (s *Store) GetPaginationResults(ctx context.Context, appID string, states []models.State, artifactIDs []models.ArtifactID, userID, pageState string, fetchSize int) (models.QueryResults, error) {
	if len(states) == 0 || len(artifactIDs) == 0 {
		return models.QueryResults{Subscriptions: models.Subscriptions{}}, nil
	}

	page, err := s.paginate(ctx, byIDs(appID, states, artifactIDs, userID), pageState, fetchSize)
	if err != nil {
		return models.QueryResults{}, err
	}
	subs, err := fromRows(page.Rows)
	if err != nil {
		return models.QueryResults{}, err
	}
	return models.QueryResults{PageState: page.PageState, Subscriptions: subs}, nil
}

// UserSubscriptions lists a user's subscriptions, optionally filtered by role. Without
// an artifact it discovers the user's apps from the projection table and reads each
// app concurrently; with one it reads that artifact of appID directly.
func (s *Store) UserSubscriptions(ctx context.Context, userID string, states []models.State, role models.Role, appID string, artifactID *models.ArtifactID) (models.Subscriptions, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is not provided", models.ErrBadRequest)
	}
	if artifactID != nil {
		if appID == "" {
			return nil, fmt.Errorf("%w: appId is required with artifactId", models.ErrBadRequest)
		}
		subs, err := s.GetSubscriptionByIDs(ctx, appID, states, []models.ArtifactID{*artifactID}, userID)
		if err != nil {
			return nil, err
		}
		return subs.FilterRole(role), nil
	}
	if len(states) == 0 {
		return models.Subscriptions{}, nil
	}

	rows, err := s.execute(ctx, selectUserSubscriptionsByUser(userID, states))
	if err != nil {
		return nil, err
	}
	apps, byApp, err := groupByApp(rows)
	if err != nil {
		return nil, err
	}

	results := make([]models.Subscriptions, len(apps))
	g, gctx := errgroup.WithContext(ctx)
	for i, app := range apps {
		g.Go(func() error {
			subs, err := s.GetSubscriptionByIDs(gctx, app, states, byApp[app], userID)
			results[i] = subs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := models.Subscriptions{}
	for _, subs := range results {
		all = append(all, subs...)
	}
	s.log.Sugar().Debugw("Queried user subscriptions", "userId", normalizeUserID(userID), "apps", len(apps), "count", len(all))
	return all.FilterRole(role), nil
}

// groupByApp collects the distinct artifact ids per app from projection rows, keeping
// apps in order of first appearance.
func groupByApp(rows []Row) ([]string, map[string][]models.ArtifactID, error) {
	var apps []string
	byApp := map[string][]models.ArtifactID{}
	seen := map[string]bool{}
	for _, row := range rows {
		key, err := keyFromRow(row)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := byApp[key.AppID]; !ok {
			apps = append(apps, key.AppID)
			byApp[key.AppID] = nil
		}
		k := key.AppID + "\x00" + strings.Join(key.ArtifactIDs, "\x00")
		if seen[k] {
			continue
		}
		seen[k] = true
		byApp[key.AppID] = append(byApp[key.AppID], key.ID().ArtifactID)
	}
	return apps, byApp, nil
}

// ArtifactCount authorizes a cascade delete: how many rows reference the artifact, and
// whether the actor is one of its authors.
type ArtifactCount struct {
	CountOfRows int64 `json:"countOfRows"`
	UserIDMatch bool  `json:"userIdmatch"`
}

// GetAllArtifactIDCount counts the rows of an app whose artifact id set contains every
// element of artifactID. UserIDMatch is true when an AUTHOR row with exactly as many
// elements belongs to userID. Both reads filter the whole app partition.
func (s *Store) GetAllArtifactIDCount(ctx context.Context, appID string, artifactID models.ArtifactID, userID string) (ArtifactCount, error) {
	if err := models.ValidateAppID(appID); err != nil {
		return ArtifactCount{}, err
	}

	rows, err := s.execute(ctx, countByArtifact(appID, artifactID))
	if err != nil {
		return ArtifactCount{}, err
	}
	var count ArtifactCount
	if len(rows) > 0 {
		n, err := requiredInt(rows[0], colCount)
		if err != nil {
			return ArtifactCount{}, err
		}
		count.CountOfRows = int64(n)
	}

	rows, err = s.execute(ctx, selectByArtifactRole(appID, artifactID, models.RoleAuthor))
	if err != nil {
		return ArtifactCount{}, err
	}
	want := len(artifactID.Elements)
	for _, row := range rows {
		ids, err := udtList(row, colArtifactID)
		if err != nil {
			return ArtifactCount{}, err
		}
		owner, _ := row[colUserID].(string)
		if len(ids) == want && strings.EqualFold(owner, userID) {
			count.UserIDMatch = true
			break
		}
	}
	return count, nil
}

// ArtifactUsers holds parallel artifact id and user id lists, ready for DeleteCascade.
type ArtifactUsers struct {
	ArtifactIDs []models.ArtifactID
	UserIDs     []string
}

// GetAllArtifactID returns at most limit (artifact id, user id) pairs whose artifact id
// set contains every element of artifactID. A limit of zero or less is unbounded.
func (s *Store) GetAllArtifactID(ctx context.Context, appID string, artifactID models.ArtifactID, limit int) (ArtifactUsers, error) {
	if err := models.ValidateAppID(appID); err != nil {
		return ArtifactUsers{}, err
	}

	rows, err := s.execute(ctx, selectByArtifact(appID, artifactID, limit))
	if err != nil {
		return ArtifactUsers{}, err
	}
	out := ArtifactUsers{
		ArtifactIDs: make([]models.ArtifactID, 0, len(rows)),
		UserIDs:     make([]string, 0, len(rows)),
	}
	for _, row := range rows {
		ids, err := udtList(row, colArtifactID)
		if err != nil {
			return ArtifactUsers{}, err
		}
		elems := make([]models.ArtifactIDElement, len(ids))
		for i, e := range ids {
			id, ok := e[udtID].(string)
			if !ok {
				return ArtifactUsers{}, malformed(colArtifactID, row[colArtifactID])
			}
			elems[i] = models.ArtifactIDElement{ID: id}
		}
		userID, err := requiredString(row, colUserID)
		if err != nil {
			return ArtifactUsers{}, err
		}
		out.ArtifactIDs = append(out.ArtifactIDs, models.ArtifactID{Elements: elems})
		out.UserIDs = append(out.UserIDs, userID)
	}
	return out, nil
}
