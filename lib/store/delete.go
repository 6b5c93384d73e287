package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/fiffu/substore/lib/models"
)

const (
	StatusDeleted       = "Successfully deleted"
	StatusNoSubscribers = "No subscribers for the artifact"
	StatusDeleteFailed  = "Error while deleting subscriptions for artifact"
)

// CascadeChunkSize bounds the user_id IN clause of one cascade delete.
const CascadeChunkSize = 100

// Delete removes every subscription of an artifact in the given states from both tables
// in one batch. An artifact without subscribers is not an error.
func (s *Store) Delete(ctx context.Context, appID string, artifactID models.ArtifactID, states []models.State) (string, error) {
	subs, err := s.GetSubscriptionByIDs(ctx, appID, states, []models.ArtifactID{artifactID}, "")
	if err != nil {
		return StatusDeleteFailed, err
	}
	s.log.Sugar().Debugw("Subscribers to delete", "appId", normalizeAppID(appID), "count", len(subs))
	if len(subs) == 0 {
		return StatusNoSubscribers, nil
	}

	stmts := make([]Statement, 0, 2*len(subs))
	for _, sub := range subs {
		stmts = append(stmts, deleteBoth(keyOf(sub))...)
	}
	if err := s.batch(ctx, stmts); err != nil {
		return StatusDeleteFailed, err
	}
	s.log.Sugar().Infow("Deleted subscriptions", "appId", normalizeAppID(appID), "artifactId", artifactID.IDs(), "count", len(subs))
	return StatusDeleted, nil
}

// CascadeChunk is one partition of a cascade delete. The two tables are cleaned by
// separate calls, so a chunk can be left with only one of them cleaned.
type CascadeChunk struct {
	ArtifactIDs              []models.ArtifactID
	UserIDs                  []string
	SubscriptionsCleaned     bool
	UserSubscriptionsCleaned bool
}

func (c CascadeChunk) Cleaned() bool {
	return c.SubscriptionsCleaned && c.UserSubscriptionsCleaned
}

// CascadeResult lists every planned chunk in order, including the ones never attempted.
type CascadeResult struct {
	Chunks []CascadeChunk
}

func (r CascadeResult) Complete() bool {
	return len(r.Incomplete()) == 0
}

// Incomplete returns the chunks that still hold rows in at least one table.
func (r CascadeResult) Incomplete() []CascadeChunk {
	var out []CascadeChunk
	for _, c := range r.Chunks {
		if !c.Cleaned() {
			out = append(out, c)
		}
	}
	return out
}

// DeleteCascade deletes the (artifactIDs[i], userIDs[i]) rows of an app in chunks of
// CascadeChunkSize users. Chunks run sequentially and stop at the first failure, which
// is returned along with the partial result. Nothing is rolled back.
func (s *Store) DeleteCascade(ctx context.Context, appID string, artifactIDs []models.ArtifactID, userIDs []string, states []models.State) (CascadeResult, error) {
	if len(artifactIDs) != len(userIDs) {
		return CascadeResult{}, fmt.Errorf("%w: %d artifact ids for %d users", models.ErrBadRequest, len(artifactIDs), len(userIDs))
	}

	result := CascadeResult{}
	for first := 0; first < len(userIDs); first += CascadeChunkSize {
		last := min(first+CascadeChunkSize, len(userIDs))
		result.Chunks = append(result.Chunks, CascadeChunk{
			ArtifactIDs: artifactIDs[first:last],
			UserIDs:     userIDs[first:last],
		})
	}

	for i := range result.Chunks {
		chunk := &result.Chunks[i]
		arts, users := uniqueArtifactIDs(chunk.ArtifactIDs), uniqueStrings(chunk.UserIDs)

		if _, err := s.execute(ctx, cascadeDeleteSubscriptions(appID, arts, users, states)); err != nil {
			s.log.Sugar().Errorw("Cascade delete left chunk uncleaned",
				"appId", normalizeAppID(appID), "chunk", i, "subscriptions", false, "user_subscriptions", false)
			return result, err
		}
		chunk.SubscriptionsCleaned = true

		if _, err := s.execute(ctx, cascadeDeleteUserSubscriptions(appID, arts, users, states)); err != nil {
			s.log.Sugar().Errorw("Cascade delete left chunk half cleaned",
				"appId", normalizeAppID(appID), "chunk", i, "subscriptions", true, "user_subscriptions", false)
			return result, err
		}
		chunk.UserSubscriptionsCleaned = true
	}
	s.log.Sugar().Infow("Cascade delete completed", "appId", normalizeAppID(appID), "chunks", len(result.Chunks), "users", len(userIDs))
	return result, nil
}

func uniqueArtifactIDs(ids []models.ArtifactID) []models.ArtifactID {
	seen := make(map[string]bool, len(ids))
	out := make([]models.ArtifactID, 0, len(ids))
	for _, id := range ids {
		k := strings.Join(id.IDs(), "\x00")
		if !seen[k] {
			seen[k] = true
			out = append(out, id)
		}
	}
	return out
}

func uniqueStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
