package store

import (
	"strings"

	"github.com/fiffu/substore/lib/models"
)

const (
	SubscriptionsTable     = "subscriptions"
	UserSubscriptionsTable = "user_subscriptions"
)

// Catalog entry names. Sessions that cannot run CQL dispatch on these.
const (
	StmtSelectSubscription             = "select_subscription"
	StmtSelectSubscriptionJSON         = "select_subscription_json"
	StmtSelectUserSubscriptionJSON     = "select_user_subscription_json"
	StmtInsertSubscription             = "insert_subscription"
	StmtInsertUserSubscription         = "insert_user_subscription"
	StmtInsertSubscriptionJSON         = "insert_subscription_json"
	StmtInsertUserSubscriptionJSON     = "insert_user_subscription_json"
	StmtDeleteSubscription             = "delete_subscription"
	StmtDeleteUserSubscription         = "delete_user_subscription"
	StmtUpdateSubscription             = "update_subscription"
	StmtSelectByIDs                    = "select_by_ids"
	StmtSelectByIDsForUser             = "select_by_ids_for_user"
	StmtSelectByIDsForUsers            = "select_by_ids_for_users"
	StmtSelectUserSubscriptionsByUser  = "select_user_subscriptions_by_user"
	StmtCascadeDeleteSubscriptions     = "cascade_delete_subscriptions"
	StmtCascadeDeleteUserSubscriptions = "cascade_delete_user_subscriptions"
	StmtCountByArtifact                = "count_by_artifact"
	StmtSelectByArtifact               = "select_by_artifact"
	StmtSelectByArtifactRole           = "select_by_artifact_role"
)

const (
	subscriptionColumns = "app_id, artifact_id, user_id, state, artifact, channelsettings, role, created_date, updated_date, subscriptiontype"

	subscriptionKeyCond     = "app_id = ? AND state = ? AND artifact_id = ? AND user_id = ?"
	userSubscriptionKeyCond = "user_id = ? AND state = ? AND app_id = ? AND artifact_id = ?"
	subscriptionIDsCond     = "app_id = ? AND state IN ? AND artifact_id IN ?"
)

func subscriptionKeyArgs(k RowKey) []any {
	return []any{k.AppID, int(k.State), artifactIDParam(k.ArtifactIDs), k.UserID}
}

func userSubscriptionKeyArgs(k RowKey) []any {
	return []any{k.UserID, int(k.State), k.AppID, artifactIDParam(k.ArtifactIDs)}
}

func selectSubscription(k RowKey) Statement {
	return Statement{
		Name:  StmtSelectSubscription,
		Query: "SELECT " + subscriptionColumns + " FROM " + SubscriptionsTable + " WHERE " + subscriptionKeyCond,
		Args:  subscriptionKeyArgs(k),
	}
}

func selectSubscriptionJSON(k RowKey) Statement {
	return Statement{
		Name:  StmtSelectSubscriptionJSON,
		Query: "SELECT JSON " + subscriptionColumns + " FROM " + SubscriptionsTable + " WHERE " + subscriptionKeyCond,
		Args:  subscriptionKeyArgs(k),
	}
}

func selectUserSubscriptionJSON(k RowKey) Statement {
	return Statement{
		Name:  StmtSelectUserSubscriptionJSON,
		Query: "SELECT JSON app_id, artifact_id, user_id, state FROM " + UserSubscriptionsTable + " WHERE " + userSubscriptionKeyCond,
		Args:  userSubscriptionKeyArgs(k),
	}
}

func insertSubscription(p rowParams) Statement {
	return Statement{
		Name:  StmtInsertSubscription,
		Query: "INSERT INTO " + SubscriptionsTable + " (" + subscriptionColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		Args: []any{
			p.key.AppID, artifactIDParam(p.key.ArtifactIDs), p.key.UserID, int(p.key.State),
			p.artifact, p.channelSettings, p.role, p.createdDate, p.updatedDate, p.subscriptionType,
		},
	}
}

func insertUserSubscription(k RowKey) Statement {
	return Statement{
		Name:  StmtInsertUserSubscription,
		Query: "INSERT INTO " + UserSubscriptionsTable + " (app_id, artifact_id, user_id, state) VALUES (?, ?, ?, ?)",
		Args:  k.args(),
	}
}

func insertSubscriptionJSON(doc string) Statement {
	return Statement{
		Name:  StmtInsertSubscriptionJSON,
		Query: "INSERT INTO " + SubscriptionsTable + " JSON ?",
		Args:  []any{doc},
	}
}

func insertUserSubscriptionJSON(doc string) Statement {
	return Statement{
		Name:  StmtInsertUserSubscriptionJSON,
		Query: "INSERT INTO " + UserSubscriptionsTable + " JSON ?",
		Args:  []any{doc},
	}
}

func deleteSubscription(k RowKey) Statement {
	return Statement{
		Name:  StmtDeleteSubscription,
		Query: "DELETE FROM " + SubscriptionsTable + " WHERE " + subscriptionKeyCond,
		Args:  subscriptionKeyArgs(k),
	}
}

func deleteUserSubscription(k RowKey) Statement {
	return Statement{
		Name:  StmtDeleteUserSubscription,
		Query: "DELETE FROM " + UserSubscriptionsTable + " WHERE " + userSubscriptionKeyCond,
		Args:  userSubscriptionKeyArgs(k),
	}
}

// deleteBoth removes one key from both tables. The two statements must share a batch.
func deleteBoth(k RowKey) []Statement {
	return []Statement{deleteSubscription(k), deleteUserSubscription(k)}
}

// insertBoth writes the full row and its projection. The two statements must share a batch.
func insertBoth(p rowParams) []Statement {
	return []Statement{insertSubscription(p), insertUserSubscription(p.key)}
}

func updateSubscription(p rowParams) Statement {
	return Statement{
		Name: StmtUpdateSubscription,
		Query: "UPDATE " + SubscriptionsTable +
			" SET artifact = ?, channelsettings = ?, role = ?, subscriptiontype = ?, updated_date = ? WHERE " + subscriptionKeyCond,
		Args: append([]any{p.artifact, p.channelSettings, p.role, p.subscriptionType, p.updatedDate},
			subscriptionKeyArgs(p.key)...),
	}
}

func selectByIDs(appID string, states []models.State, artifactIDs []models.ArtifactID) Statement {
	return Statement{
		Name:  StmtSelectByIDs,
		Query: "SELECT " + subscriptionColumns + " FROM " + SubscriptionsTable + " WHERE " + subscriptionIDsCond,
		Args:  []any{normalizeAppID(appID), statesParam(states), artifactIDsParam(artifactIDs)},
	}
}

func selectByIDsForUser(appID string, states []models.State, artifactIDs []models.ArtifactID, userID string) Statement {
	return Statement{
		Name:  StmtSelectByIDsForUser,
		Query: "SELECT " + subscriptionColumns + " FROM " + SubscriptionsTable + " WHERE " + subscriptionIDsCond + " AND user_id = ?",
		Args:  []any{normalizeAppID(appID), statesParam(states), artifactIDsParam(artifactIDs), normalizeUserID(userID)},
	}
}

// selectByIDsForUsers is the bulk fan-in lookup: one read for every user of an artifact.
func selectByIDsForUsers(appID string, states []models.State, artifactIDs []models.ArtifactID, userIDs []string) Statement {
	return Statement{
		Name:  StmtSelectByIDsForUsers,
		Query: "SELECT " + subscriptionColumns + " FROM " + SubscriptionsTable + " WHERE " + subscriptionIDsCond + " AND user_id IN ?",
		Args:  []any{normalizeAppID(appID), statesParam(states), artifactIDsParam(artifactIDs), userIDsParam(userIDs)},
	}
}

func selectUserSubscriptionsByUser(userID string, states []models.State) Statement {
	return Statement{
		Name:  StmtSelectUserSubscriptionsByUser,
		Query: "SELECT app_id, artifact_id, user_id, state FROM " + UserSubscriptionsTable + " WHERE user_id = ? AND state IN ?",
		Args:  []any{normalizeUserID(userID), statesParam(states)},
	}
}

// cascadeDeleteSubscriptions and cascadeDeleteUserSubscriptions take the same chunk.
// They are issued as separate calls, never batched together.
func cascadeDeleteSubscriptions(appID string, artifactIDs []models.ArtifactID, userIDs []string, states []models.State) Statement {
	return Statement{
		Name:  StmtCascadeDeleteSubscriptions,
		Query: "DELETE FROM " + SubscriptionsTable + " WHERE artifact_id IN ? AND app_id = ? AND state IN ? AND user_id IN ?",
		Args:  []any{artifactIDsParam(artifactIDs), normalizeAppID(appID), statesParam(states), userIDsParam(userIDs)},
	}
}

func cascadeDeleteUserSubscriptions(appID string, artifactIDs []models.ArtifactID, userIDs []string, states []models.State) Statement {
	return Statement{
		Name:  StmtCascadeDeleteUserSubscriptions,
		Query: "DELETE FROM " + UserSubscriptionsTable + " WHERE artifact_id IN ? AND app_id = ? AND state IN ? AND user_id IN ?",
		Args:  []any{artifactIDsParam(artifactIDs), normalizeAppID(appID), statesParam(states), userIDsParam(userIDs)},
	}
}

// artifactContainsCond narrows to rows whose artifact id set contains every given element.
func artifactContainsCond(ids []string) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		b.WriteString(" AND artifact_id CONTAINS ?")
		args = append(args, map[string]any{udtID: id})
	}
	return b.String(), args
}

func countByArtifact(appID string, artifactID models.ArtifactID) Statement {
	cond, args := artifactContainsCond(artifactID.IDs())
	return Statement{
		Name:  StmtCountByArtifact,
		Query: "SELECT count(*) FROM " + SubscriptionsTable + " WHERE app_id = ?" + cond + " ALLOW FILTERING",
		Args:  append([]any{normalizeAppID(appID)}, args...),
	}
}

func selectByArtifactRole(appID string, artifactID models.ArtifactID, role models.Role) Statement {
	cond, args := artifactContainsCond(artifactID.IDs())
	args = append([]any{normalizeAppID(appID)}, args...)
	return Statement{
		Name:  StmtSelectByArtifactRole,
		Query: "SELECT artifact_id, user_id, role FROM " + SubscriptionsTable + " WHERE app_id = ?" + cond + " AND role = ? ALLOW FILTERING",
		Args:  append(args, string(role)),
	}
}

// selectByArtifact returns at most limit (artifact_id, user_id) pairs; limit <= 0 means no limit.
func selectByArtifact(appID string, artifactID models.ArtifactID, limit int) Statement {
	cond, args := artifactContainsCond(artifactID.IDs())
	query := "SELECT artifact_id, user_id FROM " + SubscriptionsTable + " WHERE app_id = ?" + cond
	args = append([]any{normalizeAppID(appID)}, args...)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return Statement{
		Name:  StmtSelectByArtifact,
		Query: query + " ALLOW FILTERING",
		Args:  args,
	}
}
