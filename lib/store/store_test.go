package store_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/fiffu/substore/lib/models"
	"github.com/fiffu/substore/lib/sqlstore"
	"github.com/fiffu/substore/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errBoom = errors.New("boom")

// recordingSession counts calls reaching the embedded session and can fail chosen statements.
type recordingSession struct {
	store.Session

	mu       sync.Mutex
	executes []store.Statement
	batches  [][]store.Statement
	pages    int
	failOn   func(store.Statement) error
}

func (r *recordingSession) check(stmt store.Statement) error {
	if r.failOn == nil {
		return nil
	}
	return r.failOn(stmt)
}

func (r *recordingSession) Execute(ctx context.Context, stmt store.Statement) ([]store.Row, error) {
	r.mu.Lock()
	r.executes = append(r.executes, stmt)
	err := r.check(stmt)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.Session.Execute(ctx, stmt)
}

func (r *recordingSession) Batch(ctx context.Context, stmts []store.Statement) error {
	r.mu.Lock()
	r.batches = append(r.batches, stmts)
	var err error
	for _, s := range stmts {
		if err = r.check(s); err != nil {
			break
		}
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Session.Batch(ctx, stmts)
}

func (r *recordingSession) Paginate(ctx context.Context, stmt store.Statement, pageState []byte, fetchSize int, fn func(store.Row) error) ([]byte, error) {
	r.mu.Lock()
	r.pages++
	r.mu.Unlock()
	return r.Session.Paginate(ctx, stmt, pageState, fetchSize, fn)
}

func (r *recordingSession) executed(name string) []store.Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Statement
	for _, s := range r.executes {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

func (r *recordingSession) calls() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.executes), len(r.batches)
}

func newTestStore(t *testing.T) (*store.Store, *recordingSession, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	sess, err := sqlstore.NewSession(db, 0)
	require.NoError(t, err)
	rec := &recordingSession{Session: sess}
	return store.NewStore(zap.NewNop(), rec), rec, db
}

func artifact(ids ...string) models.Artifact {
	elems := make([]models.ArtifactElement, len(ids))
	for i, id := range ids {
		elems[i] = models.ArtifactElement{
			ArtifactIDElement: models.ArtifactIDElement{ID: id},
			Title:             "title " + id,
			ArtifactDate:      "2024-05-01",
		}
	}
	return models.Artifact{Elements: elems}
}

func input(appID string, role models.Role, ids ...string) models.SubscriptionInput {
	return models.SubscriptionInput{
		AppID:           appID,
		Artifact:        artifact(ids...),
		ChannelSettings: models.ChannelSettings{Email: models.SingleChannelSettings{Frequency: models.FrequencyDaily}},
		Role:            role,
	}
}

var bothStates = []models.State{models.StateActive, models.StateInactive}

// assertConsistent checks that both tables hold exactly the same keys.
func assertConsistent(t *testing.T, db *gorm.DB) {
	t.Helper()
	keys := func(table string) []string {
		var rows []struct {
			AppID      string
			ArtifactID string
			UserID     string
			State      int
		}
		require.NoError(t, db.Table(table).Select("app_id, artifact_id, user_id, state").Find(&rows).Error)
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = fmt.Sprintf("%s|%s|%s|%d", r.AppID, r.ArtifactID, r.UserID, r.State)
		}
		sort.Strings(out)
		return out
	}
	assert.Equal(t, keys(store.SubscriptionsTable), keys(store.UserSubscriptionsTable), "tables diverged")
}

func TestSubscribe_ThenLookupByIDs(t *testing.T) {
	ctx := context.Background()
	s, _, db := newTestStore(t)

	sub, err := s.Subscribe(ctx, input("app1", models.RoleAuthor, "blog"), "U1")
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, sub.State)
	assert.Equal(t, "blog", sub.Artifact.Elements[0].ArtifactIDElement.ID)

	found, err := s.GetSubscriptionByIDs(ctx, "app1", []models.State{models.StateActive}, []models.ArtifactID{artifact("blog").ID()}, "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, sub, found[0])
	assertConsistent(t, db)
}

func TestSubscribe_NormalizesCase(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	sub, err := s.Subscribe(ctx, input("App1", models.RoleSubscriber, "Blog"), "u1")
	require.NoError(t, err)
	assert.Equal(t, "app1", sub.AppID)
	assert.Equal(t, "U1", sub.UserID)
	assert.Equal(t, []string{"blog"}, sub.Artifact.ID().IDs())

	found, err := s.GetSubscriptionByIDs(ctx, "APP1", bothStates, []models.ArtifactID{artifact("BLOG").ID()}, "U1")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestSubscribe_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, rec, _ := newTestStore(t)
	in := input("app1", models.RoleAuthor, "blog")

	a, err := s.Subscribe(ctx, in, "U1")
	require.NoError(t, err)
	_, batches := rec.calls()

	b, err := s.Subscribe(ctx, in, "U1")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, after := rec.calls()
	assert.Equal(t, batches, after, "second subscribe must not write")
}

func TestSubscribe_AfterUnsubscribeReplacesInactiveRow(t *testing.T) {
	ctx := context.Background()
	s, rec, db := newTestStore(t)
	in := input("app1", models.RoleAuthor, "blog")

	first, err := s.Subscribe(ctx, in, "U1")
	require.NoError(t, err)

	id, err := s.Unsubscribe(ctx, first.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StateInactive, id.State)
	assertConsistent(t, db)

	inactive, err := s.GetSubscriptionByIDs(ctx, "app1", []models.State{models.StateInactive}, []models.ArtifactID{in.Artifact.ID()}, "U1")
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, models.RoleAuthor, inactive[0].Role)
	assert.Equal(t, first.ChannelSettings, inactive[0].ChannelSettings)

	_, err = s.Subscribe(ctx, in, "U1")
	require.NoError(t, err)
	last := rec.batches[len(rec.batches)-1]
	names := make([]string, len(last))
	for i, stmt := range last {
		names[i] = stmt.Name
	}
	assert.Equal(t, []string{
		store.StmtDeleteSubscription, store.StmtDeleteUserSubscription,
		store.StmtInsertSubscription, store.StmtInsertUserSubscription,
	}, names)

	all, err := s.GetSubscriptionByIDs(ctx, "app1", bothStates, []models.ArtifactID{in.Artifact.ID()}, "U1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.StateActive, all[0].State)
	assertConsistent(t, db)
}

func TestSubscribe_Failures(t *testing.T) {
	ctx := context.Background()
	s, rec, _ := newTestStore(t)

	_, err := s.Subscribe(ctx, input("app1", models.RoleAuthor), "U1")
	assert.ErrorIs(t, err, models.ErrSubscribeFailed)
	assert.ErrorIs(t, err, models.ErrBadRequest)
	execs, batches := rec.calls()
	assert.Zero(t, execs+batches, "derivation fails before any I/O")

	rec.failOn = func(stmt store.Statement) error {
		if stmt.Name == store.StmtInsertSubscription {
			return errBoom
		}
		return nil
	}
	_, err = s.Subscribe(ctx, input("app1", models.RoleAuthor, "blog"), "U1")
	assert.ErrorIs(t, err, models.ErrSubscribeFailed)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBoom)
}

func TestSubscribe_RejectsUnknownEnums(t *testing.T) {
	ctx := context.Background()
	s, rec, _ := newTestStore(t)

	cases := map[string]func(*models.SubscriptionInput){
		"empty role":   func(in *models.SubscriptionInput) { in.Role = "" },
		"unknown role": func(in *models.SubscriptionInput) { in.Role = "BOGUS" },
		"unknown email frequency": func(in *models.SubscriptionInput) {
			in.ChannelSettings.Email.Frequency = "HOURLY"
		},
		"unknown web bell frequency": func(in *models.SubscriptionInput) {
			in.ChannelSettings.WebBell = &models.SingleChannelSettings{Frequency: "sometimes"}
		},
		"unknown push frequency": func(in *models.SubscriptionInput) {
			in.ChannelSettings.MobilePush = &models.InstantChannelSettings{Frequency: "DAILY"}
		},
	}
	for name, mutate := range cases {
		in := input("app1", models.RoleAuthor, "blog")
		mutate(&in)
		_, err := s.Subscribe(ctx, in, "U1")
		assert.ErrorIs(t, err, models.ErrBadRequest, name)
	}
	_, batches := rec.calls()
	assert.Zero(t, batches)

	// Later writes and reads on the artifact are unaffected.
	sub, err := s.Subscribe(ctx, input("app1", models.RoleAuthor, "blog"), "U1")
	require.NoError(t, err)
	found, err := s.GetSubscriptionByIDs(ctx, "app1", bothStates, []models.ArtifactID{sub.Artifact.ID()}, "")
	require.NoError(t, err)
	assert.Len(t, found, 1)
	status, err := s.Delete(ctx, "app1", sub.Artifact.ID(), bothStates)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDeleted, status)
}

func TestSubscribeUsers(t *testing.T) {
	ctx := context.Background()
	s, rec, db := newTestStore(t)

	empty, err := s.SubscribeUsers(ctx, models.SubscriptionUsersInput{AppID: "app1", Artifact: artifact("blog")})
	require.NoError(t, err)
	assert.Empty(t, empty)
	execs, batches := rec.calls()
	assert.Zero(t, execs+batches)

	existing, err := s.Subscribe(ctx, input("app1", models.RoleSubscriber, "blog"), "U2")
	require.NoError(t, err)
	execs, batches = rec.calls()

	in := models.SubscriptionUsersInput{
		AppID:           "app1",
		Artifact:        artifact("blog"),
		ChannelSettings: models.ChannelSettings{Email: models.SingleChannelSettings{Frequency: models.FrequencyWeekly}},
		Role:            models.RoleSubscriber,
		UserIDs:         []string{"U1", "U2", "u1", "U3"},
	}
	subs, err := s.SubscribeUsers(ctx, in)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, []string{"U1", "U2", "U3"}, []string{subs[0].UserID, subs[1].UserID, subs[2].UserID})
	assert.Equal(t, existing, subs[1], "already active user is returned unchanged")

	execs2, batches2 := rec.calls()
	assert.Equal(t, 1, execs2-execs, "one fan-in lookup")
	assert.Equal(t, 1, batches2-batches, "one batch")
	assert.Len(t, rec.batches[len(rec.batches)-1], 4, "two new users, two tables each")
	assertConsistent(t, db)
}

func TestSubscribeUsersWithSettings(t *testing.T) {
	ctx := context.Background()
	s, _, db := newTestStore(t)

	in := models.SubscriptionUsersWithSettingsInput{
		AppID:    "app1",
		Artifact: artifact("blog"),
		UsersWithSettings: []models.SubscriptionUserWithSettings{
			{UserID: "U1", Role: models.RoleAuthor, ChannelSettings: models.ChannelSettings{
				Email:      models.SingleChannelSettings{Frequency: models.FrequencyDaily},
				MobilePush: &models.InstantChannelSettings{Frequency: models.InstantFrequencyInstantly},
			}},
			{UserID: "U2", Role: models.RoleSubscriber, ChannelSettings: models.ChannelSettings{
				Email: models.SingleChannelSettings{Frequency: models.FrequencyNA},
			}},
		},
	}
	_, err := s.SubscribeUsersWithSettings(ctx, in)
	require.NoError(t, err)

	found, err := s.GetSubscriptionByIDs(ctx, "app1", bothStates, []models.ArtifactID{in.Artifact.ID()}, "U1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, models.RoleAuthor, found[0].Role)
	require.NotNil(t, found[0].ChannelSettings.MobilePush)
	assert.Nil(t, found[0].ChannelSettings.WebBell)

	in.UsersWithSettings = append(in.UsersWithSettings, models.SubscriptionUserWithSettings{UserID: "U3"})
	_, err = s.SubscribeUsersWithSettings(ctx, in)
	assert.ErrorIs(t, err, models.ErrSubscribeFailed, "one bad user fails the whole call")
	assertConsistent(t, db)
}

func TestUpdateSubscriptions(t *testing.T) {
	ctx := context.Background()
	s, rec, _ := newTestStore(t)

	orig, err := s.Subscribe(ctx, input("app1", models.RoleSubscriber, "blog"), "U1")
	require.NoError(t, err)

	in := input("app1", "", "blog")
	in.UserID = "U1"
	in.Artifact.Elements[0].Title = "renamed"
	in.ChannelSettings.WebBell = &models.SingleChannelSettings{Frequency: models.FrequencyInstantly}

	updated, err := s.UpdateSubscriptions(ctx, []models.SubscriptionInput{in})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "renamed", updated[0].Artifact.Elements[0].Title)
	assert.Equal(t, models.RoleSubscriber, updated[0].Role, "empty role keeps the stored one")
	assert.Equal(t, orig.CreatedDate, updated[0].CreatedDate)
	assert.False(t, updated[0].UpdatedDate.Before(orig.UpdatedDate))

	found, err := s.GetSubscriptionByIDs(ctx, "app1", []models.State{models.StateActive}, []models.ArtifactID{in.Artifact.ID()}, "U1")
	require.NoError(t, err)
	assert.Equal(t, updated[0], found[0])

	_, batches := rec.calls()
	missing := input("app1", models.RoleAuthor, "other")
	missing.UserID = "U1"
	_, err = s.UpdateSubscriptions(ctx, []models.SubscriptionInput{in, missing})
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, after := rec.calls()
	assert.Equal(t, batches, after, "no write when any row is missing")

	keep := input("app1", "", "blog")
	keep.UserID = "U1"
	keep.ChannelSettings = models.ChannelSettings{}
	updated, err = s.UpdateSubscriptions(ctx, []models.SubscriptionInput{keep})
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyDaily, updated[0].ChannelSettings.Email.Frequency, "empty settings keep the stored ones")
	assert.NotNil(t, updated[0].ChannelSettings.WebBell)

	for name, bad := range map[string]func(*models.SubscriptionInput){
		"unknown role":            func(in *models.SubscriptionInput) { in.Role = "BOGUS" },
		"unknown email frequency": func(in *models.SubscriptionInput) { in.ChannelSettings.Email.Frequency = "HOURLY" },
		"missing email frequency": func(in *models.SubscriptionInput) { in.ChannelSettings.Email.Frequency = "" },
	} {
		in := input("app1", "", "blog")
		in.UserID = "U1"
		in.ChannelSettings.WebBell = &models.SingleChannelSettings{Frequency: models.FrequencyNA}
		bad(&in)
		_, before := rec.calls()
		_, err = s.UpdateSubscriptions(ctx, []models.SubscriptionInput{in})
		assert.ErrorIs(t, err, models.ErrBadRequest, name)
		_, after = rec.calls()
		assert.Equal(t, before, after, name)
	}

	found, err = s.GetSubscriptionByIDs(ctx, "app1", []models.State{models.StateActive}, []models.ArtifactID{in.Artifact.ID()}, "U1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSubscriber, found[0].Role)
	assert.Equal(t, models.FrequencyDaily, found[0].ChannelSettings.Email.Frequency)
}

func TestUnsubscribe_Errors(t *testing.T) {
	ctx := context.Background()
	s, rec, _ := newTestStore(t)

	id := models.SubscriptionID{AppID: "app1", ArtifactID: artifact("blog").ID(), UserID: "U1", State: models.StateActive}
	_, err := s.Unsubscribe(ctx, id)
	assert.ErrorIs(t, err, models.ErrNotFound)

	id.State = models.StateInactive
	_, err = s.Unsubscribe(ctx, id)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, batches := rec.calls()
	assert.Zero(t, batches)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, rec, db := newTestStore(t)
	blog := artifact("blog").ID()

	status, err := s.Delete(ctx, "app1", blog, bothStates)
	require.NoError(t, err)
	assert.Equal(t, store.StatusNoSubscribers, status)
	_, batches := rec.calls()
	assert.Zero(t, batches)

	_, err = s.SubscribeUsers(ctx, models.SubscriptionUsersInput{
		AppID: "app1", Artifact: artifact("blog"), Role: models.RoleSubscriber,
		ChannelSettings: models.ChannelSettings{Email: models.SingleChannelSettings{Frequency: models.FrequencyDaily}},
		UserIDs:         []string{"U1", "U2"},
	})
	require.NoError(t, err)
	first, err := s.Subscribe(ctx, input("app1", models.RoleAuthor, "blog"), "U3")
	require.NoError(t, err)
	_, err = s.Unsubscribe(ctx, first.ID())
	require.NoError(t, err)

	rec.failOn = func(stmt store.Statement) error {
		if stmt.Name == store.StmtDeleteUserSubscription {
			return errBoom
		}
		return nil
	}
	status, err = s.Delete(ctx, "app1", blog, bothStates)
	assert.Equal(t, store.StatusDeleteFailed, status)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assertConsistent(t, db)

	rec.failOn = nil
	status, err = s.Delete(ctx, "app1", blog, bothStates)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDeleted, status)

	left, err := s.GetSubscriptionByIDs(ctx, "app1", bothStates, []models.ArtifactID{blog}, "")
	require.NoError(t, err)
	assert.Empty(t, left)
	assertConsistent(t, db)
}

func seedUsers(t *testing.T, s *store.Store, n int, ids ...string) {
	users := make([]string, n)
	for i := range users {
		users[i] = fmt.Sprintf("U%03d", i)
	}
	_, err := s.SubscribeUsers(context.Background(), models.SubscriptionUsersInput{
		AppID: "app1", Artifact: artifact(ids...), Role: models.RoleSubscriber,
		ChannelSettings: models.ChannelSettings{Email: models.SingleChannelSettings{Frequency: models.FrequencyDaily}},
		UserIDs:         users,
	})
	require.NoError(t, err)
}

func TestDeleteCascade_ChunksUsers(t *testing.T) {
	ctx := context.Background()
	s, rec, db := newTestStore(t)
	seedUsers(t, s, 250, "blog")

	pairs, err := s.GetAllArtifactID(ctx, "app1", artifact("blog").ID(), 0)
	require.NoError(t, err)
	require.Len(t, pairs.UserIDs, 250)

	result, err := s.DeleteCascade(ctx, "app1", pairs.ArtifactIDs, pairs.UserIDs, bothStates)
	require.NoError(t, err)
	assert.True(t, result.Complete())
	require.Len(t, result.Chunks, 3)

	for _, name := range []string{store.StmtCascadeDeleteSubscriptions, store.StmtCascadeDeleteUserSubscriptions} {
		stmts := rec.executed(name)
		require.Len(t, stmts, 3, name)
		var sizes []int
		for _, stmt := range stmts {
			sizes = append(sizes, len(stmt.Args[3].([]string)))
		}
		assert.Equal(t, []int{100, 100, 50}, sizes, name)
	}

	left, err := s.GetSubscriptionByIDs(ctx, "app1", bothStates, []models.ArtifactID{artifact("blog").ID()}, "")
	require.NoError(t, err)
	assert.Empty(t, left)
	assertConsistent(t, db)
}

func TestDeleteCascade_ReportsPartialFailure(t *testing.T) {
	ctx := context.Background()
	s, rec, _ := newTestStore(t)
	seedUsers(t, s, 250, "blog")

	pairs, err := s.GetAllArtifactID(ctx, "app1", artifact("blog").ID(), 0)
	require.NoError(t, err)

	calls := 0
	rec.failOn = func(stmt store.Statement) error {
		if stmt.Name == store.StmtCascadeDeleteUserSubscriptions {
			if calls++; calls == 2 {
				return errBoom
			}
		}
		return nil
	}
	result, err := s.DeleteCascade(ctx, "app1", pairs.ArtifactIDs, pairs.UserIDs, bothStates)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.False(t, result.Complete())

	require.Len(t, result.Chunks, 3)
	assert.True(t, result.Chunks[0].Cleaned())
	assert.True(t, result.Chunks[1].SubscriptionsCleaned)
	assert.False(t, result.Chunks[1].UserSubscriptionsCleaned)
	assert.False(t, result.Chunks[2].SubscriptionsCleaned)

	incomplete := result.Incomplete()
	require.Len(t, incomplete, 2)
	assert.Len(t, incomplete[0].UserIDs, 100)
	assert.Len(t, incomplete[1].UserIDs, 50)

	rec.failOn = nil
	for _, chunk := range incomplete {
		retry, err := s.DeleteCascade(ctx, "app1", chunk.ArtifactIDs, chunk.UserIDs, bothStates)
		require.NoError(t, err)
		assert.True(t, retry.Complete())
	}
}

func TestDeleteCascade_RejectsUnpairedInput(t *testing.T) {
	s, rec, _ := newTestStore(t)
	_, err := s.DeleteCascade(context.Background(), "app1", []models.ArtifactID{artifact("blog").ID()}, nil, bothStates)
	assert.ErrorIs(t, err, models.ErrBadRequest)
	execs, _ := rec.calls()
	assert.Zero(t, execs)
}

func TestGetPaginationResults_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	seedUsers(t, s, 5, "blog")
	ids := []models.ArtifactID{artifact("blog").ID()}

	all, err := s.GetPaginationResults(ctx, "app1", bothStates, ids, "", "", 5)
	require.NoError(t, err)
	require.Len(t, all.Subscriptions, 5)
	assert.Empty(t, all.PageState)

	var paged models.Subscriptions
	token := ""
	for i := 0; i < 5; i++ {
		page, err := s.GetPaginationResults(ctx, "app1", bothStates, ids, "", token, 1)
		require.NoError(t, err)
		require.Len(t, page.Subscriptions, 1)
		paged = append(paged, page.Subscriptions...)
		token = page.PageState
	}
	assert.Equal(t, all.Subscriptions, paged)
	assert.Empty(t, token)

	_, err = s.GetPaginationResults(ctx, "app1", bothStates, ids, "", "***", 1)
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestUserSubscriptions(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	_, err := s.Subscribe(ctx, input("app1", models.RoleAuthor, "blog"), "U1")
	require.NoError(t, err)
	_, err = s.Subscribe(ctx, input("app1", models.RoleSubscriber, "news"), "U1")
	require.NoError(t, err)
	_, err = s.Subscribe(ctx, input("app2", models.RoleSubscriber, "forum"), "U1")
	require.NoError(t, err)
	_, err = s.Subscribe(ctx, input("app2", models.RoleAuthor, "forum"), "U2")
	require.NoError(t, err)

	active := []models.State{models.StateActive}
	all, err := s.UserSubscriptions(ctx, "u1", active, "", "", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, sub := range all {
		assert.Equal(t, "U1", sub.UserID)
	}

	authored, err := s.UserSubscriptions(ctx, "U1", active, models.RoleAuthor, "", nil)
	require.NoError(t, err)
	require.Len(t, authored, 1)
	assert.Equal(t, "app1", authored[0].AppID)

	forum := artifact("forum").ID()
	direct, err := s.UserSubscriptions(ctx, "U1", active, "", "app2", &forum)
	require.NoError(t, err)
	require.Len(t, direct, 1)
	assert.Equal(t, models.RoleSubscriber, direct[0].Role)

	_, err = s.UserSubscriptions(ctx, "U1", active, "", "", &forum)
	assert.ErrorIs(t, err, models.ErrBadRequest)
	_, err = s.UserSubscriptions(ctx, "", active, "", "", nil)
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestGetAllArtifactIDCount(t *testing.T) {
	ctx := context.Background()
	s, rec, _ := newTestStore(t)

	_, err := s.Subscribe(ctx, input("app1", models.RoleAuthor, "blog", "post"), "U1")
	require.NoError(t, err)
	_, err = s.Subscribe(ctx, input("app1", models.RoleSubscriber, "blog", "post"), "U2")
	require.NoError(t, err)
	_, err = s.Subscribe(ctx, input("app1", models.RoleAuthor, "blog", "post", "comment"), "U3")
	require.NoError(t, err)

	id := artifact("blog", "post").ID()
	count, err := s.GetAllArtifactIDCount(ctx, "app1", id, "u1")
	require.NoError(t, err)
	assert.Equal(t, store.ArtifactCount{CountOfRows: 3, UserIDMatch: true}, count)

	count, err = s.GetAllArtifactIDCount(ctx, "app1", id, "U3")
	require.NoError(t, err)
	assert.False(t, count.UserIDMatch, "author of a longer artifact set does not match")

	pairs, err := s.GetAllArtifactID(ctx, "app1", id, 2)
	require.NoError(t, err)
	assert.Len(t, pairs.UserIDs, 2)

	rec.failOn = func(store.Statement) error { return errBoom }
	_, err = s.GetAllArtifactIDCount(ctx, "app1", id, "U1")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}
