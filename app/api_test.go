package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/fiffu/substore/config"
	"github.com/fiffu/substore/lib"
	"github.com/fiffu/substore/lib/auth"
	"github.com/fiffu/substore/lib/events"
	"github.com/fiffu/substore/lib/models"
	"github.com/fiffu/substore/lib/reconcile"
	"github.com/fiffu/substore/lib/sqlstore"
	"github.com/fiffu/substore/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("BASIC_AUTH_CREDS", "U1:pw1,U2:pw2")
	t.Setenv("API_KEYS", "app1:secret")
	t.Setenv("DEFAULT_FETCH_SIZE", "2")
	cfg := config.NewConfig(zap.NewNop())

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	sess, err := sqlstore.NewSession(db, 0)
	require.NoError(t, err)
	ledger, err := reconcile.NewLedger(db, zap.NewNop())
	require.NoError(t, err)

	svc := lib.NewService(cfg, zap.NewNop(), store.NewStore(zap.NewNop(), sess), auth.OwnerGate{}, events.Noop{}, ledger, nopReconciler{})
	return router(cfg, zap.NewNop(), svc)
}

type nopReconciler struct{}

func (nopReconciler) Nudge() {}

type caller func(req *http.Request)

func asBasic(user, pass string) caller {
	return func(req *http.Request) { req.SetBasicAuth(user, pass) }
}

func asAPIKey(appID, token string) caller {
	return func(req *http.Request) { req.Header.Set("Authorization", "apiKey "+appID+":"+token) }
}

func call(t *testing.T, h http.Handler, who caller, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if who != nil {
		who(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func subscriptionBody(userID string, role models.Role) map[string]any {
	return map[string]any{
		"appId":  "App1",
		"userId": userID,
		"role":   role,
		"artifact": map[string]any{"elements": []any{
			map[string]any{"artifactIdElement": map[string]any{"id": "A1"}, "title": "Doc", "artifactDate": "2024-05-01"},
		}},
		"channelSettings": map[string]any{"email": map[string]any{"frequency": "DAILY"}},
	}
}

var artifactA1 = map[string]any{"elements": []any{map[string]any{"id": "a1"}}}

func TestHealth(t *testing.T) {
	rec := call(t, newTestRouter(t), nil, http.MethodGet, "/health/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestAuthentication(t *testing.T) {
	h := newTestRouter(t)

	for name, who := range map[string]caller{
		"anonymous":   nil,
		"bad password": asBasic("U1", "nope"),
		"bad api key":  asAPIKey("app1", "nope"),
		"unknown app":  asAPIKey("app2", "secret"),
	} {
		t.Run(name, func(t *testing.T) {
			rec := call(t, h, who, http.MethodPost, "/api/subscriptions/query", map[string]any{"appId": "app1"})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			var view ErrorView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
			assert.Equal(t, http.StatusUnauthorized, view.Code)
		})
	}
}

func TestSubscribeFlow(t *testing.T) {
	h := newTestRouter(t)

	rec := call(t, h, asBasic("U1", "pw1"), http.MethodPost, "/api/subscriptions", subscriptionBody("", models.RoleAuthor))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sub SubscriptionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.Equal(t, "app1", sub.AppID)
	assert.Equal(t, "U1", sub.UserID)
	assert.Equal(t, models.StateActive, sub.State)
	require.NotNil(t, sub.CreatedDate)

	rec = call(t, h, asBasic("U2", "pw2"), http.MethodPost, "/api/subscriptions", subscriptionBody("U1", models.RoleSubscriber))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, h, asBasic("U1", "pw1"), http.MethodGet, "/api/users/U1/subscriptions?role=AUTHOR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var subs []SubscriptionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	assert.Len(t, subs, 1)

	rec = call(t, h, asBasic("U1", "pw1"), http.MethodPost, "/api/subscriptions/unsubscribe", map[string]any{
		"appId": "app1", "artifactId": artifactA1, "userId": "U1", "state": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var id models.SubscriptionID
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))
	assert.Equal(t, models.StateInactive, id.State)

	rec = call(t, h, asBasic("U1", "pw1"), http.MethodPost, "/api/subscriptions/unsubscribe", map[string]any{
		"appId": "app1", "artifactId": artifactA1, "userId": "U1", "state": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBadRequestBody(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions", bytes.NewBufferString("{"))
	req.SetBasicAuth("U1", "pw1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	noRole := subscriptionBody("", "")
	delete(noRole, "role")
	assert.Equal(t, http.StatusBadRequest, call(t, h, asBasic("U1", "pw1"), http.MethodPost, "/api/subscriptions", noRole).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, h, asBasic("U1", "pw1"), http.MethodPost, "/api/subscriptions", subscriptionBody("", "BOGUS")).Code)

	// The artifact stays usable after rejected writes.
	assert.Equal(t, http.StatusOK, call(t, h, asBasic("U1", "pw1"), http.MethodPost, "/api/subscriptions", subscriptionBody("", models.RoleAuthor)).Code)
}

func TestDeleteArtifactRoutes(t *testing.T) {
	h := newTestRouter(t)
	require.Equal(t, http.StatusOK, call(t, h, asBasic("U1", "pw1"), http.MethodPost, "/api/subscriptions", subscriptionBody("", models.RoleAuthor)).Code)
	require.Equal(t, http.StatusOK, call(t, h, asBasic("U2", "pw2"), http.MethodPost, "/api/subscriptions", subscriptionBody("", models.RoleSubscriber)).Code)

	body := map[string]any{"appId": "app1", "artifactId": artifactA1}
	assert.Equal(t, http.StatusForbidden, call(t, h, asBasic("U2", "pw2"), http.MethodPost, "/api/artifacts/delete-cascade", body).Code)

	rec := call(t, h, asBasic("U1", "pw1"), http.MethodPost, "/api/artifacts/delete-cascade", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary lib.CascadeSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Deleted)

	assert.Equal(t, http.StatusNotFound, call(t, h, asBasic("U1", "pw1"), http.MethodPost, "/api/artifacts/delete", body).Code)
}

func TestFetchSubscriptions_Paginates(t *testing.T) {
	h := newTestRouter(t)
	for _, u := range []string{"U1", "U2", "U3"} {
		rec := call(t, h, asAPIKey("app1", "secret"), http.MethodPost, "/api/subscriptions", subscriptionBody(u, models.RoleSubscriber))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	ids, _ := json.Marshal([]any{artifactA1})
	query := url.Values{"appId": {"app1"}, "artifactIds": {string(ids)}, "states": {"active"}}

	var seen []string
	for page := 0; page < 3; page++ {
		rec := call(t, h, asAPIKey("app1", "secret"), http.MethodGet, "/subscriptions?"+query.Encode(), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var view QueryResultsView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		for _, s := range view.Subscriptions {
			seen = append(seen, s.UserID)
		}
		if view.PageState == "" {
			break
		}
		query.Set("pageState", view.PageState)
	}
	assert.ElementsMatch(t, []string{"U1", "U2", "U3"}, seen)

	rec := call(t, h, asBasic("U1", "pw1"), http.MethodGet, "/subscriptions?appId=app1&userId=U2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, h, asBasic("U1", "pw1"), http.MethodGet, "/subscriptions?appId=app1&fetchSize=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModule(t *testing.T) {
	err := fx.ValidateApp(
		Module,
		fx.Provide(zap.NewNop),
		fx.Invoke(func(*http.Server) {}),
	)
	assert.NoError(t, err)
}
