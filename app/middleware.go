package app

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/fiffu/substore/config"
	"github.com/fiffu/substore/lib/auth"
	"github.com/fiffu/substore/lib/models"
	"go.uber.org/zap"
)

const apiKeyScheme = "apiKey "

// authenticate accepts HTTP Basic credentials for users, and
// "Authorization: apiKey <appId>:<token>" for applications.
func authenticate(cfg *config.Config, log *zap.Logger) func(http.Handler) http.Handler {
	creds, keys := cfg.GetCreds(), cfg.GetAPIKeys()
	if len(keys) == 0 {
		log.Sugar().Info("API key auth is disabled since no keys are defined")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := actorFromRequest(r, creds, keys)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="substore"`)
				rejectJSON(w, fmt.Errorf("%w: missing or invalid credentials", models.ErrUnauthenticated))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

func actorFromRequest(r *http.Request, creds, keys map[string]string) (auth.Actor, bool) {
	header := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(header, apiKeyScheme); ok {
		appID, token, ok := strings.Cut(strings.TrimSpace(rest), ":")
		if !ok || !matches(keys, appID, token) {
			return auth.Actor{}, false
		}
		return auth.Actor{ID: appID, Policy: auth.PolicyAPIKey}, true
	}

	user, pass, ok := r.BasicAuth()
	if !ok || !matches(creds, user, pass) {
		return auth.Actor{}, false
	}
	return auth.Actor{ID: user, Policy: auth.PolicyBearer}, true
}

func matches(secrets map[string]string, name, secret string) bool {
	want, ok := secrets[name]
	return ok && name != "" && subtle.ConstantTimeCompare([]byte(want), []byte(secret)) == 1
}
