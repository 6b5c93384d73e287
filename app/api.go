package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fiffu/substore/config"
	"github.com/fiffu/substore/lib"
	"github.com/fiffu/substore/lib/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Sugar().Infow("Starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Sugar().Errorw("HTTP server stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service) http.Handler {
	ctrl := &controller{log, svc}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticate(cfg, log))

		r.Get("/subscriptions", ctrl.fetchSubscriptions)

		r.Route("/api", func(r chi.Router) {
			r.Route("/subscriptions", func(r chi.Router) {
				r.Post("/", ctrl.subscribe)
				r.Put("/", ctrl.updateSubscriptions)
				r.Post("/users", ctrl.subscribeUsers)
				r.Post("/users-with-settings", ctrl.subscribeUsersWithSettings)
				r.Post("/unsubscribe", ctrl.unsubscribe)
				r.Post("/query", ctrl.querySubscriptions)
			})
			r.Get("/users/{user_id}/subscriptions", ctrl.userSubscriptions)
			r.Route("/artifacts", func(r chi.Router) {
				r.Post("/delete", ctrl.deleteArtifact)
				r.Post("/delete-cascade", ctrl.deleteArtifactCascade)
			})
		})
	})

	return r
}

type controller struct {
	log *zap.Logger
	svc *lib.Service
}

func rejectJSON(w http.ResponseWriter, err error) {
	status := models.StatusCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorView{Code: status, Message: err.Error()})
}

func (ctrl *controller) reject(w http.ResponseWriter, r *http.Request, err error) {
	if models.StatusCode(err) >= http.StatusInternalServerError {
		ctrl.log.Sugar().Errorw("Request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
	}
	rejectJSON(w, err)
}

func (ctrl *controller) resolve(w http.ResponseWriter, r *http.Request, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, r, err)
		return
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(b)
	}
}

// decode reads a JSON body, reporting syntax errors as bad requests.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %w", models.ErrBadRequest, err)
	}
	return nil
}

func (ctrl *controller) subscribe(w http.ResponseWriter, r *http.Request) {
	var in models.SubscriptionInput
	if err := decode(r, &in); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	sub, err := ctrl.svc.Subscribe(r.Context(), in)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, r, http.StatusOK, SubscriptionView{}.From(sub))
}

func (ctrl *controller) subscribeUsers(w http.ResponseWriter, r *http.Request) {
	var in models.SubscriptionUsersInput
	if err := decode(r, &in); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	subs, err := ctrl.svc.SubscribeUsers(r.Context(), in)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, r, http.StatusOK, FromMany[models.Subscription, SubscriptionView](subs))
}

func (ctrl *controller) subscribeUsersWithSettings(w http.ResponseWriter, r *http.Request) {
	var in models.SubscriptionUsersWithSettingsInput
	if err := decode(r, &in); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	subs, err := ctrl.svc.SubscribeUsersWithSettings(r.Context(), in)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, r, http.StatusOK, FromMany[models.Subscription, SubscriptionView](subs))
}

func (ctrl *controller) updateSubscriptions(w http.ResponseWriter, r *http.Request) {
	var in []models.SubscriptionInput
	if err := decode(r, &in); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	subs, err := ctrl.svc.UpdateSubscriptions(r.Context(), in)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, r, http.StatusOK, FromMany[models.Subscription, SubscriptionView](subs))
}

func (ctrl *controller) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var id models.SubscriptionID
	if err := decode(r, &id); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	out, err := ctrl.svc.Unsubscribe(r.Context(), id)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, r, http.StatusOK, out)
}

type subscriptionsQuery struct {
	AppID       string              `json:"appId"`
	ArtifactIDs []models.ArtifactID `json:"artifactIds"`
	States      []models.State      `json:"states"`
	UserID      string              `json:"userId"`
}

func (ctrl *controller) querySubscriptions(w http.ResponseWriter, r *http.Request) {
	var q subscriptionsQuery
	if err := decode(r, &q); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	if len(q.States) == 0 {
		q.States = []models.State{models.StateActive}
	}
	subs, err := ctrl.svc.Subscriptions(r.Context(), q.AppID, q.ArtifactIDs, q.States, q.UserID)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, r, http.StatusOK, FromMany[models.Subscription, SubscriptionView](subs))
}

func (ctrl *controller) userSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	query := r.URL.Query()

	var artifactID *models.ArtifactID
	if raw := query.Get("artifactId"); raw != "" {
		artifactID = &models.ArtifactID{}
		if err := json.Unmarshal([]byte(raw), artifactID); err != nil {
			ctrl.reject(w, r, fmt.Errorf("%w: artifactId must be a JSON ArtifactId", models.ErrBadRequest))
			return
		}
	}

	subs, err := ctrl.svc.UserSubscriptions(r.Context(), userID, models.Role(query.Get("role")), query.Get("appId"), artifactID)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, r, http.StatusOK, FromMany[models.Subscription, SubscriptionView](subs))
}

type artifactRequest struct {
	AppID      string            `json:"appId"`
	ArtifactID models.ArtifactID `json:"artifactId"`
	UserID     string            `json:"userId"`
}

func (ctrl *controller) deleteArtifact(w http.ResponseWriter, r *http.Request) {
	var req artifactRequest
	if err := decode(r, &req); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	status, err := ctrl.svc.DeleteArtifact(r.Context(), req.AppID, req.ArtifactID, req.UserID)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, r, http.StatusOK, map[string]any{"status": status})
}

func (ctrl *controller) deleteArtifactCascade(w http.ResponseWriter, r *http.Request) {
	var req artifactRequest
	if err := decode(r, &req); err != nil {
		ctrl.reject(w, r, err)
		return
	}
	summary, err := ctrl.svc.DeleteArtifactCascade(r.Context(), req.AppID, req.ArtifactID, req.UserID)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, r, http.StatusOK, summary)
}

// fetchSubscriptions serves one page. artifactIds is a JSON array of ArtifactId and
// states a comma-separated list of names or numbers.
func (ctrl *controller) fetchSubscriptions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var artifactIDs []models.ArtifactID
	if raw := query.Get("artifactIds"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &artifactIDs); err != nil {
			ctrl.reject(w, r, fmt.Errorf("%w: artifactIds must be a JSON array of ArtifactId", models.ErrBadRequest))
			return
		}
	}

	var states []models.State
	if raw := query.Get("states"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			state, err := models.ParseState(s)
			if err != nil {
				ctrl.reject(w, r, err)
				return
			}
			states = append(states, state)
		}
	}

	var fetchSize int
	if raw := query.Get("fetchSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			ctrl.reject(w, r, fmt.Errorf("%w: fetchSize must be an integer", models.ErrBadRequest))
			return
		}
		fetchSize = n
	}

	page, err := ctrl.svc.FetchSubscriptions(r.Context(), query.Get("appId"), artifactIDs, states, query.Get("userId"), query.Get("pageState"), fetchSize)
	if err != nil {
		ctrl.reject(w, r, err)
		return
	}
	ctrl.resolve(w, r, http.StatusOK, QueryResultsView{}.From(page))
}
