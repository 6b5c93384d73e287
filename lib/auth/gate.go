package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/substore/config"
	"go.uber.org/zap"
)

type Policy string

const (
	PolicyBearer Policy = "bearer"
	PolicyAPIKey Policy = "apiKey"
)

// Actor is the authenticated caller. Bearer actors are end users; API key actors are
// applications acting for their users.
type Actor struct {
	ID     string `json:"id"`
	Policy Policy `json:"policy"`
}

func (a Actor) IsService() bool {
	return a.Policy == PolicyAPIKey
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// Gate decides whether an actor may act as the target user.
type Gate interface {
	IsAuthorizedActor(ctx context.Context, actor Actor, targetUserID string) (bool, error)
}

func NewGate(cfg *config.Config, log *zap.Logger, transport http.RoundTripper) Gate {
	if cfg.Authz.URL == "" {
		log.Info("Authorization uses the owner gate")
		return OwnerGate{}
	}
	log.Sugar().Infow("Authorization uses the remote gate", "url", cfg.Authz.URL)
	return &RemoteGate{
		url:       cfg.Authz.URL,
		timeout:   cfg.AuthzTimeout(),
		transport: transport,
		log:       log,
	}
}

// OwnerGate lets users act only as themselves, compared case-insensitively.
// Applications may act for any user.
type OwnerGate struct{}

func (OwnerGate) IsAuthorizedActor(ctx context.Context, actor Actor, targetUserID string) (bool, error) {
	if actor.IsService() {
		return true, nil
	}
	return actor.ID != "" && strings.EqualFold(actor.ID, targetUserID), nil
}

// RemoteGate asks an external authorization service.
type RemoteGate struct {
	url       string
	timeout   time.Duration
	transport http.RoundTripper
	log       *zap.Logger
}

type decisionRequest struct {
	Actor  Actor  `json:"actor"`
	Target string `json:"target"`
}

type decisionResponse struct {
	Allowed bool `json:"allowed"`
}

func (g *RemoteGate) IsAuthorizedActor(ctx context.Context, actor Actor, targetUserID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var resp decisionResponse
	err := requests.URL(g.url).
		Transport(g.transport).
		BodyJSON(decisionRequest{Actor: actor, Target: targetUserID}).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		g.log.Sugar().Errorw("Authorization request failed", "actor", actor.ID, "target", targetUserID, "err", err)
		return false, err
	}
	g.log.Sugar().Debugw("Authorization decision", "actor", actor.ID, "target", targetUserID, "allowed", resp.Allowed)
	return resp.Allowed, nil
}
