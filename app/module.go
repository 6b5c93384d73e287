package app

import (
	"github.com/fiffu/substore/config"
	"github.com/fiffu/substore/lib"
	"github.com/fiffu/substore/lib/auth"
	"github.com/fiffu/substore/lib/events"
	"github.com/fiffu/substore/lib/reconcile"
	"github.com/fiffu/substore/lib/store"
	"github.com/fiffu/substore/senders"
	"go.uber.org/fx"
)

// Module provides everything the API server needs. The logger is left to the caller.
var Module = fx.Options(
	fx.Provide(config.NewConfig),

	fx.Provide(NewDatabase),
	fx.Provide(NewTransport),
	fx.Provide(NewSession),
	fx.Provide(store.NewStore),

	fx.Provide(senders.NewSenderRegistry),
	fx.Provide(auth.NewGate),
	fx.Provide(events.NewPublisher),

	fx.Provide(reconcile.NewLedger),
	fx.Provide(func(s *store.Store) reconcile.Cascader { return s }),
	fx.Provide(reconcile.NewWorker),
	fx.Provide(func(w *reconcile.Worker) lib.Reconciler { return w }),

	fx.Provide(lib.NewService),
	fx.Provide(NewAPI),

	fx.Invoke(func(*reconcile.Worker) {}),
)
