package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/fiffu/substore/app"
	"github.com/fiffu/substore/config"
	"github.com/fiffu/substore/lib/cassandra"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "substore",
		Short:         "Subscription storage service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reconciliation worker",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fx.New(
				fx.Provide(app.NewLogger),
				app.Module,
				fx.Invoke(func(*http.Server) {}),
			).Run()
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply the Cassandra schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(cassandra.Up), string(cassandra.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			cfg := config.NewConfig(log)
			return cassandra.Migrate(cfg, log, cassandra.Direction(args[0]))
		},
	}
}
