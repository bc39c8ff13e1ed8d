// Command dbflow inspects routing configuration: it answers "which database
// would this entity or operation hit" without touching any database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratumhq/dbflow/pkg/config"
	"github.com/stratumhq/dbflow/pkg/dbcontext"
	"github.com/stratumhq/dbflow/pkg/routing"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "dbflow",
		Short:         "Inspect dbflow database routing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	root.AddCommand(newResolveCmd(), newDatabasesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newResolveCmd() *cobra.Command {
	var entity, operation string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the target database for an entity or operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if entity == "" && operation == "" {
				return fmt.Errorf("provide --entity and/or --operation")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			static := cfg.StaticProvider()
			ambient := dbcontext.New(nil)
			router := routing.NewRouter(routing.RouterConfig{
				Metadata: static,
				Ambient:  ambient,
			})

			// Resolution falls through to the configured default when
			// nothing matches.
			ctx := ambient.Bind(cmd.Context())
			if err := ambient.SetDatabase(ctx, cfg.DefaultDatabase); err != nil {
				return err
			}

			if entity != "" {
				db, ok := static.DatabaseForTypeName(entity)
				if !ok {
					db = routing.DatabaseID(cfg.DefaultDatabase)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "entity %s -> %s\n", entity, db)
			}
			if operation != "" {
				db := router.ResolveForOperation(ctx, routing.Operation{Identity: operation})
				fmt.Fprintf(cmd.OutOrStdout(), "operation %s -> %s\n", operation, db)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "entity type name, e.g. Order")
	cmd.Flags().StringVar(&operation, "operation", "", "operation identity, e.g. OrderService.Archive")
	return cmd
}

func newDatabasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "databases",
		Short: "List configured databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "default: %s\n", cfg.DefaultDatabase)
			for _, db := range cfg.Databases {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s:%d/%s\n",
					db.ID, db.Driver, db.Host, db.Port, db.Database)
			}
			return nil
		},
	}
}
