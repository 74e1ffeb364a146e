package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"idp.evalgo.org/config"
	"idp.evalgo.org/store"
)

// migrateCmd creates/updates the job store schema without starting any
// stage worker, for use in a deploy's pre-flight step ahead of rolling
// out new worker replicas.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "create or update the job store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadIDPConfig("IDP")
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		db, err := store.Open(cfg.Postgres.DSN, cfg.Postgres.MaxIdleConns, cfg.Postgres.MaxOpenConns, cfg.Postgres.ConnMaxLifetime)
		if err != nil {
			return fmt.Errorf("open job store: %w", err)
		}
		defer db.Close()

		if err := db.AutoMigrate(); err != nil {
			return fmt.Errorf("migrate job store: %w", err)
		}

		fmt.Println("job store schema is up to date")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}
