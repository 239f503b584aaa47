package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colinxr/notion-graph-view-sub001/internal/config"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository/sqlite"
)

func newMigrateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite schema migrations",
		Long: `Opens the configured SQLite store, applies any pending migrations and
prints the resulting schema version. Only the sqlite driver has a schema.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfg.Store.Driver != config.DriverSQLite {
				return apperrors.Configuration(apperrors.CodeInvalidConfig.String(),
					fmt.Sprintf("migrate needs the sqlite driver, not %q", rt.cfg.Store.Driver)).
					Build()
			}

			store, err := sqlite.Open(cmd.Context(), rt.cfg.Store.SQLitePath, rt.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			version, err := store.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", store.Path(), version)
			return nil
		},
	}
}
