package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goSession/config"
	"github.com/MrEthical07/goSession/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the PostgreSQL schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		if app.Storage.Driver != config.DriverPostgres {
			return fmt.Errorf("migrate needs storage.driver=%s, have %q", config.DriverPostgres, app.Storage.Driver)
		}
		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}
		if err := postgres.Migrate(app.Storage.DSN, direction); err != nil {
			return err
		}
		cmd.Printf("migrate %s: done\n", direction)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
