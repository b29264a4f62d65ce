package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	goSession "github.com/MrEthical07/goSession"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the security posture of the loaded configuration",
	Long: `report validates the configuration and prints which protections it enables,
with a warning for every valid setting that weakens a deployment. It does not
connect to storage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		engine, err := goSession.New().WithConfig(app.Session).Build()
		if err != nil {
			return err
		}
		defer engine.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(engine.SecurityReport())
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
