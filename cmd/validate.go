package cmd

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vital-sim/vital-sim/sim/config"
)

// validateScenario compiles the scenario at path and prints its summary to w.
func validateScenario(path string, w io.Writer) error {
	sc, err := config.Load(path)
	if err != nil {
		return err
	}
	sc.Summary(w)
	return nil
}

// validateCmd checks a scenario file without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a scenario file and print what it would simulate",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		if err := validateScenario(configPath, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func init() {
	validateCmd.Flags().StringVar(&configPath, "config", "scenario.yaml", "Scenario YAML file")
	rootCmd.AddCommand(validateCmd)
}
