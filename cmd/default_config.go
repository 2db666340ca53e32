package cmd

import (
	"bytes"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vital-sim/vital-sim/sim/config"
)

var defaultsOutput string // File to write the default scenario to

// writeDefaults renders the built-in scenario document as YAML.
// The output loads back through config.Parse unchanged.
func writeDefaults(w io.Writer) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(config.DefaultDocument()); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// defaultsCmd prints a starting scenario file
var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the default scenario as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		w := io.Writer(os.Stdout)
		if defaultsOutput != "" {
			f, err := os.Create(defaultsOutput)
			if err != nil {
				logrus.Fatalf("Failed to create %s: %v", defaultsOutput, err)
			}
			defer f.Close()
			w = f
		}
		if err := writeDefaults(w); err != nil {
			logrus.Fatalf("Failed to render default scenario: %v", err)
		}
	},
}

func init() {
	defaultsCmd.Flags().StringVarP(&defaultsOutput, "output", "o", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(defaultsCmd)
}
