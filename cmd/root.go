package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/config"
	"github.com/vital-sim/vital-sim/sim/engine"
	"github.com/vital-sim/vital-sim/sim/status"
	"github.com/vital-sim/vital-sim/sim/trace"
)

var (
	// CLI flags shared by every scenario command
	configPath string // Scenario YAML file
	logLevel   string // Log verbosity level

	// CLI flags overriding the scenario for `run`
	seed     int64         // Seed for the patient RNG streams
	horizon  time.Duration // Simulated run length
	realtime bool          // Pace ticks against the wall clock
	speedup  float64       // Wall-clock speedup in realtime mode
	dryRun   bool          // Log readings and alerts instead of connecting to sinks
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "vital-sim",
	Short: "Physiological vital-sign simulator with threshold alerting",
}

// setupLogging applies --log or exits.
func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// applyOverrides copies explicitly set run flags onto the document.
// Flags left at their defaults never replace values from the file.
func applyOverrides(cmd *cobra.Command, doc *config.Document) {
	if cmd.Flags().Changed("seed") {
		doc.Seed = seed
	}
	if cmd.Flags().Changed("horizon") {
		doc.Horizon = horizon
	}
	if cmd.Flags().Changed("realtime") {
		doc.Realtime = realtime
	}
	if cmd.Flags().Changed("speedup") {
		doc.Speedup = speedup
	}
}

// runCmd executes the simulation described by the scenario file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the vital-sign simulation",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		doc, err := config.LoadDocument(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		applyOverrides(cmd, doc)
		sc, err := doc.Compile()
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m := sim.NewMetrics()
		conns, err := connect(ctx, sc, dryRun)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		defer conns.Close()

		e := engine.New(sc, conns.Sinks(true), m)
		if conns.mqtt != nil {
			if err := conns.mqtt.PublishDeviceMetadata(deviceMetadata(sc)); err != nil {
				logrus.Warnf("publishing device metadata: %v", err)
			}
			if err := conns.mqtt.SubscribeCommands(e); err != nil {
				logrus.Fatalf("subscribing to operator commands: %v", err)
			}
		}
		if sc.HTTPAddr != "" {
			provider := status.ProviderFunc(func() status.Health {
				h := e.Health()
				h.Components = conns.Health()
				return h
			})
			go func() {
				if err := status.NewServer(sc.HTTPAddr, provider, e.Pipeline(), m.Registry).Run(ctx); err != nil {
					logrus.Errorf("status server: %v", err)
				}
			}()
		}

		logrus.Infof("Starting simulation with %d patient(s), seed=%d, horizon=%s", len(sc.Profiles), sc.Seed, sc.Horizon)
		startTime := time.Now()
		if err := e.Run(ctx); err != nil {
			logrus.Fatalf("simulation failed: %v", err)
		}
		m.Print(os.Stdout, e.Ticks(), startTime)
		if e.Trace().Enabled() {
			printTraceSummary(trace.Summarize(e.Trace()))
		}

		logrus.Info("Simulation complete.")
	},
}

func printTraceSummary(s *trace.TraceSummary) {
	fmt.Println("=== Alert Trace ===")
	fmt.Printf("Transitions          : %d\n", s.TotalTransitions)
	fmt.Printf("Created / Resolved   : %d / %d\n", s.Created, s.Resolved)
	fmt.Printf("Rejected Readings    : %d\n", s.Rejected)
	fmt.Printf("Patients With Alerts : %d\n", s.UniquePatients)
	if s.Resolved > 0 {
		fmt.Printf("Mean Time To Resolve : %s\n", s.MeanTimeToResolve)
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&configPath, "config", "scenario.yaml", "Scenario YAML file")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for the patient random streams")
	runCmd.Flags().DurationVar(&horizon, "horizon", 24*time.Hour, "Simulated run length (0 runs until interrupted, realtime only)")
	runCmd.Flags().BoolVar(&realtime, "realtime", false, "Pace ticks against the wall clock")
	runCmd.Flags().Float64Var(&speedup, "speedup", 1, "Wall-clock speedup factor in realtime mode")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log readings and alerts instead of connecting to external sinks")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
