package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/alert"
	"github.com/vital-sim/vital-sim/sim/config"
	"github.com/vital-sim/vital-sim/sim/engine"
	"github.com/vital-sim/vital-sim/sim/status"
	"github.com/vital-sim/vital-sim/sim/trace"
	"github.com/vital-sim/vital-sim/sim/transport"
)

// errMonitorOnly rejects operator commands that need a running simulation.
var errMonitorOnly = errors.New("command not supported in monitor mode")

// monitorCommander answers operator commands for the monitor. Only
// acknowledgements apply; there are no simulated patients to steer.
type monitorCommander struct {
	pipeline *engine.Pipeline
}

func (c monitorCommander) Acknowledge(alertID, actor, notes string) error {
	_, err := c.pipeline.Acknowledge(alertID, actor, notes)
	return err
}

func (monitorCommander) SetCondition(string, string) error { return errMonitorOnly }

func (monitorCommander) StopPatient(string) error { return errMonitorOnly }

// monitor is the alerting half of the simulator fed by readings from the broker.
type monitor struct {
	sc       *config.Scenario
	pipeline *engine.Pipeline
	alerts   transport.Fanout[alert.Event]
	purgers  []engine.Purger
	started  time.Time
}

func newMonitor(sc *config.Scenario, sinks engine.Sinks, m *sim.Metrics) *monitor {
	var alerts transport.Fanout[alert.Event]
	for name, sink := range sinks.Alerts {
		alerts = append(alerts, transport.NewDispatcher("alerts/"+name, sc.Queue, sc.Retry, m, sink.PublishAlertEvent))
	}
	dedup := alert.NewDeduplicator(alert.WithConflictHook(func(alert.Key) {
		m.StateConflicts.Inc()
	}))
	tr := trace.NewSimulationTrace(sc.Trace)
	return &monitor{
		sc:       sc,
		pipeline: engine.NewPipeline(sc.Evaluator, dedup, alerts, m, tr, sc.MaxClockSkew, time.Now),
		alerts:   alerts,
		purgers:  sinks.Purgers,
		started:  time.Now(),
	}
}

// ingest feeds one broker reading through the pipeline. Invalid readings are
// already counted and logged by the pipeline, so they are not returned.
func (mo *monitor) ingest(ctx context.Context, r sim.Reading) error {
	_, err := mo.pipeline.Ingest(ctx, r)
	var verr *sim.ValidationError
	if errors.As(err, &verr) {
		return nil
	}
	return err
}

// purge drops resolved alerts older than the retention window.
func (mo *monitor) purge(ctx context.Context, now time.Time) {
	before := now.Add(-mo.sc.Retention)
	if n := mo.pipeline.Deduplicator().PurgeResolved(before); n > 0 {
		logrus.Debugf("purged %d resolved alert(s) from memory", n)
	}
	for _, p := range mo.purgers {
		if _, err := p.PurgeResolved(ctx, before); err != nil {
			logrus.Warnf("purging resolved alerts: %v", err)
		}
	}
}

func (mo *monitor) Health() status.Health {
	return status.Health{
		Alive:        true,
		ActiveAlerts: mo.pipeline.Deduplicator().LiveCount(),
		Uptime:       time.Since(mo.started),
	}
}

// run blocks until ctx ends, purging on a wall-clock ticker, then drains the dispatchers.
func (mo *monitor) run(ctx context.Context) error {
	mo.alerts.Start(context.WithoutCancel(ctx))
	ticker := time.NewTicker(mo.sc.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			return mo.alerts.Close(drainCtx)
		case now := <-ticker.C:
			mo.purge(ctx, now)
		}
	}
}

// monitorCmd evaluates readings published by external devices
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Evaluate readings from the MQTT broker and publish alerts",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		sc, err := config.Load(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if !sc.MQTT.Enabled() {
			logrus.Fatalf("%v", &sim.ConfigurationError{Field: "mqtt.broker", Reason: "required in monitor mode"})
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m := sim.NewMetrics()
		conns, err := connect(ctx, sc, false)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		defer conns.Close()

		mo := newMonitor(sc, conns.Sinks(false), m)
		if err := conns.mqtt.SubscribeReadings(func(r sim.Reading) error { return mo.ingest(ctx, r) }); err != nil {
			logrus.Fatalf("subscribing to readings: %v", err)
		}
		if err := conns.mqtt.SubscribeCommands(monitorCommander{pipeline: mo.pipeline}); err != nil {
			logrus.Fatalf("subscribing to operator commands: %v", err)
		}
		if sc.HTTPAddr != "" {
			provider := status.ProviderFunc(func() status.Health {
				h := mo.Health()
				h.Components = conns.Health()
				return h
			})
			go func() {
				if err := status.NewServer(sc.HTTPAddr, provider, mo.pipeline, m.Registry).Run(ctx); err != nil {
					logrus.Errorf("status server: %v", err)
				}
			}()
		}

		logrus.Infof("Monitoring readings on %s", sc.MQTT.Broker)
		if err := mo.run(ctx); err != nil {
			logrus.Errorf("draining alert sinks: %v", err)
		}
		logrus.Info("Monitor stopped.")
	},
}

func init() {
	monitorCmd.Flags().StringVar(&configPath, "config", "scenario.yaml", "Scenario YAML file")
	rootCmd.AddCommand(monitorCmd)
}
