// Package generator composes the physiological sub-models and condition modifier
// into one reading per patient per tick.
package generator

import (
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/condition"
	"github.com/vital-sim/vital-sim/sim/physio"
)

// Generator produces readings. It holds only read-only configuration, so one
// Generator may serve every patient task concurrently.
type Generator struct {
	Events condition.EventConfig
	Origin time.Time // start of the first activity counter period
}

// New creates a Generator. Activity counter periods are aligned to UTC midnight of start.
func New(events condition.EventConfig, start time.Time) *Generator {
	y, m, d := start.UTC().Date()
	return &Generator{Events: events, Origin: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Generate produces the reading for p at the tick described by sc.
//
// For each vital sign, in sim.AllVitalSigns order:
// baseline, circadian multiplier, meal bump, sleep dampening, activity elevation,
// condition (or acute event) modifier, bounded noise, hard clip, sensor rounding.
func (g *Generator) Generate(p *Patient, sc *sim.SimulationContext) sim.Reading {
	p.mu.Lock()
	defer p.mu.Unlock()

	prof := &p.profile
	sched := &prof.Schedule
	hour := sc.HourOfDay()

	p.event = g.Events.Step(p.condition, p.event, sc.Now, sc.Events)

	depth := sched.Sleep.Depth(hour)
	intensity := sched.Activity.Intensity(hour) * physio.ActivitySuppression(depth)
	p.counters = sched.Activity.Accumulate(p.counters, intensity, sc.Now, g.Origin, sc.Interval)

	noise := physio.Noise{Level: prof.NoiseLevel}
	vitals := make(map[sim.VitalSign]float64, len(sim.AllVitalSigns))
	for _, v := range sim.AllVitalSigns {
		val := prof.Baseline(v)
		val *= sched.Circadian.Multiplier(v, hour)
		val += sched.Meals.Effect(v, hour)
		val *= physio.Dampening(v, depth)
		val += physio.Elevation(v, intensity)
		val = condition.Modifier(p.condition, p.event, v, val)
		val = noise.Apply(val, sc.Noise)
		vitals[v] = v.Round(v.Clip(val))
	}

	r := sim.Reading{
		PatientID: prof.ID,
		DeviceID:  prof.DeviceID,
		Timestamp: sc.Now,
		Vitals:    vitals,
		Activity: sim.ActivityMetrics{
			Intensity:    round2(intensity),
			Steps:        math.Floor(p.counters.Steps),
			DistanceM:    round2(p.counters.DistanceM),
			CaloriesKcal: round2(p.counters.CaloriesKcal),
		},
		Metadata: map[string]string{
			sim.MetaCondition: string(p.condition),
			sim.MetaTick:      strconv.FormatInt(sc.Tick, 10),
		},
	}
	if name := p.event.Name(); name != "" {
		r.Metadata[sim.MetaEvent] = name
	}
	logrus.WithFields(logrus.Fields{"patient_id": prof.ID, "tick": sc.Tick}).Debugf("generated %v", vitals)
	return r
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
