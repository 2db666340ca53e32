package physio

// Schedule groups the time-of-day sub-models for one patient.
type Schedule struct {
	Circadian CircadianConfig `yaml:"circadian"`
	Meals     MealConfig      `yaml:"meals"`
	Sleep     SleepConfig     `yaml:"sleep"`
	Activity  ActivityConfig  `yaml:"activity"`
}

// DefaultSchedule returns every sub-model enabled with default parameters.
func DefaultSchedule() Schedule {
	return Schedule{
		Circadian: DefaultCircadianConfig(),
		Meals:     DefaultMealConfig(),
		Sleep:     DefaultSleepConfig(),
		Activity:  DefaultActivityConfig(),
	}
}

// Normalize derives the circadian wake hour from the sleep window when unset.
func (s *Schedule) Normalize() {
	if s.Circadian.WakeHour == nil && s.Sleep.Enabled {
		w := s.Sleep.WakeHour()
		s.Circadian.WakeHour = &w
	}
}

// Validate checks every sub-model, prefixing errors with prefix.
func (s *Schedule) Validate(prefix string) error {
	if err := s.Circadian.Validate(prefix + ".circadian"); err != nil {
		return err
	}
	if err := s.Meals.Validate(prefix + ".meals"); err != nil {
		return err
	}
	if err := s.Sleep.Validate(prefix + ".sleep"); err != nil {
		return err
	}
	return s.Activity.Validate(prefix + ".activity")
}
