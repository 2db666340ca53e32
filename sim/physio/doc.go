// Package physio holds the deterministic physiological sub-models applied by the
// signal generator: circadian rhythm, meal response, sleep dampening, activity
// elevation and measurement noise.
//
// Every model is a pure function of simulated time and its configuration. The only
// cross-tick state is the activity Counters value, which callers thread explicitly.
package physio
