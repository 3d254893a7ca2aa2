// Package thermostat implements a hysteresis-band heating controller.
//
// A Controller keeps one room at a target temperature by switching a
// heater on and off. It follows a temperature sensor and the heater switch
// through a Host, and decides with a fixed band around the target:
//
//	lower = target - hysteresis/2   heater off and temp <= lower: turn on
//	upper = target + hysteresis/2   heater on  and temp >= upper: turn off
//
// Mode off forces the heater off and suspends control until heat mode
// returns. Unknown or unparseable readings suspend control without error.
//
// # Lifecycle
//
//	uninitialized → restoring → waiting_for_host_ready → active → stopped
//	                          ↘ active (host already running)
//
// Start restores the persisted snapshot, subscribes to the sensor and the
// heater, and either evaluates immediately or waits for the host's ready
// signal. Every later evaluation is triggered by an event: a new reading,
// a set-point or mode command, or an options change. A heater that changes
// on its own only refreshes the displayed action.
//
// # Concurrency
//
// Each Controller is a single goroutine draining an inbox, so decisions for
// one thermostat are strictly serialised and heater commands are awaited in
// line. Controllers share nothing.
//
// # Usage
//
//	c := thermostat.NewController(entry, host, store, logger)
//	c.OnStateChanged(func(s thermostat.Status) { publish(s) })
//	if err := c.Start(ctx); err != nil {
//	    return err
//	}
//	defer c.Stop()
//
//	err := c.SetTargetTemperature(ctx, 21.5)
package thermostat
