package thermostat

import "errors"

// Domain-specific errors for thermostat operations.
// Use errors.Is() to check for these errors in calling code.
//
// Sensor, actuator and subscription faults are not errors from the caller's
// point of view: they are logged and degrade to "no control action".
var (
	// ErrUnsupportedMode is returned when a mode other than heat or off is requested.
	ErrUnsupportedMode = errors.New("thermostat: unsupported hvac mode")

	// ErrInvalidTemperature is returned for a NaN or infinite set-point.
	ErrInvalidTemperature = errors.New("thermostat: invalid temperature")

	// ErrInvalidOptions is returned when an options payload cannot be decoded or validated.
	ErrInvalidOptions = errors.New("thermostat: invalid options")

	// ErrNotStarted is returned when a command reaches a controller before Start.
	ErrNotStarted = errors.New("thermostat: controller not started")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("thermostat: controller already started")

	// ErrStopped is returned when a command reaches a stopped controller.
	ErrStopped = errors.New("thermostat: controller stopped")

	// ErrNoActuator is returned by the gateway when no heater switch is configured.
	ErrNoActuator = errors.New("thermostat: no heater switch configured")
)
