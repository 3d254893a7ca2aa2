package climate

import "errors"

// Domain-specific errors for climate entities.
var (
	// ErrEntityNotFound is returned when a command names an unknown thermostat.
	ErrEntityNotFound = errors.New("climate: thermostat not found")

	// ErrDuplicateEntity is returned when two entries share an id.
	ErrDuplicateEntity = errors.New("climate: thermostat already exists")

	// ErrUnknownCommand is returned for unsupported remote commands.
	ErrUnknownCommand = errors.New("climate: unknown command")

	// ErrInvalidCommand is returned for malformed remote commands.
	ErrInvalidCommand = errors.New("climate: invalid command")
)
