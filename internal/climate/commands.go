package climate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/nerrad567/gray-logic-thermostat/internal/thermostat"
)

// Remote command names accepted on graylogic/core/thermostat/{id}/command.
const (
	CommandSetTemperature = "set_temperature"
	CommandSetHVACMode    = "set_hvac_mode"
	CommandTurnOn         = "turn_on"
	CommandTurnOff        = "turn_off"
	CommandSetOptions     = "set_options"
)

// Command is a decoded remote command.
//
//	{"command": "set_temperature", "temperature": 21.5}
//	{"command": "set_hvac_mode", "hvac_mode": "off"}
//	{"command": "turn_on"}
//	{"command": "set_options", "options": {"hysteresis": "0.3"}}
type Command struct {
	Command     string         `mapstructure:"command"`
	Temperature *float64       `mapstructure:"temperature"`
	HVACMode    string         `mapstructure:"hvac_mode"`
	Options     map[string]any `mapstructure:"options"`
}

// DecodeCommand parses a JSON command payload. Values are converted
// weakly, so "21.5" is accepted as a temperature.
func DecodeCommand(payload []byte) (Command, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	var cmd Command
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cmd,
	})
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if cmd.Command == "" {
		return Command{}, fmt.Errorf("%w: missing command", ErrInvalidCommand)
	}
	return cmd, nil
}

// Apply executes cmd against the entity.
func (e *Entity) Apply(ctx context.Context, cmd Command) error {
	switch cmd.Command {
	case CommandSetTemperature:
		if cmd.Temperature == nil {
			return fmt.Errorf("%w: %s requires temperature", ErrInvalidCommand, cmd.Command)
		}
		return e.ctrl.SetTargetTemperature(ctx, *cmd.Temperature)

	case CommandSetHVACMode:
		mode, err := thermostat.ParseMode(cmd.HVACMode)
		if err != nil {
			return err
		}
		return e.ctrl.SetMode(ctx, mode)

	case CommandTurnOn:
		return e.ctrl.TurnOn(ctx)

	case CommandTurnOff:
		return e.ctrl.TurnOff(ctx)

	case CommandSetOptions:
		if len(cmd.Options) == 0 {
			return fmt.Errorf("%w: %s requires options", ErrInvalidCommand, cmd.Command)
		}
		changes, err := thermostat.DecodeOptions(cmd.Options)
		if err != nil {
			return err
		}
		return e.SetOptions(ctx, changes)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}
