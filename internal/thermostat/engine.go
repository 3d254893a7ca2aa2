package thermostat

// Command is the actuator transition a decision asks for.
type Command int

const (
	CommandNone Command = iota
	CommandOn
	CommandOff
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CommandOn:
		return "on"
	case CommandOff:
		return "off"
	default:
		return "none"
	}
}

// Reasons attached to a Decision.
const (
	ReasonModeOff               = "mode_off"
	ReasonTemperatureUnknown    = "temperature_unknown"
	ReasonActuatorNotConfigured = "actuator_not_configured"
	ReasonActuatorNotFound      = "actuator_not_found"
	ReasonAboveUpperBound       = "above_upper_bound"
	ReasonBelowLowerBound       = "below_lower_bound"
	ReasonWithinBand            = "within_band"
)

// DecisionInput is everything the hysteresis decision looks at.
type DecisionInput struct {
	Mode        Mode
	CurrentTemp *float64
	TargetTemp  float64
	Hysteresis  float64

	ActuatorConfigured bool
	ActuatorFound      bool
	ActuatorOn         bool
}

// Decision is the outcome of Decide.
type Decision struct {
	Command Command
	Reason  string
	Lower   float64
	Upper   float64
}

// Decide applies hysteresis-band control.
//
// Outside heat mode the heater is only ever switched off. In heat mode the
// heater turns off at or above target+h/2 and on at or below target-h/2;
// both bounds are inclusive. Unknown temperature or a missing heater yields
// CommandNone.
func Decide(in DecisionInput) Decision {
	if in.Mode != ModeHeat {
		if in.ActuatorConfigured && in.ActuatorFound && in.ActuatorOn {
			return Decision{Command: CommandOff, Reason: ReasonModeOff}
		}
		return Decision{Command: CommandNone, Reason: ReasonModeOff}
	}

	if in.CurrentTemp == nil {
		return Decision{Command: CommandNone, Reason: ReasonTemperatureUnknown}
	}
	if !in.ActuatorConfigured {
		return Decision{Command: CommandNone, Reason: ReasonActuatorNotConfigured}
	}
	if !in.ActuatorFound {
		return Decision{Command: CommandNone, Reason: ReasonActuatorNotFound}
	}

	d := Decision{
		Command: CommandNone,
		Reason:  ReasonWithinBand,
		Lower:   in.TargetTemp - in.Hysteresis/2,
		Upper:   in.TargetTemp + in.Hysteresis/2,
	}
	temp := *in.CurrentTemp

	switch {
	case in.ActuatorOn && temp >= d.Upper:
		d.Command, d.Reason = CommandOff, ReasonAboveUpperBound
	case !in.ActuatorOn && temp <= d.Lower:
		d.Command, d.Reason = CommandOn, ReasonBelowLowerBound
	}
	return d
}
