package thermostat

import (
	"context"
	"time"
)

// CommandRecord describes one heater command issued by the gateway.
type CommandRecord struct {
	EntityID  string
	Service   string
	DesiredOn bool
	Err       error
	IssuedAt  time.Time
	Duration  time.Duration
}

// CommandObserver is told about every command the gateway issues,
// successful or not.
type CommandObserver interface {
	ActuatorCommanded(rec CommandRecord)
}

// ActuatorGateway drives the heater switch through the host.
//
// Commands are skipped when the heater is already observed in the desired
// state. Failures are logged and returned but never retried here; the next
// evaluation tries again because the observed state still differs.
type ActuatorGateway struct {
	host     Host
	logger   Logger
	observer CommandObserver
}

// NewActuatorGateway creates a gateway. observer may be nil.
func NewActuatorGateway(host Host, logger Logger, observer CommandObserver) *ActuatorGateway {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ActuatorGateway{host: host, logger: logger, observer: observer}
}

// SetActuator turns entityID on or off and waits for the host to finish.
//
// Returns:
//   - bool: whether a command was issued
//   - error: ErrNoActuator, or the host's service call error
func (g *ActuatorGateway) SetActuator(ctx context.Context, entityID string, desiredOn bool) (bool, error) {
	if entityID == "" {
		g.logger.Warn("no heater switch configured, cannot change heater state")
		return false, ErrNoActuator
	}

	if s, ok := g.host.State(entityID); ok && (s.State == StateOn) == desiredOn {
		g.logger.Debug("heater already in desired state", "entity_id", entityID, "on", desiredOn)
		return false, nil
	}

	service := ServiceTurnOff
	if desiredOn {
		service = ServiceTurnOn
	}

	g.logger.Info("calling heater service", "entity_id", entityID, "service", SwitchDomain+"."+service)

	start := time.Now()
	err := g.host.CallService(ctx, SwitchDomain, service, entityID)
	rec := CommandRecord{
		EntityID:  entityID,
		Service:   service,
		DesiredOn: desiredOn,
		Err:       err,
		IssuedAt:  start,
		Duration:  time.Since(start),
	}

	if err != nil {
		g.logger.Error("heater service call failed",
			"entity_id", entityID,
			"service", SwitchDomain+"."+service,
			"error", err,
		)
	} else {
		g.logger.Info("heater service call completed",
			"entity_id", entityID,
			"service", SwitchDomain+"."+service,
			"duration", rec.Duration,
		)
	}

	if g.observer != nil {
		g.observer.ActuatorCommanded(rec)
	}
	return true, err
}
