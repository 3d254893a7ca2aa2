package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots of the Gray Logic bus.
const (
	// TopicPrefix is the root of every topic.
	TopicPrefix = "graylogic"

	// TopicPrefixCore is the base for entity and thermostat topics.
	TopicPrefixCore = "graylogic/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders and parsers for the topics the thermostat
// service uses. Using them keeps topic naming consistent.
//
//	topics := mqtt.Topics{}
//	topics.EntityState("sensor.hall_floor")
//	// Returns: "graylogic/core/device/sensor.hall_floor/state"
type Topics struct{}

// EntityState returns the retained state topic of a host entity.
//
// Example: graylogic/core/device/switch.hall_heater/state
func (Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefixCore, entityID)
}

// AllEntityStates returns a wildcard matching every entity state topic.
func (Topics) AllEntityStates() string {
	return TopicPrefixCore + "/device/+/state"
}

// Command returns the topic a service call for entityID is published on.
//
// Example: graylogic/command/switch/switch.hall_heater
func (Topics) Command(domain, entityID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, domain, entityID)
}

// Ack returns the topic a bridge acknowledges a command for entityID on.
//
// Example: graylogic/ack/switch/switch.hall_heater
func (Topics) Ack(domain, entityID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, domain, entityID)
}

// AllAcks returns a wildcard matching every acknowledgement topic.
func (Topics) AllAcks() string {
	return TopicPrefix + "/ack/+/+"
}

// SystemReady returns the topic announcing that the bus has finished starting.
func (Topics) SystemReady() string {
	return TopicPrefixSystem + "/ready"
}

// ServiceStatus returns the retained online/offline topic of a service.
//
// Example: graylogic/system/status/graylogic-thermostat
func (Topics) ServiceStatus(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefixSystem, clientID)
}

// ThermostatState returns the retained status topic of a thermostat.
//
// Example: graylogic/core/thermostat/varmegolv_kontroll_hall/state
func (Topics) ThermostatState(id string) string {
	return fmt.Sprintf("%s/thermostat/%s/state", TopicPrefixCore, id)
}

// ThermostatCommand returns the topic remote commands for a thermostat arrive on.
func (Topics) ThermostatCommand(id string) string {
	return fmt.Sprintf("%s/thermostat/%s/command", TopicPrefixCore, id)
}

// AllThermostatCommands returns a wildcard matching every thermostat command topic.
func (Topics) AllThermostatCommands() string {
	return TopicPrefixCore + "/thermostat/+/command"
}

// ParseEntityState extracts the entity id from an entity state topic.
func (Topics) ParseEntityState(topic string) (entityID string, ok bool) {
	return middleSegment(topic, TopicPrefixCore+"/device/", "/state")
}

// ParseThermostatCommand extracts the thermostat id from a command topic.
func (Topics) ParseThermostatCommand(topic string) (id string, ok bool) {
	return middleSegment(topic, TopicPrefixCore+"/thermostat/", "/command")
}

// ParseAck extracts domain and entity id from an acknowledgement topic.
func (Topics) ParseAck(topic string) (domain, entityID string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/ack/")
	if !found {
		return "", "", false
	}
	domain, entityID, found = strings.Cut(rest, "/")
	if !found || domain == "" || entityID == "" || strings.Contains(entityID, "/") {
		return "", "", false
	}
	return domain, entityID, true
}

// middleSegment returns the single topic level between prefix and suffix.
func middleSegment(topic, prefix, suffix string) (string, bool) {
	rest, found := strings.CutPrefix(topic, prefix)
	if !found {
		return "", false
	}
	mid, found := strings.CutSuffix(rest, suffix)
	if !found || mid == "" || strings.Contains(mid, "/") {
		return "", false
	}
	return mid, true
}
