// Package mqtt provides MQTT client connectivity for the thermostat service.
//
// The broker is the service's host platform: entity states arrive as
// retained messages, actuator commands go out as service calls and come
// back as acknowledgements, and thermostat status is published retained.
//
//	Sensors/Switches ↔ Bridges ↔ MQTT Broker ↔ graylogic-thermostat
//
// This package manages:
//   - Connection with auto-reconnect and subscription restore
//   - Last Will and Testament on the service status topic
//   - Topic builders and parsers (see Topics)
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllEntityStates(), 1,
//	    func(topic string, payload []byte) error {
//	        entityID, _ := mqtt.Topics{}.ParseEntityState(topic)
//	        log.Printf("%s = %s", entityID, payload)
//	        return nil
//	    })
//
// Handlers are invoked concurrently. Callers that need ordering per
// entity must provide it themselves.
package mqtt
