// Package statebus is the thermostat's host platform on top of MQTT.
//
// A Bus holds the last known state of every entity seen on the
// graylogic/core/device/+/state topics, notifies subscribers when a state
// changes, and fires the "ready" signal once the host is considered
// started. An MQTTLink feeds the Bus from the broker and carries service
// calls as commands that complete on a matching acknowledgement.
//
// Topic and payload shapes:
//
//	graylogic/core/device/{entity}/state   {"state":"on","attributes":{...}}
//	graylogic/command/{domain}/{entity}    {"id":"…","service":"turn_on",...}
//	graylogic/ack/{domain}/{entity}        {"id":"…","status":"ok","state":"on"}
//	graylogic/system/ready                 any payload
//
// A successful call updates the cached state before CallService returns,
// so a caller that checks state before commanding never issues the same
// command twice.
package statebus
