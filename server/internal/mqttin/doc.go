// Package mqttin ingests sensor readings published to an MQTT broker.
//
// Devices publish {"temperature": <number>, "humidity": <number>} to a topic
// matching the configured filter (default "sensorhub/+/data"). The level
// matched by "+" names the group. Each valid message goes through the same
// store ingest path as POST /data/{group}.
package mqttin
