// Package ws implements the WebSocket live feed for sensorhub.
//
// Hub manages a set of connected clients. It pushes every ingested reading as
// it arrives (the Hub is a store observer) and broadcasts a summary of all
// groups on a configurable interval (default 5s). The summary is also sent
// immediately on connect.
//
// Messages sent to clients:
//
//	{"event": "reading", "data": {"group": "serre", "log": { /* reading */ }}}
//	{"event": "groups",  "data": [{"name": "serre", "count": 20, "last": { /* reading */ }}]}
//
// The upgrader accepts all origins. The endpoint is mounted at /ws/stream.
package ws
