// Package api implements the HTTP API of the sensorhub server.
//
// New(store, alerts) returns a Handler that serves:
//
//	POST   /groups          create a group from {"name": "..."}
//	GET    /groups          group names in creation order
//	DELETE /groups/{name}   delete a group and all its readings
//	POST   /data/{group}    ingest {"temperature": n, "humidity": n}; creates the group if needed
//	GET    /logs/{group}    retained readings of a group, oldest first
//	GET    /alerts          firing and recently resolved notification alerts
//	GET    /healthz         liveness and group count
//
// Other handlers (metrics, the WebSocket stream) are attached with Mount.
//
// All JSON endpoints respond with Content-Type: application/json. Errors are
// {"error": "..."}; unknown paths get 404 and known paths with the wrong
// method get 405, both as JSON.
//
// Wrap adds the middleware chain: request IDs, CORS, panic recovery and an
// optional access log.
package api
