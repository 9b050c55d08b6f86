package api

import "github.com/sensorhub/sensorhub/pkg/types"

// CreateGroupRequest is the body of POST /groups.
type CreateGroupRequest struct {
	Name string `json:"name"`
}

// CreateGroupResponse is the payload for a successful POST /groups.
type CreateGroupResponse struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

// MessageResponse is the payload for a successful DELETE /groups/{name}.
type MessageResponse struct {
	Message string `json:"message"`
}

// IngestResponse is the payload for a successful POST /data/{group}.
type IngestResponse struct {
	Message string        `json:"message"`
	Log     types.Reading `json:"log"`
}

// HealthResponse is the payload for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Groups int    `json:"groups"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
